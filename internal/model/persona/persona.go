package persona

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultID is the persona a drawer opens with when none is requested.
const DefaultID = "assistant"

//go:embed personas.yaml
var catalogue []byte

// Persona describes the simulated assistant behind a drawer: its greeting,
// the reply corpus it draws from and the card templates it renders.
type Persona struct {
	ID             string       `yaml:"id" json:"id"`
	Name           string       `yaml:"name" json:"name"`
	Title          string       `yaml:"title" json:"title"`
	OpeningLine    string       `yaml:"openingLine" json:"openingLine"`
	Replies        []string     `yaml:"replies" json:"-"`
	ReplyCard      CardTemplate `yaml:"replyCard" json:"-"`
	Recommendation CardTemplate `yaml:"recommendation" json:"-"`
}

// CardTemplate is the static shape of a card; actions are labels only; the
// chat layer attaches their effects.
type CardTemplate struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Actions     []string `yaml:"actions"`
}

// Validate checks that a persona can drive a chat session.
func (p Persona) Validate() error {
	switch {
	case p.ID == "":
		return errors.New("persona id is required")
	case p.OpeningLine == "":
		return fmt.Errorf("persona %s: opening line is required", p.ID)
	case len(p.Replies) == 0:
		return fmt.Errorf("persona %s: reply corpus is empty", p.ID)
	case len(p.ReplyCard.Actions) == 0:
		return fmt.Errorf("persona %s: reply card has no actions", p.ID)
	case len(p.Recommendation.Actions) == 0:
		return fmt.Errorf("persona %s: recommendation card has no actions", p.ID)
	}
	return nil
}

// Parse decodes a persona catalogue document.
func Parse(data []byte) ([]Persona, error) {
	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal persona catalogue: %w", err)
	}
	for _, p := range doc.Personas {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Personas, nil
}

// Seed returns the embedded persona catalogue. The catalogue ships with the
// binary, so a decoding failure is a build defect and panics.
func Seed() []Persona {
	personas, err := Parse(catalogue)
	if err != nil {
		panic(err)
	}
	return personas
}
