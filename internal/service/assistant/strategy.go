package assistant

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
)

const (
	DefaultMinDelay        = 1000 * time.Millisecond
	DefaultMaxDelay        = 3000 * time.Millisecond
	DefaultCardProbability = 0.3

	historyLimit = 10
)

// ActionEvent describes a card button press.
type ActionEvent struct {
	PersonaID string
	CardTitle string
	Label     string
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithSeed fixes the random source so replies, delays and card draws repeat.
func WithSeed(seed uint64) Option {
	return func(s *Strategy) { s.seed = seed }
}

// WithDelayRange sets the half-open interval [lo, hi) reply delays are
// drawn from.
func WithDelayRange(lo, hi time.Duration) Option {
	return func(s *Strategy) {
		s.minDelay = lo
		s.maxDelay = hi
	}
}

// WithCardProbability sets how often a reply is rendered as a card.
func WithCardProbability(p float64) Option {
	return func(s *Strategy) { s.cardProbability = p }
}

// WithModel replaces the corpus simulator with another chat model.
func WithModel(m model.BaseChatModel) Option {
	return func(s *Strategy) { s.model = m }
}

// WithActionHook sets the effect run when a card action is activated.
func WithActionHook(hook func(ActionEvent)) Option {
	return func(s *Strategy) { s.onAction = hook }
}

// Strategy decides when the assistant answers and what it says.
type Strategy struct {
	persona         persona.Persona
	seed            uint64
	minDelay        time.Duration
	maxDelay        time.Duration
	cardProbability float64
	model           model.BaseChatModel
	onAction        func(ActionEvent)
	rand            *source
}

// NewStrategy builds the reply strategy for a persona. Without WithSeed the
// source is seeded from the clock.
func NewStrategy(p persona.Persona, opts ...Option) *Strategy {
	s := &Strategy{
		persona:         p,
		seed:            uint64(time.Now().UnixNano()),
		minDelay:        DefaultMinDelay,
		maxDelay:        DefaultMaxDelay,
		cardProbability: DefaultCardProbability,
		onAction:        logAction,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rand = newSource(s.seed)
	if s.model == nil {
		s.model = newSimulator(p.Replies, s.rand)
	}
	return s
}

// Delay draws the typing window length.
func (s *Strategy) Delay() time.Duration {
	span := s.maxDelay - s.minDelay
	if span <= 0 {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rand.int64N(int64(span)))
}

// Reply produces the assistant's answer to the conversation so far.
func (s *Strategy) Reply(ctx context.Context, history []chat.Message) (chat.Reply, error) {
	resp, err := s.model.Generate(ctx, buildHistoryMessages(history))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("generate reply: %w", err)
	}

	reply := chat.Reply{Content: resp.Content}
	if s.rand.float64() < s.cardProbability {
		reply.Card = s.card(s.persona.ReplyCard)
	}
	return reply, nil
}

// Recommendation builds the fixed recommendation card.
func (s *Strategy) Recommendation() chat.CardPayload {
	return *s.card(s.persona.Recommendation)
}

func (s *Strategy) card(tpl persona.CardTemplate) *chat.CardPayload {
	card := &chat.CardPayload{
		Title:       tpl.Title,
		Description: tpl.Description,
		Actions:     make([]chat.CardAction, 0, len(tpl.Actions)),
	}
	for _, label := range tpl.Actions {
		event := ActionEvent{PersonaID: s.persona.ID, CardTitle: tpl.Title, Label: label}
		hook := s.onAction
		card.Actions = append(card.Actions, chat.CardAction{
			Label:      label,
			OnActivate: func() { hook(event) },
		})
	}
	return card
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		content := msg.Content
		if content == "" && msg.Card != nil {
			content = msg.Card.Title
		}
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(content, nil))
		}
	}
	return history
}

func logAction(e ActionEvent) {
	log.Printf("[card] persona=%s card=%q action=%q activated", e.PersonaID, e.CardTitle, e.Label)
}
