package chat

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType selects how the presentation layer renders a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeVoice MessageType = "voice"
	TypeCard  MessageType = "card"
)

// Message is a single immutable entry of the drawer timeline.
type Message struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Role      Role         `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
	Type      MessageType  `json:"type"`
	Card      *CardPayload `json:"cardData,omitempty"`
}

// UnmarshalJSON defaults an omitted type to text.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Type == "" {
		decoded.Type = TypeText
	}
	*m = Message(decoded)
	return nil
}

// CardPayload is the structured body of a card message.
type CardPayload struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Actions     []CardAction `json:"actions"`
}

// CardAction is a labelled button on a card. OnActivate is a presentation
// side effect and is never serialised.
type CardAction struct {
	Label      string `json:"label"`
	OnActivate func() `json:"-"`
}

// Clone returns a copy whose action slice is not shared with the receiver.
func (c *CardPayload) Clone() *CardPayload {
	if c == nil {
		return nil
	}
	cloned := *c
	cloned.Actions = append([]CardAction(nil), c.Actions...)
	return &cloned
}

// Reply is what a reply strategy produces for one pending assistant turn.
// A non-nil Card turns the reply into a card message.
type Reply struct {
	Content string
	Card    *CardPayload
}
