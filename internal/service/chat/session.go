package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chat-drawer/backend/internal/broadcast"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/scheduler"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrActionNotFound  = errors.New("card action not found")
)

const defaultFallbackReply = "Sorry, I can't answer right now."

// ReplyStrategy supplies the simulated assistant's timing and content.
type ReplyStrategy interface {
	Delay() time.Duration
	Reply(ctx context.Context, history []chat.Message) (chat.Reply, error)
	Recommendation() chat.CardPayload
}

// Option configures a Session.
type Option func(*Session)

// WithScheduler replaces the wall clock scheduler.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(sess *Session) { sess.sched = s }
}

// WithID fixes the session identifier.
func WithID(id string) Option {
	return func(sess *Session) { sess.id = id }
}

// WithFallbackReply sets the content appended when the strategy fails, so a
// pending reply always resolves.
func WithFallbackReply(content string) Option {
	return func(sess *Session) { sess.fallback = content }
}

// Session owns one drawer conversation: the ordered timeline, the typing
// window and the single pending reply.
type Session struct {
	id       string
	strategy ReplyStrategy
	sched    scheduler.Scheduler
	fallback string
	hub      *broadcast.Hub[chat.Snapshot]
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	messages []chat.Message
	typing   bool
	pending  scheduler.Task
	closed   bool
}

// NewSession opens a conversation seeded with the assistant's greeting.
func NewSession(greeting string, strategy ReplyStrategy, opts ...Option) *Session {
	s := &Session{
		strategy: strategy,
		sched:    scheduler.NewRealtime(),
		fallback: defaultFallbackReply,
		hub:      broadcast.NewHub[chat.Snapshot](16),
		messages: make([]chat.Message, 0, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.messages = append(s.messages, s.newMessage(chat.RoleAssistant, greeting, chat.TypeText, nil))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Send appends a user message and schedules the assistant's reply. It
// reports false, changing nothing, while a reply is pending, after Close,
// for blank text, or for any type other than text and voice.
func (s *Session) Send(content string, typ chat.MessageType) (chat.Message, bool) {
	if typ == "" {
		typ = chat.TypeText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.typing {
		return chat.Message{}, false
	}
	switch typ {
	case chat.TypeText:
		if strings.TrimSpace(content) == "" {
			return chat.Message{}, false
		}
	case chat.TypeVoice:
		if content == "" {
			return chat.Message{}, false
		}
	default:
		return chat.Message{}, false
	}

	msg := s.newMessage(chat.RoleUser, content, typ, nil)
	s.messages = append(s.messages, msg)
	s.typing = true

	delay := s.strategy.Delay()
	s.pending = s.sched.AfterFunc(delay, s.deliverReply)
	log.Printf("[chat] session=%s user %s message queued, reply in %s", s.id, typ, delay)

	s.publishLocked()
	return msg, true
}

// RequestRecommendation immediately appends the recommendation card. It does
// not touch the typing window.
func (s *Session) RequestRecommendation() (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return chat.Message{}, false
	}

	card := s.strategy.Recommendation()
	msg := s.newMessage(chat.RoleAssistant, "", chat.TypeCard, &card)
	s.messages = append(s.messages, msg)

	s.publishLocked()
	return msg, true
}

// ActivateAction runs the effect of a card action.
func (s *Session) ActivateAction(messageID string, index int) error {
	s.mu.Lock()
	var action *chat.CardAction
	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		card := s.messages[i].Card
		if card == nil || index < 0 || index >= len(card.Actions) {
			s.mu.Unlock()
			return ErrActionNotFound
		}
		action = &card.Actions[index]
		break
	}
	s.mu.Unlock()

	if action == nil {
		return ErrMessageNotFound
	}
	if action.OnActivate != nil {
		action.OnActivate()
	}
	return nil
}

// Messages returns a copy of the timeline.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMessagesLocked()
}

// IsTyping reports whether a reply is pending.
func (s *Session) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Snapshot returns the current read-only view.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe streams a snapshot after every change until the returned cancel
// function is called or the session is closed.
func (s *Session) Subscribe() (<-chan chat.Snapshot, func()) {
	return s.hub.Subscribe()
}

// Close tears the session down and cancels a pending reply.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	s.typing = false
	s.cancel()

	s.publishLocked()
	s.hub.Close()
}

func (s *Session) deliverReply() {
	s.mu.Lock()
	if s.closed || !s.typing {
		s.mu.Unlock()
		return
	}
	history := s.copyMessagesLocked()
	s.mu.Unlock()

	// The strategy may block; readers keep working meanwhile.
	reply, err := s.strategy.Reply(s.ctx, history)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.typing {
		return
	}
	if err != nil {
		log.Printf("[chat] session=%s reply failed, using fallback: %v", s.id, err)
		reply = chat.Reply{Content: s.fallback}
	}

	typ := chat.TypeText
	if reply.Card != nil {
		typ = chat.TypeCard
	}
	s.messages = append(s.messages, s.newMessage(chat.RoleAssistant, reply.Content, typ, reply.Card))
	s.typing = false
	s.pending = nil

	s.publishLocked()
}

func (s *Session) newMessage(role chat.Role, content string, typ chat.MessageType, card *chat.CardPayload) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		Timestamp: s.sched.Now(),
		Type:      typ,
		Card:      card,
	}
}

func (s *Session) copyMessagesLocked() []chat.Message {
	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	for i := range copied {
		copied[i].Card = copied[i].Card.Clone()
	}
	return copied
}

func (s *Session) snapshotLocked() chat.Snapshot {
	return chat.Snapshot{
		SessionID: s.id,
		Messages:  s.copyMessagesLocked(),
		IsTyping:  s.typing,
	}
}

func (s *Session) publishLocked() {
	s.hub.Publish(s.snapshotLocked())
}
