package assistant

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
)

func defaultPersona(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(persona.DefaultID)
	if !ok {
		t.Fatal("default persona missing")
	}
	return p
}

func TestDelayStaysInRange(t *testing.T) {
	s := NewStrategy(defaultPersona(t), WithSeed(42))
	for i := 0; i < 1000; i++ {
		d := s.Delay()
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("delay %v outside [1s, 3s)", d)
		}
	}
}

func TestDelayCollapsedRange(t *testing.T) {
	s := NewStrategy(defaultPersona(t), WithDelayRange(time.Second, time.Second))
	if d := s.Delay(); d != time.Second {
		t.Fatalf("expected fixed delay, got %v", d)
	}
}

func TestReplyDrawsFromCorpus(t *testing.T) {
	p := defaultPersona(t)
	s := NewStrategy(p, WithSeed(7), WithCardProbability(0))

	for i := 0; i < 50; i++ {
		reply, err := s.Reply(context.Background(), nil)
		if err != nil {
			t.Fatalf("Reply err: %v", err)
		}
		if !slices.Contains(p.Replies, reply.Content) {
			t.Fatalf("reply %q not in corpus", reply.Content)
		}
		if reply.Card != nil {
			t.Fatal("card drawn with probability 0")
		}
	}
}

func TestReplyAlwaysCardWithProbabilityOne(t *testing.T) {
	p := defaultPersona(t)
	s := NewStrategy(p, WithSeed(7), WithCardProbability(1))

	reply, err := s.Reply(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if reply.Card == nil {
		t.Fatal("expected card reply")
	}
	if reply.Card.Title != p.ReplyCard.Title {
		t.Fatalf("unexpected card title %q", reply.Card.Title)
	}
	if n := len(reply.Card.Actions); n < 2 || n > 3 {
		t.Fatalf("expected 2-3 actions, got %d", n)
	}
}

func TestSameSeedSameConversation(t *testing.T) {
	p := defaultPersona(t)
	a := NewStrategy(p, WithSeed(99))
	b := NewStrategy(p, WithSeed(99))

	for i := 0; i < 20; i++ {
		if da, db := a.Delay(), b.Delay(); da != db {
			t.Fatalf("delay diverged at %d: %v vs %v", i, da, db)
		}
		ra, _ := a.Reply(context.Background(), nil)
		rb, _ := b.Reply(context.Background(), nil)
		if ra.Content != rb.Content || (ra.Card == nil) != (rb.Card == nil) {
			t.Fatalf("reply diverged at %d", i)
		}
	}
}

func TestRecommendationActionsRunHook(t *testing.T) {
	p := defaultPersona(t)
	var events []ActionEvent
	s := NewStrategy(p, WithActionHook(func(e ActionEvent) { events = append(events, e) }))

	card := s.Recommendation()
	if card.Title != p.Recommendation.Title {
		t.Fatalf("unexpected title %q", card.Title)
	}
	for _, action := range card.Actions {
		action.OnActivate()
	}

	if len(events) != len(p.Recommendation.Actions) {
		t.Fatalf("expected %d events, got %d", len(p.Recommendation.Actions), len(events))
	}
	if events[0].Label != p.Recommendation.Actions[0] || events[0].PersonaID != p.ID {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestSimulatorGenerateAndStream(t *testing.T) {
	sim := NewSimulator([]string{"only line"}, 1)
	ctx := context.Background()

	msg, err := sim.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Role != schema.Assistant || msg.Content != "only line" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	stream, err := sim.Stream(ctx, nil)
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	defer stream.Close()

	chunk, err := stream.Recv()
	if err != nil || chunk.Content != "only line" {
		t.Fatalf("unexpected first chunk: %v %v", chunk, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestSimulatorErrors(t *testing.T) {
	if _, err := NewSimulator(nil, 1).Generate(context.Background(), nil); !errors.Is(err, ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulator([]string{"x"}, 1).Generate(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildHistoryMessagesKeepsRecentTurns(t *testing.T) {
	var messages []chat.Message
	for i := 0; i < 14; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: "m", Type: chat.TypeText})
	}
	messages = append(messages, chat.Message{
		Role: chat.RoleAssistant,
		Type: chat.TypeCard,
		Card: &chat.CardPayload{Title: "内容推荐"},
	})

	history := buildHistoryMessages(messages)
	if len(history) != historyLimit {
		t.Fatalf("expected %d messages, got %d", historyLimit, len(history))
	}
	last := history[len(history)-1]
	if last.Role != schema.Assistant || last.Content != "内容推荐" {
		t.Fatalf("card message should fall back to its title, got %+v", last)
	}
}
