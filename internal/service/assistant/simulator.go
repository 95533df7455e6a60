// Package assistant simulates the drawer's assistant. Replies are drawn from a
// fixed corpus through a seedable random source, and the simulator speaks the
// eino chat model interface so a real model can take its place.
package assistant

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyCorpus is returned when the simulator has nothing to say.
var ErrEmptyCorpus = errors.New("reply corpus is empty")

// source is a mutex-guarded random generator shared by the simulator and
// the strategy so a single seed fixes the whole conversation.
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource(seed uint64) *source {
	return &source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *source) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *source) int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int64N(n)
}

func (s *source) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Simulator is a local chat model that answers with a uniformly drawn corpus
// line, ignoring the conversation.
type Simulator struct {
	replies []string
	rand    *source
}

// NewSimulator builds a simulator over replies seeded with seed.
func NewSimulator(replies []string, seed uint64) *Simulator {
	return newSimulator(replies, newSource(seed))
}

func newSimulator(replies []string, src *source) *Simulator {
	return &Simulator{
		replies: append([]string(nil), replies...),
		rand:    src,
	}
}

// Generate returns one assistant message drawn from the corpus.
func (s *Simulator) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.replies) == 0 {
		return nil, ErrEmptyCorpus
	}
	return schema.AssistantMessage(s.replies[s.rand.intN(len(s.replies))], nil), nil
}

// Stream delivers the generated message as a single chunk.
func (s *Simulator) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

var _ model.BaseChatModel = (*Simulator)(nil)
