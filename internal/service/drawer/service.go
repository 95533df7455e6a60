// Package drawer keeps the registry of open chat drawers. Each drawer is a
// Panel bound to one assistant persona.
package drawer

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
	"github.com/zhouzirui/chat-drawer/backend/internal/scheduler"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/assistant"
	chatsvc "github.com/zhouzirui/chat-drawer/backend/internal/service/chat"
	recordingsvc "github.com/zhouzirui/chat-drawer/backend/internal/service/recording"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPersonaNotFound = errors.New("persona not found")
)

// Option configures a Service.
type Option func(*Service)

// WithScheduler drives every panel from s instead of the wall clock.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(svc *Service) { svc.sched = s }
}

// WithMicrophone replaces the shared capture device.
func WithMicrophone(m recordingsvc.Microphone) Option {
	return func(svc *Service) { svc.mic = m }
}

// WithDefaultPersona sets the persona used when a request names none.
func WithDefaultPersona(id string) Option {
	return func(svc *Service) { svc.defaultPersona = id }
}

// WithStrategyOptions is applied to every session's reply strategy.
func WithStrategyOptions(opts ...assistant.Option) Option {
	return func(svc *Service) { svc.strategyOpts = append(svc.strategyOpts, opts...) }
}

// WithRecordingOptions is applied to every session's recording controller.
func WithRecordingOptions(opts ...recordingsvc.Option) Option {
	return func(svc *Service) { svc.recordingOpts = append(svc.recordingOpts, opts...) }
}

// Service manages the open drawer panels.
type Service struct {
	personas       persona.Store
	sched          scheduler.Scheduler
	mic            recordingsvc.Microphone
	defaultPersona string
	strategyOpts   []assistant.Option
	recordingOpts  []recordingsvc.Option

	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewService builds the registry. Unless overridden, all panels share one
// exclusive mock microphone, so only one recording is live at a time.
func NewService(personas persona.Store, opts ...Option) *Service {
	s := &Service{
		personas:       personas,
		sched:          scheduler.NewRealtime(),
		defaultPersona: persona.DefaultID,
		panels:         make(map[string]*Panel),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mic == nil {
		s.mic = recordingsvc.NewExclusiveMicrophone(recordingsvc.NewMockMicrophone(false))
	}
	return s
}

// CreateSession opens a drawer for personaID, or the default persona when
// personaID is empty.
func (s *Service) CreateSession(_ context.Context, personaID string) (*Panel, error) {
	if personaID == "" {
		personaID = s.defaultPersona
	}
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return nil, ErrPersonaNotFound
	}

	id := uuid.NewString()
	strategy := assistant.NewStrategy(p, s.strategyOpts...)
	panel := &Panel{
		info: Info{
			ID:        id,
			PersonaID: p.ID,
			CreatedAt: s.sched.Now().UTC(),
		},
		persona: p,
		session: chatsvc.NewSession(p.OpeningLine, strategy,
			chatsvc.WithID(id),
			chatsvc.WithScheduler(s.sched),
		),
		recorder: recordingsvc.NewController(s.mic,
			append([]recordingsvc.Option{recordingsvc.WithScheduler(s.sched)}, s.recordingOpts...)...,
		),
	}

	s.mu.Lock()
	s.panels[id] = panel
	s.mu.Unlock()

	log.Printf("[drawer] session=%s opened persona=%s", id, p.ID)
	return panel, nil
}

// GetSession retrieves an open panel by identifier.
func (s *Service) GetSession(_ context.Context, id string) (*Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	panel, ok := s.panels[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return panel, nil
}

// List returns the open panels, oldest first.
func (s *Service) List(_ context.Context) []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.panels))
	for _, panel := range s.panels {
		infos = append(infos, panel.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// CloseSession tears a panel down and forgets it.
func (s *Service) CloseSession(_ context.Context, id string) error {
	s.mu.Lock()
	panel, ok := s.panels[id]
	delete(s.panels, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	panel.Close()
	log.Printf("[drawer] session=%s closed", id)
	return nil
}

// Close tears down every open panel.
func (s *Service) Close() {
	s.mu.Lock()
	panels := s.panels
	s.panels = make(map[string]*Panel)
	s.mu.Unlock()

	for _, panel := range panels {
		panel.Close()
	}
}
