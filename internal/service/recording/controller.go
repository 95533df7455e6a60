// Package recording drives the press-and-hold voice capture gesture: the
// microphone handshake, the elapsed clock and drag-to-cancel.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/chat-drawer/backend/internal/broadcast"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/recording"
	"github.com/zhouzirui/chat-drawer/backend/internal/scheduler"
)

const (
	DefaultCancelThreshold = 50.0
	DefaultTickInterval    = time.Second
)

var ErrClosed = errors.New("recording controller closed")

// Option configures a Controller.
type Option func(*Controller)

// WithCancelThreshold sets how far (in pointer units) the pointer must move
// up from the press point before release cancels the recording.
func WithCancelThreshold(v float64) Option {
	return func(c *Controller) {
		if v > 0 {
			c.threshold = v
		}
	}
}

// WithTickInterval sets how often the elapsed counter advances.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithScheduler replaces the wall clock driving the elapsed-seconds ticker.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// Controller is the recording state machine for one drawer. All methods are
// safe for concurrent use.
type Controller struct {
	mic       Microphone
	sched     scheduler.Scheduler
	threshold float64
	tick      time.Duration
	hub       *broadcast.Hub[recording.Snapshot]

	mu      sync.Mutex
	state   recording.State
	startY  float64
	elapsed int
	capture Capture
	ticker  scheduler.Task
	abort   context.CancelFunc
	// gen changes whenever a recording attempt ends, so stale ticks and
	// late grants can tell they no longer own the controller.
	gen    uint64
	closed bool
}

func NewController(mic Microphone, opts ...Option) *Controller {
	c := &Controller{
		mic:       mic,
		sched:     scheduler.NewRealtime(),
		threshold: DefaultCancelThreshold,
		tick:      DefaultTickInterval,
		hub:       broadcast.NewHub[recording.Snapshot](0),
		state:     recording.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a recording with the pointer pressed at startY. It blocks
// while the microphone is requested. Calls outside Idle are ignored.
// A denied request returns an error wrapping ErrPermissionDenied and leaves
// the controller Idle.
func (c *Controller) Begin(ctx context.Context, startY float64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != recording.StateIdle {
		c.mu.Unlock()
		return nil
	}
	reqCtx, abort := context.WithCancel(ctx)
	defer abort()
	c.gen++
	gen := c.gen
	c.state = recording.StateRequesting
	c.startY = startY
	c.abort = abort
	c.publishLocked()
	c.mu.Unlock()

	capture, err := c.mic.Request(reqCtx)

	c.mu.Lock()
	if c.gen != gen || c.state != recording.StateRequesting {
		closed := c.closed
		c.mu.Unlock()
		if capture != nil {
			if _, stopErr := capture.Stop(); stopErr != nil {
				log.Printf("[recording] release late capture: %v", stopErr)
			}
		}
		if closed {
			return ErrClosed
		}
		return nil
	}
	c.abort = nil

	if err != nil {
		c.state = recording.StateIdle
		c.gen++
		c.publishLocked()
		c.mu.Unlock()
		if !errors.Is(err, ErrPermissionDenied) {
			err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		log.Printf("[recording] microphone request failed: %v", err)
		return err
	}

	c.state = recording.StateActive
	c.elapsed = 0
	c.capture = capture
	c.ticker = c.sched.Every(c.tick, func() { c.onTick(gen) })
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// TrackPointer re-evaluates drag-to-cancel for the pointer at y. The
// decision is recomputed on every call; moving back below the threshold
// returns to Active.
func (c *Controller) TrackPointer(y float64) recording.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Recording() {
		return c.state
	}
	next := recording.StateActive
	if c.startY-y >= c.threshold {
		next = recording.StatePendingCancel
	}
	if next != c.state {
		c.state = next
		c.publishLocked()
	}
	return c.state
}

// End finishes the recording. ok is false when nothing was recording.
func (c *Controller) End() (res recording.Result, ok bool) {
	c.mu.Lock()
	if !c.state.Recording() {
		c.mu.Unlock()
		return recording.Result{}, false
	}
	cancelled := c.state == recording.StatePendingCancel
	seconds := c.elapsed
	capture := c.teardownLocked()
	c.publishLocked()
	c.mu.Unlock()

	token, err := capture.Stop()
	if cancelled {
		log.Printf("[recording] cancelled after %ds", seconds)
		return recording.Result{Outcome: recording.OutcomeCancelled, Seconds: seconds}, true
	}
	if err != nil || token == "" {
		log.Printf("[recording] capture stop failed, dropping recording: %v", err)
		return recording.Result{Outcome: recording.OutcomeCancelled, Seconds: seconds}, true
	}
	log.Printf("[recording] completed after %ds", seconds)
	return recording.Result{Outcome: recording.OutcomeCompleted, Content: token, Seconds: seconds}, true
}

// Close releases any live capture, abandons a pending request and rejects
// later Begin calls. Subscribers receive a final Idle snapshot.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.abort != nil {
		c.abort()
		c.abort = nil
	}
	capture := c.teardownLocked()
	c.publishLocked()
	c.mu.Unlock()

	if capture != nil {
		if _, err := capture.Stop(); err != nil {
			log.Printf("[recording] release capture on close: %v", err)
		}
	}
	c.hub.Close()
}

func (c *Controller) Snapshot() recording.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return recording.NewSnapshot(c.state, c.elapsed)
}

func (c *Controller) State() recording.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe streams a snapshot on every state change and tick.
func (c *Controller) Subscribe() (<-chan recording.Snapshot, func()) {
	return c.hub.Subscribe()
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || !c.state.Recording() {
		return
	}
	c.elapsed++
	c.publishLocked()
}

// teardownLocked returns the controller to Idle and hands back the capture
// for the caller to stop outside the lock.
func (c *Controller) teardownLocked() Capture {
	if c.ticker != nil {
		c.ticker.Cancel()
		c.ticker = nil
	}
	capture := c.capture
	c.capture = nil
	c.state = recording.StateIdle
	c.elapsed = 0
	c.gen++
	return capture
}

func (c *Controller) publishLocked() {
	c.hub.Publish(recording.NewSnapshot(c.state, c.elapsed))
}
