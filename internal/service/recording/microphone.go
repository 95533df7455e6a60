package recording

import (
	"context"
	"errors"
	"sync"
)

// VoiceToken is the content produced by a completed recording. Audio is never
// persisted, the token stands in for it on the timeline.
const VoiceToken = "语音消息已发送"

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrMicrophoneBusy   = errors.New("microphone already in use")
	ErrCaptureStopped   = errors.New("capture already stopped")
)

// Microphone grants capture handles.
type Microphone interface {
	// Request blocks until access is granted or denied.
	Request(ctx context.Context) (Capture, error)
}

// Capture is a live audio stream handle.
type Capture interface {
	// Stop releases the stream and yields the content token.
	Stop() (string, error)
}

// Compile-time interface checks.
var (
	_ Microphone = (*MockMicrophone)(nil)
	_ Microphone = (*ExclusiveMicrophone)(nil)
)

// MockMicrophone grants captures that yield VoiceToken, or denies every
// request when configured to.
type MockMicrophone struct {
	mu     sync.Mutex
	deny   bool
	token  string
	opened int
	open   int
}

// NewMockMicrophone creates a mock device. deny makes every request fail
// with ErrPermissionDenied.
func NewMockMicrophone(deny bool) *MockMicrophone {
	return &MockMicrophone{deny: deny, token: VoiceToken}
}

// SetDeny flips the permission answer for later requests.
func (m *MockMicrophone) SetDeny(deny bool) {
	m.mu.Lock()
	m.deny = deny
	m.mu.Unlock()
}

func (m *MockMicrophone) Request(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deny {
		return nil, ErrPermissionDenied
	}
	m.opened++
	m.open++
	return &mockCapture{mic: m}, nil
}

// Open returns the number of captures not yet stopped.
func (m *MockMicrophone) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Opened returns the number of captures granted so far.
func (m *MockMicrophone) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

type mockCapture struct {
	mic  *MockMicrophone
	once sync.Once
}

func (c *mockCapture) Stop() (string, error) {
	stopped := false
	c.once.Do(func() {
		c.mic.mu.Lock()
		c.mic.open--
		c.mic.mu.Unlock()
		stopped = true
	})
	if !stopped {
		return "", ErrCaptureStopped
	}
	return c.mic.token, nil
}

// ExclusiveMicrophone wraps a device so that at most one capture is live
// across every controller sharing it.
type ExclusiveMicrophone struct {
	inner Microphone

	mu   sync.Mutex
	busy bool
}

func NewExclusiveMicrophone(inner Microphone) *ExclusiveMicrophone {
	return &ExclusiveMicrophone{inner: inner}
}

// Request fails with ErrMicrophoneBusy while another capture is live. The
// slot is reserved for the duration of the inner request.
func (e *ExclusiveMicrophone) Request(ctx context.Context) (Capture, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	e.busy = true
	e.mu.Unlock()

	capture, err := e.inner.Request(ctx)
	if err != nil {
		e.release()
		return nil, err
	}
	return &exclusiveCapture{Capture: capture, owner: e}, nil
}

// Busy reports whether a capture currently holds the device.
func (e *ExclusiveMicrophone) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *ExclusiveMicrophone) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

type exclusiveCapture struct {
	Capture
	owner *ExclusiveMicrophone
	once  sync.Once
}

func (c *exclusiveCapture) Stop() (string, error) {
	token, err := c.Capture.Stop()
	c.once.Do(c.owner.release)
	return token, err
}
