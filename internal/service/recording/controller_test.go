package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/recording"
	"github.com/zhouzirui/chat-drawer/backend/internal/scheduler"
)

func newTestController(t *testing.T, mic Microphone, opts ...Option) (*Controller, *scheduler.Manual) {
	t.Helper()
	clock := scheduler.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctrl := NewController(mic, append([]Option{WithScheduler(clock)}, opts...)...)
	t.Cleanup(ctrl.Close)
	return ctrl, clock
}

// gateMicrophone blocks Request until the test answers it.
type gateMicrophone struct {
	requested chan struct{}
	answer    chan error
	inner     *MockMicrophone
}

func newGateMicrophone() *gateMicrophone {
	return &gateMicrophone{
		requested: make(chan struct{}, 1),
		answer:    make(chan error, 1),
		inner:     NewMockMicrophone(false),
	}
}

func (g *gateMicrophone) Request(ctx context.Context) (Capture, error) {
	g.requested <- struct{}{}
	if err := <-g.answer; err != nil {
		return nil, err
	}
	return g.inner.Request(context.Background())
}

func TestBeginGrantsAndTicks(t *testing.T) {
	mic := NewMockMicrophone(false)
	ctrl, clock := newTestController(t, mic)

	if err := ctrl.Begin(context.Background(), 600); err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.State != recording.StateActive || snap.ElapsedSeconds != 0 || snap.Clock != "00:00" {
		t.Fatalf("unexpected snapshot after begin: %+v", snap)
	}
	if snap.Affordance != recording.AffordanceRecording {
		t.Fatalf("expected recording affordance, got %q", snap.Affordance)
	}

	clock.Advance(3 * time.Second)
	if got := ctrl.Snapshot(); got.ElapsedSeconds != 3 || got.Clock != "00:03" {
		t.Fatalf("expected 3s elapsed, got %+v", got)
	}

	res, ok := ctrl.End()
	if !ok {
		t.Fatal("End ignored while active")
	}
	if res.Outcome != recording.OutcomeCompleted || res.Content != VoiceToken || res.Seconds != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := ctrl.Snapshot(); got.State != recording.StateIdle || got.ElapsedSeconds != 0 {
		t.Fatalf("expected idle reset, got %+v", got)
	}
	if mic.Open() != 0 {
		t.Fatalf("capture not released: %d open", mic.Open())
	}

	clock.Advance(5 * time.Second)
	if got := ctrl.Snapshot(); got.ElapsedSeconds != 0 {
		t.Fatalf("ticker survived End: %+v", got)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no scheduled tasks, got %d", clock.Pending())
	}
}

func TestDragToCancel(t *testing.T) {
	mic := NewMockMicrophone(false)
	ctrl, clock := newTestController(t, mic)

	ctrl.Begin(context.Background(), 600)
	clock.Advance(2 * time.Second)

	if got := ctrl.TrackPointer(540); got != recording.StatePendingCancel {
		t.Fatalf("expected pending cancel at delta 60, got %s", got)
	}
	snap := ctrl.Snapshot()
	if !snap.PendingCancel || snap.Affordance != recording.AffordanceReleaseToCancel {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	res, ok := ctrl.End()
	if !ok || res.Outcome != recording.OutcomeCancelled || res.Content != "" {
		t.Fatalf("expected cancelled result, got %+v ok=%v", res, ok)
	}
	if res.Completed() {
		t.Fatal("cancelled result must not count as completed")
	}
	if got := ctrl.Snapshot(); got.State != recording.StateIdle || got.ElapsedSeconds != 0 {
		t.Fatalf("expected idle reset, got %+v", got)
	}
	if mic.Open() != 0 {
		t.Fatal("capture not released on cancel")
	}
}

func TestCancelThresholdIsNotLatched(t *testing.T) {
	ctrl, _ := newTestController(t, NewMockMicrophone(false))
	ctrl.Begin(context.Background(), 600)

	steps := []struct {
		y    float64
		want recording.State
	}{
		{580, recording.StateActive},
		{551, recording.StateActive},
		{550, recording.StatePendingCancel},
		{500, recording.StatePendingCancel},
		{560, recording.StateActive},
		{700, recording.StateActive},
	}
	for _, step := range steps {
		if got := ctrl.TrackPointer(step.y); got != step.want {
			t.Fatalf("TrackPointer(%v) = %s, want %s", step.y, got, step.want)
		}
	}

	res, _ := ctrl.End()
	if res.Outcome != recording.OutcomeCompleted {
		t.Fatalf("expected completion after dragging back, got %+v", res)
	}
}

func TestCustomCancelThreshold(t *testing.T) {
	ctrl, _ := newTestController(t, NewMockMicrophone(false), WithCancelThreshold(10))
	ctrl.Begin(context.Background(), 100)

	if got := ctrl.TrackPointer(90); got != recording.StatePendingCancel {
		t.Fatalf("expected pending cancel at custom threshold, got %s", got)
	}
}

func TestPermissionDenied(t *testing.T) {
	ctrl, clock := newTestController(t, NewMockMicrophone(true))

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	err := ctrl.Begin(context.Background(), 600)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if ctrl.State() != recording.StateIdle {
		t.Fatalf("expected idle after denial, got %s", ctrl.State())
	}
	if clock.Pending() != 0 {
		t.Fatal("denied recording must not start a ticker")
	}
	if _, ok := ctrl.End(); ok {
		t.Fatal("End should be ignored after denial")
	}

	if first := <-updates; first.State != recording.StateRequesting {
		t.Fatalf("expected requesting update, got %s", first.State)
	}
	if second := <-updates; second.State != recording.StateIdle {
		t.Fatalf("expected idle update, got %s", second.State)
	}
}

func TestRequestErrorCountsAsDenial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl, _ := newTestController(t, NewMockMicrophone(false))

	err := ctrl.Begin(ctx, 600)
	if !errors.Is(err, ErrPermissionDenied) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped denial, got %v", err)
	}
	if ctrl.State() != recording.StateIdle {
		t.Fatal("expected idle")
	}
}

func TestBeginWhileRecordingIsIgnored(t *testing.T) {
	mic := NewMockMicrophone(false)
	ctrl, _ := newTestController(t, mic)

	ctrl.Begin(context.Background(), 600)
	if err := ctrl.Begin(context.Background(), 100); err != nil {
		t.Fatalf("second Begin err: %v", err)
	}
	if mic.Opened() != 1 {
		t.Fatalf("expected one capture, got %d", mic.Opened())
	}
	// The first press point still governs cancellation.
	if got := ctrl.TrackPointer(560); got != recording.StateActive {
		t.Fatalf("press point was overwritten: %s", got)
	}
}

func TestEndAndTrackWhenIdle(t *testing.T) {
	ctrl, _ := newTestController(t, NewMockMicrophone(false))

	if _, ok := ctrl.End(); ok {
		t.Fatal("End honoured while idle")
	}
	if got := ctrl.TrackPointer(0); got != recording.StateIdle {
		t.Fatalf("TrackPointer changed idle state to %s", got)
	}
}

func TestEndDuringRequestIsIgnored(t *testing.T) {
	mic := newGateMicrophone()
	ctrl, _ := newTestController(t, mic)

	done := make(chan error, 1)
	go func() { done <- ctrl.Begin(context.Background(), 600) }()
	<-mic.requested

	if ctrl.State() != recording.StateRequesting {
		t.Fatalf("expected requesting, got %s", ctrl.State())
	}
	if _, ok := ctrl.End(); ok {
		t.Fatal("End honoured while requesting")
	}

	mic.answer <- nil
	if err := <-done; err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if ctrl.State() != recording.StateActive {
		t.Fatalf("expected active after grant, got %s", ctrl.State())
	}
}

func TestLateGrantAfterCloseIsReleased(t *testing.T) {
	mic := newGateMicrophone()
	ctrl, clock := newTestController(t, mic)

	done := make(chan error, 1)
	go func() { done <- ctrl.Begin(context.Background(), 600) }()
	<-mic.requested

	ctrl.Close()
	mic.answer <- nil

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if mic.inner.Opened() != 1 || mic.inner.Open() != 0 {
		t.Fatalf("late capture not released: opened=%d open=%d", mic.inner.Opened(), mic.inner.Open())
	}
	if clock.Pending() != 0 {
		t.Fatal("late grant started a ticker")
	}
	if err := ctrl.Begin(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Begin after close: %v", err)
	}
}

func TestCloseReleasesActiveCapture(t *testing.T) {
	mic := NewMockMicrophone(false)
	ctrl, clock := newTestController(t, mic)

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.Begin(context.Background(), 600)
	ctrl.Close()

	if mic.Open() != 0 {
		t.Fatal("active capture survived close")
	}
	if clock.Pending() != 0 {
		t.Fatal("ticker survived close")
	}

	var last recording.Snapshot
	for snap := range updates {
		last = snap
	}
	if last.State != recording.StateIdle {
		t.Fatalf("final snapshot should be idle, got %s", last.State)
	}
}

func TestSubscribeSeesTicks(t *testing.T) {
	ctrl, clock := newTestController(t, NewMockMicrophone(false), WithTickInterval(500*time.Millisecond))

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.Begin(context.Background(), 600)
	clock.Advance(time.Second)

	want := []struct {
		state   recording.State
		elapsed int
	}{
		{recording.StateRequesting, 0},
		{recording.StateActive, 0},
		{recording.StateActive, 1},
		{recording.StateActive, 2},
	}
	for i, w := range want {
		got := <-updates
		if got.State != w.state || got.ElapsedSeconds != w.elapsed {
			t.Fatalf("update %d = %s/%d, want %s/%d", i, got.State, got.ElapsedSeconds, w.state, w.elapsed)
		}
	}
}

func TestExclusiveMicrophoneAllowsOneCapture(t *testing.T) {
	shared := NewExclusiveMicrophone(NewMockMicrophone(false))
	first, _ := newTestController(t, shared)
	second, _ := newTestController(t, shared)

	if err := first.Begin(context.Background(), 600); err != nil {
		t.Fatalf("first Begin err: %v", err)
	}
	err := second.Begin(context.Background(), 600)
	if !errors.Is(err, ErrPermissionDenied) || !errors.Is(err, ErrMicrophoneBusy) {
		t.Fatalf("expected busy denial, got %v", err)
	}
	if second.State() != recording.StateIdle {
		t.Fatal("second controller should stay idle")
	}

	first.End()
	if shared.Busy() {
		t.Fatal("device still reserved after End")
	}
	if err := second.Begin(context.Background(), 600); err != nil {
		t.Fatalf("second Begin after release: %v", err)
	}
}

func TestExclusiveMicrophoneReleasesOnDenial(t *testing.T) {
	inner := NewMockMicrophone(true)
	shared := NewExclusiveMicrophone(inner)

	if _, err := shared.Request(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if shared.Busy() {
		t.Fatal("denied request kept the device reserved")
	}

	inner.SetDeny(false)
	capture, err := shared.Request(context.Background())
	if err != nil {
		t.Fatalf("Request err: %v", err)
	}
	capture.Stop()
	if _, err := capture.Stop(); !errors.Is(err, ErrCaptureStopped) {
		t.Fatalf("expected ErrCaptureStopped on second stop, got %v", err)
	}
}

func TestConcurrentGestures(t *testing.T) {
	ctrl := NewController(NewMockMicrophone(false), WithTickInterval(time.Millisecond))
	defer ctrl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ctrl.Begin(context.Background(), 600)
				ctrl.TrackPointer(float64(600 - (i*j)%80))
				ctrl.End()
			}
		}(i)
	}
	wg.Wait()

	if ctrl.State() != recording.StateIdle {
		t.Fatalf("expected idle after all gestures, got %s", ctrl.State())
	}
}
