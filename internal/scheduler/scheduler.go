// Package scheduler provides cancellable deferred and repeating tasks.
// Realtime is backed by the runtime timers; Manual is a virtual clock that
// only moves when Advance is called.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel prevents any future run of the callback. It is safe to call
	// more than once and after the task has already fired.
	Cancel()
}

// Scheduler runs callbacks later.
type Scheduler interface {
	// AfterFunc runs f once after d.
	AfterFunc(d time.Duration, f func()) Task
	// Every runs f every d until the task is cancelled.
	Every(d time.Duration, f func()) Task
	// Now reports the scheduler's current time.
	Now() time.Time
}

// Realtime schedules on the wall clock.
type Realtime struct{}

// NewRealtime returns the wall clock scheduler.
func NewRealtime() *Realtime {
	return &Realtime{}
}

// AfterFunc runs f on its own goroutine after d.
func (Realtime) AfterFunc(d time.Duration, f func()) Task {
	return timerTask{timer: time.AfterFunc(d, f)}
}

// Every starts a ticker loop that calls f on each tick.
func (Realtime) Every(d time.Duration, f func()) Task {
	ctx, cancel := context.WithCancel(context.Background())
	task := &loopTask{cancel: cancel}
	go task.loop(ctx, d, f)
	return task
}

// Now returns the current UTC time.
func (Realtime) Now() time.Time {
	return time.Now().UTC()
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() {
	t.timer.Stop()
}

type loopTask struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (t *loopTask) loop(ctx context.Context, d time.Duration, f func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick can race with Cancel; drop it if cancellation won.
			if ctx.Err() != nil {
				return
			}
			f()
		}
	}
}

func (t *loopTask) Cancel() {
	t.once.Do(t.cancel)
}

var (
	_ Scheduler = Realtime{}
	_ Scheduler = (*Manual)(nil)
)
