package scheduler

import (
	"sync"
	"time"
)

// Manual is a virtual clock. Callbacks run synchronously on the goroutine
// that calls Advance, in due-time order; ties run in scheduling order.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

// NewManual returns a virtual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

type manualTask struct {
	owner     *Manual
	due       time.Time
	period    time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.cancelled = true
	t.owner.removeLocked(t)
}

// AfterFunc registers f to run once the clock has moved by d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	return m.add(d, 0, f)
}

// Every registers f to run each time the clock crosses a multiple of d.
func (m *Manual) Every(d time.Duration, f func()) Task {
	if d <= 0 {
		panic("scheduler: non-positive interval")
	}
	return m.add(d, d, f)
}

// Now reports the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending reports how many tasks are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, running every callback that becomes
// due. Callbacks may schedule or cancel other tasks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		m.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			m.removeLocked(next)
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) add(d, period time.Duration, f func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	task := &manualTask{
		owner:  m,
		due:    m.now.Add(d),
		period: period,
		seq:    m.seq,
		fn:     f,
	}
	m.tasks = append(m.tasks, task)
	return task
}

func (m *Manual) nextDueLocked(limit time.Time) *manualTask {
	var next *manualTask
	for _, task := range m.tasks {
		if task.cancelled || task.due.After(limit) {
			continue
		}
		if next == nil || task.due.Before(next.due) || (task.due.Equal(next.due) && task.seq < next.seq) {
			next = task
		}
	}
	return next
}

func (m *Manual) removeLocked(target *manualTask) {
	for i, task := range m.tasks {
		if task == target {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}
