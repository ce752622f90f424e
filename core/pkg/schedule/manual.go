package schedule

import (
	"sort"
	"sync"
	"time"
)

type manualTask struct {
	fn       func()
	interval time.Duration
	repeat   bool
}

// Manual is a Scheduler whose tasks only run when fired explicitly.
// It is meant for tests that need full control over timing.
type Manual struct {
	mu    sync.Mutex
	tasks map[string]manualTask
}

func NewManual() *Manual {
	return &Manual{tasks: map[string]manualTask{}}
}

func (m *Manual) AfterFunc(key string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[key] = manualTask{fn: fn, interval: d}
}

func (m *Manual) Every(key string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[key] = manualTask{fn: fn, interval: d, repeat: true}
}

func (m *Manual) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	delete(m.tasks, key)
	return ok
}

func (m *Manual) Pending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	return ok
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = map[string]manualTask{}
}

// Interval returns the delay or period the task under key was registered with.
func (m *Manual) Interval(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[key]
	return t.interval, ok
}

// Keys lists pending task keys in sorted order.
func (m *Manual) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.tasks))
	for k := range m.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fire runs the task under key synchronously. One-shot tasks are removed before
// they run, so they may re-arm themselves. It reports whether a task existed.
func (m *Manual) Fire(key string) bool {
	m.mu.Lock()
	t, ok := m.tasks[key]
	if ok && !t.repeat {
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.fn()
	return true
}
