package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type task struct {
	stop func() bool
	gen  uint64
}

// ClockScheduler drives tasks from a clockwork clock, so a fake clock can
// advance them in tests.
type ClockScheduler struct {
	clock clockwork.Clock

	mu    sync.Mutex
	tasks map[string]task
	gen   uint64
}

func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockScheduler{clock: clock, tasks: map[string]task{}}
}

func (s *ClockScheduler) AfterFunc(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	s.gen++
	gen := s.gen
	timer := s.clock.AfterFunc(d, func() {
		// the task may have been replaced or cancelled while the timer fired
		if !s.finish(key, gen) {
			return
		}
		fn()
	})
	s.tasks[key] = task{stop: timer.Stop, gen: gen}
}

func (s *ClockScheduler) Every(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	s.gen++
	ticker := s.clock.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				fn()
			}
		}
	}()
	s.tasks[key] = task{
		gen: s.gen,
		stop: func() bool {
			once.Do(func() {
				ticker.Stop()
				close(done)
			})
			return true
		},
	}
}

func (s *ClockScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

func (s *ClockScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *ClockScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.tasks {
		s.cancelLocked(key)
	}
}

func (s *ClockScheduler) cancelLocked(key string) bool {
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.stop()
	delete(s.tasks, key)
	return true
}

// finish removes a fired one-shot task, returning false if it is stale.
func (s *ClockScheduler) finish(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok || t.gen != gen {
		return false
	}
	delete(s.tasks, key)
	return true
}
