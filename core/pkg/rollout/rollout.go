// Package rollout ramps gradual flags over time and enforces schedule windows.
package rollout

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"go.uber.org/zap"
)

const (
	DefaultScanInterval = 30 * time.Second

	scanKey   = "rollout/schedule-scan"
	keyPrefix = "rollout/"
)

// Mutator applies rollout decisions. fn runs against the current definition
// under the same lock as every other mutation and reports whether it changed
// anything; the engine implements it so that every change goes through the
// same invalidation and notification path.
type Mutator interface {
	MutateFlag(id string, fn func(*model.Flag) bool) (model.Flag, bool, error)
}

// Scheduler owns the per-flag increment timers and the schedule window scan.
type Scheduler struct {
	flags        store.IStore
	mutator      Mutator
	tasks        schedule.Scheduler
	clock        clockwork.Clock
	logger       *logger.Logger
	scanInterval time.Duration

	mu      sync.Mutex
	running bool
	armed   map[string]struct{}
}

func New(
	flags store.IStore,
	mutator Mutator,
	tasks schedule.Scheduler,
	clock clockwork.Clock,
	log *logger.Logger,
	scanInterval time.Duration,
) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	return &Scheduler{
		flags:        flags,
		mutator:      mutator,
		tasks:        tasks,
		clock:        clock,
		logger:       log.Component("rollout"),
		scanInterval: scanInterval,
		armed:        map[string]struct{}{},
	}
}

func Key(flagID string) string {
	return keyPrefix + flagID
}

// Start arms every gradual flag and the schedule scan.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	for _, flag := range s.flags.Gradual() {
		s.Register(flag)
	}
	s.tasks.Every(scanKey, s.scanInterval, s.ScanSchedules)
	s.logger.Debug("rollout scheduler started", zap.Duration("scan_interval", s.scanInterval))
}

// Stop cancels every task this scheduler owns. Later registrations are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	for id := range s.armed {
		s.tasks.Cancel(Key(id))
	}
	s.armed = map[string]struct{}{}
	s.tasks.Cancel(scanKey)
}

// Register arms the increment timer of a gradual flag that still has room to
// grow, and cancels it for anything else.
func (s *Scheduler) Register(flag model.Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(flag)
}

// Cancel disarms the increment timer of a flag.
func (s *Scheduler) Cancel(flagID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel(flagID)
}

func (s *Scheduler) Armed(flagID string) bool {
	return s.tasks.Pending(Key(flagID))
}

func (s *Scheduler) register(flag model.Flag) {
	cfg := flag.Rollout.Config
	if !s.running || !flag.IsGradual() || flag.Metadata.SafetyAction != "" || cfg.Percentage >= 100 ||
		cfg.IncrementPercentage <= 0 || cfg.IncrementInterval <= 0 {
		s.cancel(flag.ID)
		return
	}

	id := flag.ID
	s.armed[id] = struct{}{}
	s.tasks.AfterFunc(Key(id), time.Duration(cfg.IncrementInterval)*time.Minute, func() {
		s.increment(id)
	})
}

func (s *Scheduler) cancel(flagID string) {
	delete(s.armed, flagID)
	s.tasks.Cancel(Key(flagID))
}

func (s *Scheduler) increment(id string) {
	s.mu.Lock()
	delete(s.armed, id)
	s.mu.Unlock()

	var from int
	flag, changed, err := s.mutator.MutateFlag(id, func(f *model.Flag) bool {
		cfg := f.Rollout.Config
		if !f.IsGradual() || f.Metadata.SafetyAction != "" || cfg.Percentage >= 100 || cfg.IncrementPercentage <= 0 {
			return false
		}
		from = cfg.Percentage
		f.Rollout.Config.Percentage = model.ClampPercentage(cfg.Percentage + cfg.IncrementPercentage)
		return true
	})
	switch {
	case errors.Is(err, model.ErrFlagNotFound):
		return
	case err != nil:
		s.logger.Warn("rollout increment failed", zap.String(logger.FlagIDField, id), zap.Error(err))
		return
	case !changed:
		return
	}
	s.logger.Info("rollout percentage increased",
		zap.String(logger.FlagIDField, id), zap.Int("from", from), zap.Int("to", flag.Rollout.Config.Percentage))

	// re-read under the lock so a concurrent delete or rollback cannot leave a timer behind
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.flags.Get(id); ok {
		s.register(current)
	}
}

// ScanSchedules enables flags whose window opened and disables flags whose
// window closed. Flags switched off by the safety layer stay off.
func (s *Scheduler) ScanSchedules() {
	now := s.clock.Now()
	for _, flag := range s.flags.Scheduled() {
		s.applyWindow(flag.ID, now)
	}
}

func (s *Scheduler) applyWindow(id string, now time.Time) {
	flag, changed, err := s.mutator.MutateFlag(id, func(f *model.Flag) bool {
		sch := f.Schedule
		if sch == nil {
			return false
		}
		ended := sch.Ended(now)
		switch {
		case f.Enabled && ended:
			f.Enabled = false
		case !f.Enabled && sch.Start != nil && sch.Started(now) && !ended && f.Metadata.SafetyAction == "":
			f.Enabled = true
		default:
			return false
		}
		return true
	})
	if err != nil {
		if !errors.Is(err, model.ErrFlagNotFound) {
			s.logger.Warn("schedule toggle failed", zap.String(logger.FlagIDField, id), zap.Error(err))
		}
		return
	}
	if changed {
		s.logger.Info("schedule window toggled flag",
			zap.String(logger.FlagIDField, id), zap.Bool("enabled", flag.Enabled))
	}
}
