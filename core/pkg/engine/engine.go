// Package engine is the entry point of the flag system. An Engine owns the
// flag registry, evaluation cache, history and every background task; callers
// construct one with New and drive it with Start and Stop.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/alerting"
	"github.com/open-feature/flagx/core/pkg/cache"
	"github.com/open-feature/flagx/core/pkg/eval"
	"github.com/open-feature/flagx/core/pkg/experiment"
	"github.com/open-feature/flagx/core/pkg/flagsync"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/rollout"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Engine struct {
	cfg    Config
	clock  clockwork.Clock
	logger *logger.Logger

	flags     *store.State
	history   *store.History
	cache     *cache.EvaluationCache
	evaluator eval.IEvaluator
	recorder  *telemetry.Recorder
	sink      *telemetry.Multi
	metrics   *telemetry.Metrics
	registry  *prometheus.Registry
	mux       *flagsync.Multiplexer

	tasks     schedule.Scheduler
	ownsTasks bool
	rollout   *rollout.Scheduler
	analyzer  *experiment.Analyzer
	monitor   *alerting.Monitor

	defaults []model.Flag

	mu          sync.Mutex // serializes mutations
	started     bool
	stopped     chan struct{}
	evaluations atomic.Int64
	generation  atomic.Uint64 // bumped on every stored change
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = logger.NewLogger(nil)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if !o.hasFlags {
		o.defaults = DefaultFlags()
	}

	evalCache, err := cache.New(cfg.CacheSize, cfg.CacheTTL, o.clock)
	if err != nil {
		return nil, fmt.Errorf("unable to create evaluation cache: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		clock:     o.clock,
		logger:    o.logger.Component("engine"),
		flags:     store.NewFlags(o.logger),
		history:   store.NewHistory(cfg.HistoryLimit),
		cache:     evalCache,
		evaluator: eval.NewEvaluator(o.clock, o.logger),
		recorder:  telemetry.NewRecorder(o.clock, cfg.SeriesLimit),
		metrics:   telemetry.NewMetrics(o.registry),
		registry:  o.registry,
		tasks:     o.tasks,
		defaults:  o.defaults,
	}
	if e.tasks == nil {
		e.tasks = schedule.NewClockScheduler(o.clock)
		e.ownsTasks = true
	}

	e.sink = telemetry.NewMulti(e.recorder, e.metrics)
	for _, s := range o.sinks {
		e.sink.Add(s)
	}

	e.mux, err = flagsync.NewMux(e.flags)
	if err != nil {
		return nil, fmt.Errorf("unable to create notification multiplexer: %w", err)
	}

	e.rollout = rollout.New(e.flags, e, e.tasks, o.clock, o.logger, cfg.ScheduleInterval)
	e.analyzer = experiment.NewAnalyzer(e.flags, e.history, e.recorder, o.clock, o.logger, cfg.AnalysisWindow)
	e.monitor = alerting.NewMonitor(e.flags, e.recorder, e.analyzer, e, e.tasks, o.logger, alerting.Options{
		Interval: cfg.AlertInterval,
		Lookback: cfg.MetricLookback,
		Notifier: o.notifier,
		Sink:     e.sink,
		Metrics:  e.metrics,
	})

	return e, nil
}

// Start loads the default flags that are not defined yet, then arms rollout
// timers, the schedule scan and the alert monitor. The engine stops when ctx
// is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	for _, flag := range e.defaults {
		if _, ok := e.flags.Get(flag.ID); ok {
			continue
		}
		if _, err := e.createOrUpdate(flag); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("unable to load default flag %s: %w", flag.ID, err)
		}
	}
	e.started = true
	e.stopped = make(chan struct{})
	stopped := e.stopped
	e.rollout.Start()
	e.monitor.Start()
	e.mu.Unlock()

	e.logger.Info("engine started", zap.Int("flags", len(e.flags.GetAll())))

	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-stopped:
		}
	}()
	return nil
}

// Stop cancels every timer the engine owns. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	e.started = false
	close(e.stopped)
	e.rollout.Stop()
	e.monitor.Stop()
	if e.ownsTasks {
		e.tasks.Stop()
	}
	e.cache.Purge()
	e.logger.Info("engine stopped")
}

// EvaluationCount reports how many evaluations were computed rather than served from cache.
func (e *Engine) EvaluationCount() int64 {
	return e.evaluations.Load()
}

// Gatherer exposes the engine's prometheus instruments.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.registry
}
