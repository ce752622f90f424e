package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/alerting"
	"github.com/open-feature/flagx/core/pkg/cache"
	"github.com/open-feature/flagx/core/pkg/experiment"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/rollout"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	CacheTTL         time.Duration
	CacheSize        int
	HistoryLimit     int
	SeriesLimit      int
	ScheduleInterval time.Duration
	AlertInterval    time.Duration
	MetricLookback   time.Duration
	AnalysisWindow   time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:         cache.DefaultTTL,
		CacheSize:        cache.DefaultSize,
		HistoryLimit:     store.DefaultHistoryLimit,
		SeriesLimit:      telemetry.DefaultSeriesLimit,
		ScheduleInterval: rollout.DefaultScanInterval,
		AlertInterval:    alerting.DefaultInterval,
		MetricLookback:   alerting.DefaultLookback,
		AnalysisWindow:   experiment.DefaultWindow,
	}
}

type options struct {
	clock    clockwork.Clock
	tasks    schedule.Scheduler
	sinks    []telemetry.Sink
	logger   *logger.Logger
	registry *prometheus.Registry
	notifier alerting.Notifier
	defaults []model.Flag
	hasFlags bool
}

type Option func(*options)

// WithClock replaces the wall clock, typically with a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithScheduler replaces the timer facility. A scheduler passed in is not
// stopped by Engine.Stop beyond the tasks the engine registered.
func WithScheduler(tasks schedule.Scheduler) Option {
	return func(o *options) { o.tasks = tasks }
}

// WithSink adds a metrics sink. The in-memory recorder is always present.
func WithSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sink) }
}

func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithRegistry registers the engine's prometheus instruments with reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithNotifier(n alerting.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithDefaultFlags replaces the flags loaded by Start. An empty list loads none.
func WithDefaultFlags(flags ...model.Flag) Option {
	return func(o *options) {
		o.defaults = flags
		o.hasFlags = true
	}
}
