// Package alerting watches flag metrics against their declared thresholds and
// applies the configured safety action when one is breached.
package alerting

import (
	"fmt"
	"time"

	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultLookback = 5 * time.Minute

	ErrorRate      = "error_rate"
	ResponseTime   = "response_time"
	ConversionRate = "conversion_rate"

	// TriggeredMetric is emitted once per breached threshold.
	TriggeredMetric = "flag_alert_triggered"

	conversionWindow = time.Hour
	monitorKey       = "alerting/monitor"
)

// Means provides recent metric averages from recorded samples.
type Means interface {
	Mean(flagID, metric string, window time.Duration) (float64, bool)
}

// Conversions provides the conversion rate as seen by the experiment analyzer.
type Conversions interface {
	MetricAverage(flagID, metric string, window time.Duration) (float64, bool)
}

// Actions applies safety changes to flags.
type Actions interface {
	EmergencyDisable(flagID, reason string) error
	EmergencyRollback(flagID, reason string) error
}

type Options struct {
	Interval time.Duration
	Lookback time.Duration
	Notifier Notifier
	Sink     telemetry.Sink
	Metrics  *telemetry.Metrics
}

type Monitor struct {
	flags       store.IStore
	means       Means
	conversions Conversions
	actions     Actions
	tasks       schedule.Scheduler
	logger      *logger.Logger

	interval time.Duration
	lookback time.Duration
	notifier Notifier
	sink     telemetry.Sink
	metrics  *telemetry.Metrics
}

func NewMonitor(
	flags store.IStore,
	means Means,
	conversions Conversions,
	actions Actions,
	tasks schedule.Scheduler,
	log *logger.Logger,
	opts Options,
) *Monitor {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	m := &Monitor{
		flags:       flags,
		means:       means,
		conversions: conversions,
		actions:     actions,
		tasks:       tasks,
		logger:      log.Component("alerting"),
		interval:    opts.Interval,
		lookback:    opts.Lookback,
		notifier:    opts.Notifier,
		sink:        opts.Sink,
		metrics:     opts.Metrics,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.lookback <= 0 {
		m.lookback = DefaultLookback
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}
	if m.sink == nil {
		m.sink = telemetry.SinkFunc(func(string, float64, map[string]string) {})
	}
	return m
}

func (m *Monitor) Start() {
	m.tasks.Every(monitorKey, m.interval, m.Check)
}

func (m *Monitor) Stop() {
	m.tasks.Cancel(monitorKey)
}

// Check samples every threshold of every flag once.
func (m *Monitor) Check() {
	for _, flag := range m.flags.GetAll() {
		for _, threshold := range flag.Monitoring.Alerts {
			value, ok := m.sample(flag.ID, threshold.Metric)
			if !ok || !breached(value, threshold) {
				continue
			}
			m.trigger(flag, threshold, value)
		}
	}
}

func (m *Monitor) sample(flagID, metric string) (float64, bool) {
	if metric == ConversionRate {
		return m.conversions.MetricAverage(flagID, metric, conversionWindow)
	}
	return m.means.Mean(flagID, metric, m.lookback)
}

func breached(value float64, t model.AlertThreshold) bool {
	switch t.Comparator {
	case model.GreaterThan:
		return value > t.Threshold
	case model.LessThan:
		return value < t.Threshold
	case model.EqualTo:
		return value == t.Threshold
	default:
		return false
	}
}

func (m *Monitor) trigger(flag model.Flag, t model.AlertThreshold, value float64) {
	reason := fmt.Sprintf("%s %s %g (observed %g)", t.Metric, t.Comparator, t.Threshold, value)
	fields := []zap.Field{
		zap.String(logger.FlagIDField, flag.ID),
		zap.String("metric", t.Metric),
		zap.String("action", string(t.Action)),
		zap.Float64("value", value),
		zap.Float64("threshold", t.Threshold),
	}
	m.logger.Warn("alert threshold breached", fields...)
	m.sink.RecordMetric(TriggeredMetric, 1, map[string]string{
		telemetry.FlagTag: flag.ID,
		"metric":          t.Metric,
		"action":          string(t.Action),
	})

	var err error
	switch t.Action {
	case model.NotifyAction:
		m.notifier.Notify(Alert{FlagID: flag.ID, Threshold: t, Value: value, Reason: reason})
		return
	case model.DisableAction:
		if !flag.Enabled {
			m.logger.Debug("flag already disabled", fields...)
			return
		}
		err = m.actions.EmergencyDisable(flag.ID, reason)
	case model.RollbackAction:
		if !flag.Enabled && flag.Rollout.Config.Percentage == 0 {
			m.logger.Debug("flag already rolled back", fields...)
			return
		}
		err = m.actions.EmergencyRollback(flag.ID, reason)
	default:
		m.logger.Debug("unknown alert action", fields...)
		return
	}

	if err != nil {
		m.logger.Error("safety action failed", append(fields, zap.Error(err))...)
		return
	}
	if m.metrics != nil {
		m.metrics.SafetyActions.WithLabelValues(flag.ID, string(t.Action)).Inc()
	}
}
