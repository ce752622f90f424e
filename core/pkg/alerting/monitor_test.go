package alerting

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	telemetrymock "github.com/open-feature/flagx/core/pkg/telemetry/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingActions struct {
	state     *store.State
	disables  []string
	rollbacks []string
}

func (a *recordingActions) EmergencyDisable(id, reason string) error {
	a.disables = append(a.disables, reason)
	_, _, err := a.state.Update(id, func(f *model.Flag) { f.Enabled = false })
	return err
}

func (a *recordingActions) EmergencyRollback(id, reason string) error {
	a.rollbacks = append(a.rollbacks, reason)
	_, _, err := a.state.Update(id, func(f *model.Flag) {
		f.Enabled = false
		f.Rollout.Config.Percentage = 0
	})
	return err
}

type conversions map[string]float64

func (c conversions) MetricAverage(flagID, _ string, _ time.Duration) (float64, bool) {
	v, ok := c[flagID]
	return v, ok
}

type fixture struct {
	state    *store.State
	recorder *telemetry.Recorder
	tasks    *schedule.Manual
	actions  *recordingActions
	conv     conversions
}

func newFixture(t *testing.T, flags ...model.Flag) *fixture {
	t.Helper()
	f := &fixture{
		state:    store.NewFlags(nil),
		recorder: telemetry.NewRecorder(clockwork.NewFakeClock(), 0),
		tasks:    schedule.NewManual(),
		conv:     conversions{},
	}
	f.actions = &recordingActions{state: f.state}
	for _, flag := range flags {
		_, _, err := f.state.Set(flag)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) monitor(opts Options) *Monitor {
	return NewMonitor(f.state, f.recorder, f.conv, f.actions, f.tasks, nil, opts)
}

func guarded(id string, alerts ...model.AlertThreshold) model.Flag {
	return model.Flag{
		ID:         id,
		Enabled:    true,
		Rollout:    model.RolloutStrategy{Type: model.GradualStrategy, Config: model.StrategyConfig{Percentage: 40}},
		Monitoring: model.Monitoring{Alerts: alerts},
	}
}

func (f *fixture) observe(id, metric string, value float64) {
	f.recorder.RecordMetric(metric, value, map[string]string{telemetry.FlagTag: id})
}

func TestStart_RegistersPeriodicCheck(t *testing.T) {
	f := newFixture(t)
	m := f.monitor(Options{})

	m.Start()
	d, ok := f.tasks.Interval(monitorKey)
	require.True(t, ok)
	assert.Equal(t, DefaultInterval, d)

	m.Stop()
	assert.False(t, f.tasks.Pending(monitorKey))
}

func TestCheck_RollbackIsIdempotent(t *testing.T) {
	f := newFixture(t, guarded("checkout",
		model.AlertThreshold{Metric: ErrorRate, Comparator: model.GreaterThan, Threshold: 0.05, Action: model.RollbackAction}))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	m := f.monitor(Options{Metrics: metrics})
	m.Start()

	f.observe("checkout", ErrorRate, 0.2)
	f.tasks.Fire(monitorKey)
	f.tasks.Fire(monitorKey)

	require.Len(t, f.actions.rollbacks, 1)
	assert.Equal(t, "error_rate gt 0.05 (observed 0.2)", f.actions.rollbacks[0])
	flag, _ := f.state.Get("checkout")
	assert.False(t, flag.Enabled)
	assert.Equal(t, 0, flag.Rollout.Config.Percentage)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SafetyActions.WithLabelValues("checkout", "rollback")))
}

func TestCheck_DisableIsIdempotent(t *testing.T) {
	f := newFixture(t, guarded("search",
		model.AlertThreshold{Metric: ResponseTime, Comparator: model.GreaterThan, Threshold: 500, Action: model.DisableAction}))
	m := f.monitor(Options{})

	f.observe("search", ResponseTime, 900)
	m.Check()
	m.Check()

	assert.Len(t, f.actions.disables, 1)
	flag, _ := f.state.Get("search")
	assert.False(t, flag.Enabled)
	assert.Equal(t, 40, flag.Rollout.Config.Percentage)
}

func TestCheck_NotifyLeavesFlagAlone(t *testing.T) {
	f := newFixture(t, guarded("promo",
		model.AlertThreshold{Metric: ConversionRate, Comparator: model.LessThan, Threshold: 0.1, Action: model.NotifyAction}))
	f.conv["promo"] = 0.02

	var alerts []Alert
	m := f.monitor(Options{Notifier: NotifierFunc(func(a Alert) { alerts = append(alerts, a) })})
	m.Check()

	require.Len(t, alerts, 1)
	assert.Equal(t, "promo", alerts[0].FlagID)
	assert.Equal(t, 0.02, alerts[0].Value)
	assert.Empty(t, f.actions.disables)
	flag, _ := f.state.Get("promo")
	assert.True(t, flag.Enabled)
}

func TestCheck_EmitsTriggeredMetric(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := telemetrymock.NewMockSink(ctrl)
	f := newFixture(t, guarded("checkout",
		model.AlertThreshold{Metric: ErrorRate, Comparator: model.EqualTo, Threshold: 1, Action: model.NotifyAction}))
	f.observe("checkout", ErrorRate, 1)

	sink.EXPECT().RecordMetric(TriggeredMetric, 1.0, map[string]string{
		telemetry.FlagTag: "checkout",
		"metric":          ErrorRate,
		"action":          "notify",
	}).Times(1)

	f.monitor(Options{Sink: sink}).Check()
}

func TestCheck_NoSampleOrNoBreach(t *testing.T) {
	f := newFixture(t,
		guarded("quiet",
			model.AlertThreshold{Metric: ErrorRate, Comparator: model.GreaterThan, Threshold: 0.05, Action: model.DisableAction}),
		guarded("healthy",
			model.AlertThreshold{Metric: ErrorRate, Comparator: model.GreaterThan, Threshold: 0.05, Action: model.DisableAction},
			model.AlertThreshold{Metric: ErrorRate, Comparator: "bogus", Threshold: 0, Action: model.DisableAction}),
	)
	f.observe("healthy", ErrorRate, 0.01)

	f.monitor(Options{}).Check()

	assert.Empty(t, f.actions.disables)
}
