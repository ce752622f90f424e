package experiment

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	flags    *store.State
	history  *store.History
	recorder *telemetry.Recorder
	clock    *clockwork.FakeClock
	analyzer *Analyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	f := &fixture{
		flags:    store.NewFlags(nil),
		history:  store.NewHistory(0),
		recorder: telemetry.NewRecorder(clock, 0),
		clock:    clock,
	}
	f.analyzer = NewAnalyzer(f.flags, f.history, f.recorder, clock, nil, 0)

	_, _, err := f.flags.Set(model.Flag{
		ID:      "checkout",
		Enabled: true,
		Variants: []model.Variant{
			{ID: "control", Value: "old", Weight: 50},
			{ID: "treatment", Value: "new", Weight: 50},
		},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) record(metric, variant string, value float64) {
	f.recorder.RecordMetric(metric, value, map[string]string{
		telemetry.FlagTag:    "checkout",
		telemetry.VariantTag: variant,
	})
}

func TestRunAnalysis_UnknownFlag(t *testing.T) {
	f := newFixture(t)

	_, err := f.analyzer.RunAnalysis("missing")

	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, model.ErrFlagNotFound)
}

func TestRunAnalysis_NeedsTwoVariants(t *testing.T) {
	f := newFixture(t)
	_, _, _ = f.flags.Set(model.Flag{ID: "single", Variants: []model.Variant{{ID: "only", Weight: 100}}})

	_, err := f.analyzer.RunAnalysis("single")

	var valErr *model.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.ErrorIs(t, err, model.ErrInsufficientVariants)
}

func TestRunAnalysis_ConsistentLiftPromotesWinner(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 100; i++ {
		f.record(ConversionRate, "control", 0.10)
		f.record(ConversionRate, "treatment", 0.15)
		f.history.Append(model.EvaluationRecord{FlagID: "checkout", VariantID: "treatment", Timestamp: f.clock.Now()})
	}

	results, err := f.analyzer.RunAnalysis("checkout")
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, ConversionRate, res.Metric)
	assert.Equal(t, "control", res.Control.VariantID)
	assert.Equal(t, "treatment", res.Test.VariantID)
	assert.InDelta(t, 0.5, res.RelativeDifference, 1e-9)
	assert.Equal(t, 0.99, res.Confidence)
	assert.True(t, res.Significant)
	assert.Equal(t, "treatment", res.Winner)
	assert.Equal(t, 100, res.Test.SampleSize)

	rec := f.analyzer.Recommendation("checkout")
	assert.Equal(t, PromoteWinner, rec.Action)
	assert.Equal(t, "treatment", rec.Variant)
	assert.Equal(t, 0.99, rec.Confidence)
}

func TestRunAnalysis_SkipsUnusableMetrics(t *testing.T) {
	f := newFixture(t)
	f.record(EngagementRate, "control", 0.5) // one variant only
	f.record(RevenuePerUser, "control", 0)   // zero control
	f.record(RevenuePerUser, "treatment", 3)

	results, err := f.analyzer.RunAnalysis("checkout")

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, Continue, f.analyzer.Recommendation("checkout").Action)
}

func TestRunAnalysis_OnlyFirstTwoVariantsCompared(t *testing.T) {
	f := newFixture(t)
	f.record(ConversionRate, "treatment", 0.2)
	f.record(ConversionRate, "control", 0.2)
	f.record(ConversionRate, "third", 10)

	results, err := f.analyzer.RunAnalysis("checkout")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "treatment", results[0].Control.VariantID)
	assert.Equal(t, "control", results[0].Test.VariantID)
	assert.Equal(t, 0.0, results[0].Confidence)
	assert.Equal(t, "treatment", results[0].Winner, "ties go to control")
}

func TestRecommendation(t *testing.T) {
	significant := func(metric, winner string, confidence float64) Result {
		return Result{Metric: metric, Confidence: confidence, Significant: true, Winner: winner}
	}

	tests := map[string]struct {
		results []Result
		want    Recommendation
	}{
		"no results": {
			want: Recommendation{Action: Continue, Reason: "no analysis results yet"},
		},
		"nothing significant": {
			results: []Result{{Metric: ConversionRate, Confidence: 0.4, Winner: "a"}},
			want:    Recommendation{Action: ExtendTest, Reason: "no metric reached significance"},
		},
		"clear winner": {
			results: []Result{
				significant(ConversionRate, "b", 0.96),
				significant(EngagementRate, "b", 0.99),
				significant(RevenuePerUser, "b", 0.97),
			},
			want: Recommendation{Action: PromoteWinner, Variant: "b", Confidence: 0.99,
				Reason: "variant wins the majority of significant metrics"},
		},
		"mixed": {
			results: []Result{
				significant(ConversionRate, "a", 0.96),
				significant(EngagementRate, "b", 0.98),
			},
			want: Recommendation{Action: Continue, Confidence: 0.98, Reason: "mixed results across metrics"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.analyzer.results["checkout"] = tt.results

			assert.Equal(t, tt.want, f.analyzer.Recommendation("checkout"))
		})
	}
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.history.Append(model.EvaluationRecord{FlagID: "old", UserID: "u0", Value: true, Reason: "immediate_rollout",
		Timestamp: now.Add(-48 * time.Hour)})
	f.history.Append(model.EvaluationRecord{FlagID: "checkout", UserID: "u1", Value: "new", VariantID: "treatment",
		Reason: "variant_selected", Timestamp: now})
	f.history.Append(model.EvaluationRecord{FlagID: "checkout", UserID: "u1", Value: "new", VariantID: "treatment",
		Reason: "variant_selected", Timestamp: now})
	f.history.Append(model.EvaluationRecord{FlagID: "other", UserID: "u2", Value: false, Reason: "flag_disabled",
		Timestamp: now})

	all := f.analyzer.Analytics("", 24)
	assert.Equal(t, 3, all.TotalEvaluations)
	assert.Equal(t, 2, all.UniqueUsers)
	assert.Equal(t, map[string]int{"checkout": 2, "other": 1}, all.Flags)
	assert.Equal(t, map[string]int{"variant_selected": 2, "flag_disabled": 1}, all.Reasons)

	one := f.analyzer.Analytics("checkout", 0)
	assert.Equal(t, 24, one.Hours)
	assert.Equal(t, 2, one.TotalEvaluations)
	assert.Equal(t, map[string]int{"treatment": 2}, one.Variants)
	assert.Equal(t, map[string]int{"new": 2}, one.Values)
}

func TestMetricAverage(t *testing.T) {
	f := newFixture(t)
	f.record(ConversionRate, "control", 0.1)
	f.clock.Advance(2 * time.Hour)
	f.record(ConversionRate, "treatment", 0.3)
	f.record(ConversionRate, "control", 0.5)

	avg, ok := f.analyzer.MetricAverage("checkout", ConversionRate, time.Hour)
	require.True(t, ok)
	assert.InDelta(t, 0.4, avg, 1e-9)

	_, ok = f.analyzer.MetricAverage("checkout", EngagementRate, time.Hour)
	assert.False(t, ok)
}
