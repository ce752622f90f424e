// Package experiment compares the outcomes of flag variants.
//
// The comparison is a heuristic: only the first two variants observed for a
// metric are compared and confidence is derived from the relative difference
// alone. It is not a significance test.
package experiment

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	ConversionRate = "conversion_rate"
	EngagementRate = "engagement_rate"
	RevenuePerUser = "revenue_per_user"

	DefaultWindow = 24 * time.Hour

	significanceLevel = 0.95
	maxConfidence     = 0.99
	promoteShare      = 0.7
)

// TrackedMetrics are the metrics every analysis run looks at, in order.
var TrackedMetrics = []string{ConversionRate, EngagementRate, RevenuePerUser}

// SampleSource provides recorded metric values.
type SampleSource interface {
	Samples(flagID, metric string, window time.Duration) []telemetry.Sample
}

// HistorySource provides evaluation records.
type HistorySource interface {
	Select(flagID string, since time.Time) []model.EvaluationRecord
}

type VariantStats struct {
	VariantID  string  `json:"variantId"`
	Mean       float64 `json:"mean"`
	Samples    int     `json:"samples"`
	SampleSize int     `json:"sampleSize"` // evaluations that resolved to the variant
}

type Result struct {
	Metric             string       `json:"metric"`
	Control            VariantStats `json:"control"`
	Test               VariantStats `json:"test"`
	RelativeDifference float64      `json:"relativeDifference"`
	Confidence         float64      `json:"confidence"`
	Significant        bool         `json:"significant"`
	Winner             string       `json:"winner"`
}

type Analyzer struct {
	flags   store.IStore
	history HistorySource
	samples SampleSource
	clock   clockwork.Clock
	logger  *logger.Logger
	window  time.Duration

	mu      sync.RWMutex
	results map[string][]Result
}

func NewAnalyzer(
	flags store.IStore,
	history HistorySource,
	samples SampleSource,
	clock clockwork.Clock,
	log *logger.Logger,
	window time.Duration,
) *Analyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{
		flags:   flags,
		history: history,
		samples: samples,
		clock:   clock,
		logger:  log.Component("experiment"),
		window:  window,
		results: map[string][]Result{},
	}
}

// RunAnalysis compares variants for every tracked metric with enough data and
// stores the outcome for Recommendation.
func (a *Analyzer) RunAnalysis(flagID string) ([]Result, error) {
	flag, ok := a.flags.Get(flagID)
	if !ok {
		return nil, model.NewFlagNotFound(flagID)
	}
	if len(flag.Variants) < 2 {
		return nil, &model.ValidationError{
			FlagID: flagID,
			Err:    model.ErrInsufficientVariants,
			Detail: "experiment analysis needs at least 2 variants",
		}
	}

	distribution := a.VariantDistribution(flagID, a.clock.Now().Add(-a.window))
	results := []Result{}
	for _, metric := range TrackedMetrics {
		res, ok := a.compare(flagID, metric, distribution)
		if !ok {
			continue
		}
		results = append(results, res)
	}

	a.mu.Lock()
	a.results[flagID] = results
	a.mu.Unlock()

	a.logger.Debug("experiment analysed", zap.String(logger.FlagIDField, flagID), zap.Int("results", len(results)))
	return results, nil
}

func (a *Analyzer) compare(flagID, metric string, distribution map[string]int) (Result, bool) {
	order := []string{}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range a.samples.Samples(flagID, metric, a.window) {
		if s.Variant == "" {
			continue
		}
		if _, seen := counts[s.Variant]; !seen {
			order = append(order, s.Variant)
		}
		sums[s.Variant] += s.Value
		counts[s.Variant]++
	}
	if len(order) < 2 {
		return Result{}, false
	}

	stats := func(id string) VariantStats {
		return VariantStats{
			VariantID:  id,
			Mean:       sums[id] / float64(counts[id]),
			Samples:    counts[id],
			SampleSize: distribution[id],
		}
	}
	control, test := stats(order[0]), stats(order[1])
	if control.Mean == 0 {
		return Result{}, false
	}

	diff := math.Abs(test.Mean-control.Mean) / control.Mean
	confidence := math.Min(maxConfidence, diff*2)
	winner := control.VariantID
	if test.Mean > control.Mean {
		winner = test.VariantID
	}

	return Result{
		Metric:             metric,
		Control:            control,
		Test:               test,
		RelativeDifference: diff,
		Confidence:         confidence,
		Significant:        confidence > significanceLevel,
		Winner:             winner,
	}, true
}

// Results returns the outcome of the last analysis run for a flag.
func (a *Analyzer) Results(flagID string) []Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Result(nil), a.results[flagID]...)
}

// Forget drops stored results of a flag.
func (a *Analyzer) Forget(flagID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.results, flagID)
}

// VariantDistribution counts evaluations per variant since the given time.
func (a *Analyzer) VariantDistribution(flagID string, since time.Time) map[string]int {
	out := map[string]int{}
	for _, rec := range a.history.Select(flagID, since) {
		if rec.VariantID != "" {
			out[rec.VariantID]++
		}
	}
	return out
}

// MetricAverage averages every sample of a metric within window, regardless of variant.
func (a *Analyzer) MetricAverage(flagID, metric string, window time.Duration) (float64, bool) {
	samples := a.samples.Samples(flagID, metric, window)
	if len(samples) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples)), true
}
