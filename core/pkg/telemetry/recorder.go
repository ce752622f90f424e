package telemetry

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultSeriesLimit = 5000

// Sample is one recorded metric value.
type Sample struct {
	Variant   string
	Value     float64
	Timestamp time.Time
}

type seriesKey struct {
	flagID string
	metric string
}

// Recorder keeps recent samples per flag and metric in memory. It is the
// source the analyzer and the alert monitor read from.
type Recorder struct {
	clock clockwork.Clock
	limit int

	mu     sync.RWMutex
	series map[seriesKey][]Sample
}

func NewRecorder(clock clockwork.Clock, limit int) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	return &Recorder{clock: clock, limit: limit, series: map[seriesKey][]Sample{}}
}

// RecordMetric stores samples that carry a flag tag; others are ignored.
func (r *Recorder) RecordMetric(name string, value float64, tags map[string]string) {
	flagID := tags[FlagTag]
	if flagID == "" {
		return
	}
	key := seriesKey{flagID: flagID, metric: name}
	sample := Sample{Variant: tags[VariantTag], Value: value, Timestamp: r.clock.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := append(r.series[key], sample)
	if len(s) > r.limit {
		s = s[len(s)-r.limit:]
	}
	r.series[key] = s
}

// Samples returns, oldest first, the samples of a metric for a flag recorded within window.
func (r *Recorder) Samples(flagID, metric string, window time.Duration) []Sample {
	since := r.clock.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Sample{}
	for _, s := range r.series[seriesKey{flagID: flagID, metric: metric}] {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

// Mean averages the samples within window. ok is false when there are none.
func (r *Recorder) Mean(flagID, metric string, window time.Duration) (mean float64, ok bool) {
	samples := r.Samples(flagID, metric, window)
	if len(samples) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples)), true
}

// Forget drops every series of a flag.
func (r *Recorder) Forget(flagID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.series {
		if k.flagID == flagID {
			delete(r.series, k)
		}
	}
}
