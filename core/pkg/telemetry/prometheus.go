package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's own instruments plus a generic vector that mirrors
// samples passed through RecordMetric.
type Metrics struct {
	Evaluations   *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	SafetyActions *prometheus.CounterVec
	RolloutPct    *prometheus.GaugeVec
	samples       *prometheus.HistogramVec
}

// NewMetrics registers the instruments with reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flagx_evaluations_total",
				Help: "Total number of fresh flag evaluations",
			},
			[]string{"flag", "reason"},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flagx_cache_requests_total",
				Help: "Evaluation cache lookups",
			},
			[]string{"result"}, // hit/miss
		),
		SafetyActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flagx_safety_actions_total",
				Help: "Alert actions triggered by threshold breaches",
			},
			[]string{"flag", "action"},
		),
		RolloutPct: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flagx_rollout_percentage",
				Help: "Current rollout percentage per flag",
			},
			[]string{"flag"},
		),
		samples: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flagx_metric_value",
				Help:    "Values reported through RecordMetric",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"name", "flag", "variant"},
		),
	}
}

// RecordMetric makes Metrics usable as a Sink.
func (m *Metrics) RecordMetric(name string, value float64, tags map[string]string) {
	m.samples.WithLabelValues(name, tags[FlagTag], tags[VariantTag]).Observe(value)
}
