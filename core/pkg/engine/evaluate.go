package engine

import (
	"github.com/open-feature/flagx/core/pkg/cache"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/telemetry"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

const (
	EvaluationMetric = "flag_evaluation"
	DurationMetric   = "flag_evaluation_duration_ms"
)

// Evaluate returns the value of a flag for ctx. It never fails: unknown flags
// return fallback, or false when fallback is nil.
func (e *Engine) Evaluate(flagID string, ctx model.EvaluationContext, fallback any) any {
	return e.EvaluateDetails(flagID, ctx, fallback).Value
}

// EvaluateDetails is Evaluate with the reason and variant that produced the value.
func (e *Engine) EvaluateDetails(flagID string, ctx model.EvaluationContext, fallback any) model.Resolution {
	start := e.clock.Now()
	generation := e.generation.Load()

	flag, ok := e.flags.Get(flagID)
	if !ok {
		if fallback == nil {
			fallback = false
		}
		e.logger.Warn("flag not found", zap.String(logger.FlagIDField, flagID))
		return model.Resolution{FlagID: flagID, Value: fallback, Reason: model.ReasonFlagNotFound}
	}

	key := cache.Key(flagID, ctx)
	if res, ok := e.cache.Get(key); ok {
		e.metrics.CacheRequests.WithLabelValues("hit").Inc()
		res.Cached = true
		return res
	}
	e.metrics.CacheRequests.WithLabelValues("miss").Inc()

	res := e.evaluator.Resolve(flag, ctx)
	e.evaluations.Add(1)
	e.cache.Set(key, res)
	if e.generation.Load() != generation {
		// the flag may have changed while resolving; do not keep the result
		e.cache.Remove(key)
	}

	code := res.ReasonCode()
	e.history.Append(model.EvaluationRecord{
		ID:        xid.New().String(),
		FlagID:    flagID,
		UserID:    ctx.UserID,
		Value:     res.Value,
		VariantID: res.VariantID,
		Reason:    code,
		Timestamp: start,
		Context:   ctx.Snapshot(),
	})
	e.metrics.Evaluations.WithLabelValues(flagID, res.Reason.String()).Inc()

	tags := map[string]string{
		telemetry.FlagTag:    flagID,
		telemetry.VariantTag: res.VariantID,
		telemetry.ReasonTag:  code,
	}
	if flag.Monitoring.TrackEvents {
		e.sink.RecordMetric(EvaluationMetric, 1, tags)
	}
	if flag.Monitoring.TrackPerformance {
		elapsed := e.clock.Since(start)
		e.sink.RecordMetric(DurationMetric, float64(elapsed.Microseconds())/1000, tags)
	}

	return res
}

// RecordMetric passes a sample to the recorder and every configured sink.
// Samples tagged with flagId (and variant) feed experiment analysis and alerting.
func (e *Engine) RecordMetric(name string, value float64, tags map[string]string) {
	e.sink.RecordMetric(name, value, tags)
}
