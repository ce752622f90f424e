// Package eval decides the value of a flag for a request context.
package eval

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"go.uber.org/zap"
)

// IEvaluator resolves a known flag for a context. Implementations never panic
// and always return a usable resolution.
type IEvaluator interface {
	Resolve(flag model.Flag, ctx model.EvaluationContext) model.Resolution
}

type Evaluator struct {
	clock  clockwork.Clock
	logger *logger.Logger

	patterns sync.Map // regex source -> *regexp.Regexp or error
}

func NewEvaluator(clock clockwork.Clock, log *logger.Logger) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &Evaluator{
		clock:  clock,
		logger: log.Component("evaluator"),
	}
}

// Resolve walks the decision steps in order and stops at the first decisive one:
// enabled state, schedule window, targeting rules, rollout strategy.
func (e *Evaluator) Resolve(flag model.Flag, ctx model.EvaluationContext) model.Resolution {
	res := model.Resolution{FlagID: flag.ID, Value: flag.DefaultValue}

	if !flag.Enabled {
		res.Reason = model.ReasonFlagDisabled
		return res
	}

	if flag.Schedule != nil {
		now := e.clock.Now()
		if !flag.Schedule.Started(now) {
			res.Reason = model.ReasonNotStarted
			return res
		}
		if flag.Schedule.Ended(now) {
			res.Reason = model.ReasonExpired
			return res
		}
	}

	if rule, ok := e.firstMatchingRule(flag, ctx); ok {
		res.Value = rule.Value
		res.Reason = model.ReasonTargetingRule
		res.RuleID = rule.ID
		return res
	}

	return e.applyRollout(flag, ctx, res)
}

func (e *Evaluator) firstMatchingRule(flag model.Flag, ctx model.EvaluationContext) (model.TargetingRule, bool) {
	for _, rule := range flag.Rules {
		if !rule.Enabled {
			continue
		}
		if e.matchRule(rule, ctx) {
			e.logger.Debug("targeting rule matched",
				zap.String(logger.FlagIDField, flag.ID), zap.String("rule_id", rule.ID))
			return rule, true
		}
	}
	return model.TargetingRule{}, false
}

func (e *Evaluator) applyRollout(flag model.Flag, ctx model.EvaluationContext, res model.Resolution) model.Resolution {
	cfg := flag.Rollout.Config

	switch flag.Rollout.Type {
	case model.ImmediateStrategy:
		res.Reason = model.ReasonImmediateRollout
	case model.ScheduledStrategy:
		res.Reason = model.ReasonScheduledRollout
	case model.GradualStrategy, model.UserBasedStrategy:
		bucket := Bucket(ctx.Identity(), flag.ID)
		if bucket >= cfg.Percentage {
			res.Reason = model.ReasonRolloutExcluded
			return res
		}
		if v, ok := SelectVariant(flag.Variants, bucket); ok {
			res.Value = v.Value
			res.VariantID = v.ID
			res.Reason = model.ReasonVariantSelected
			return res
		}
		res.Reason = model.ReasonRolloutIncluded
	case model.GeographicStrategy:
		if geoIncluded(ctx.Country, cfg.GeoTargets) {
			res.Reason = model.ReasonGeoIncluded
		} else {
			res.Reason = model.ReasonGeoExcluded
		}
	default:
		e.logger.Warn("unknown rollout strategy",
			zap.String(logger.FlagIDField, flag.ID), zap.String("strategy", string(flag.Rollout.Type)))
		res.Reason = model.ReasonUnknownStrategy
	}
	return res
}

func geoIncluded(country string, targets []string) bool {
	if country == "" || len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == country {
			return true
		}
	}
	return false
}
