package engine

import (
	"github.com/open-feature/flagx/core/pkg/experiment"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"go.uber.org/zap"
)

// GetAnalytics summarises the last hours of evaluations for a flag, or for all
// flags when flagID is empty.
func (e *Engine) GetAnalytics(flagID string, hours int) experiment.Analytics {
	return e.analyzer.Analytics(flagID, hours)
}

func (e *Engine) RunExperimentAnalysis(flagID string) ([]experiment.Result, error) {
	return e.analyzer.RunAnalysis(flagID)
}

// GetRecommendation reads the results of the last analysis run for a flag.
func (e *Engine) GetRecommendation(flagID string) (experiment.Recommendation, error) {
	if _, ok := e.flags.Get(flagID); !ok {
		return experiment.Recommendation{}, model.NewFlagNotFound(flagID)
	}
	return e.analyzer.Recommendation(flagID), nil
}

// PromoteWinner makes the recommended variant the default for everyone. It
// reports false when there is no winner to promote.
func (e *Engine) PromoteWinner(flagID string) (bool, error) {
	rec, err := e.GetRecommendation(flagID)
	if err != nil {
		return false, err
	}
	if rec.Action != experiment.PromoteWinner {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	declared := false
	_, promoted, err := e.mutate(flagID, func(f *model.Flag) bool {
		for _, v := range f.Variants {
			if v.ID == rec.Variant {
				declared = true
				f.DefaultValue = v.Value
				f.Rollout.Config.Percentage = 100
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	if !declared {
		e.logger.Warn("recommended variant is not declared", zap.String(logger.FlagIDField, flagID),
			zap.String("variant", rec.Variant))
		return false, nil
	}
	e.rollout.Cancel(flagID)
	e.logger.Info("winner promoted", zap.String(logger.FlagIDField, flagID), zap.String("variant", rec.Variant),
		zap.Float64("confidence", rec.Confidence))
	return promoted, nil
}
