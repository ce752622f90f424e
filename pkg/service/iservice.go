package service

import (
	"context"

	"github.com/open-feature/flagx/core/pkg/experiment"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

// IFlagEngine is the part of the engine a service exposes.
type IFlagEngine interface {
	EvaluateDetails(flagID string, ctx model.EvaluationContext, fallback any) model.Resolution
	GetAllFlags() []model.Flag
	GetFlag(flagID string) (model.Flag, bool)
	CreateOrUpdateFlag(flag model.Flag) (model.Flag, error)
	DeleteFlag(flagID string) bool
	SetEnabled(flagID string, enabled bool) error
	SetRolloutPercentage(flagID string, pct int) error
	EmergencyRollback(flagID, reason string) error
	GetAnalytics(flagID string, hours int) experiment.Analytics
	RunExperimentAnalysis(flagID string) ([]experiment.Result, error)
	GetRecommendation(flagID string) (experiment.Recommendation, error)
	PromoteWinner(flagID string) (bool, error)
	RecordMetric(name string, value float64, tags map[string]string)
	Gatherer() prometheus.Gatherer
}

// IService exposes an engine to remote callers until ctx is cancelled.
type IService interface {
	Serve(ctx context.Context, eng IFlagEngine) error
}
