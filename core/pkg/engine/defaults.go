package engine

import "github.com/open-feature/flagx/core/pkg/model"

// DefaultFlags returns the flags an engine starts with when none are supplied.
func DefaultFlags() []model.Flag {
	return []model.Flag{
		{
			ID:           "new-checkout-flow",
			Name:         "New checkout flow",
			Description:  "Gradually roll out the redesigned checkout",
			Type:         model.BooleanType,
			DefaultValue: true,
			Enabled:      true,
			Rollout: model.RolloutStrategy{
				Type: model.GradualStrategy,
				Config: model.StrategyConfig{
					Percentage:          10,
					IncrementPercentage: 10,
					IncrementInterval:   60,
				},
			},
			Monitoring: model.Monitoring{
				TrackEvents:      true,
				TrackPerformance: true,
				Alerts: []model.AlertThreshold{
					{Metric: "error_rate", Comparator: model.GreaterThan, Threshold: 0.05, Action: model.RollbackAction},
				},
			},
			Metadata: model.Metadata{Tags: []string{"checkout"}, Environment: "production"},
		},
		{
			ID:           "premium-features",
			Name:         "Premium features",
			Type:         model.BooleanType,
			DefaultValue: false,
			Enabled:      true,
			Rollout:      model.RolloutStrategy{Type: model.ImmediateStrategy},
			Rules: []model.TargetingRule{
				{
					ID:       "premium-users",
					Operator: model.RuleAnd,
					Enabled:  true,
					Value:    true,
					Conditions: []model.TargetingCondition{
						{Attribute: "userType", Operator: model.OpEquals, Value: "premium"},
					},
				},
			},
			Metadata: model.Metadata{Tags: []string{"billing"}, Environment: "production"},
		},
		{
			ID:           "button-color-test",
			Name:         "Button color experiment",
			Type:         model.StringType,
			DefaultValue: "blue",
			Enabled:      true,
			Rollout: model.RolloutStrategy{
				Type:   model.UserBasedStrategy,
				Config: model.StrategyConfig{Percentage: 100},
			},
			Variants: []model.Variant{
				{ID: "control", Name: "Blue", Value: "blue", Weight: 50},
				{ID: "treatment", Name: "Green", Value: "green", Weight: 50},
			},
			Monitoring: model.Monitoring{
				TrackEvents: true,
				Alerts: []model.AlertThreshold{
					{Metric: "conversion_rate", Comparator: model.LessThan, Threshold: 0.01, Action: model.NotifyAction},
				},
			},
			Metadata: model.Metadata{Tags: []string{"experiment"}, Environment: "production"},
		},
		{
			ID:           "dark-mode",
			Name:         "Dark mode",
			Type:         model.BooleanType,
			DefaultValue: false,
			Enabled:      false,
			Rollout:      model.RolloutStrategy{Type: model.ImmediateStrategy},
		},
	}
}
