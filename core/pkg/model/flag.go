package model

import (
	"encoding/json"
	"time"
)

type FlagType string

const (
	BooleanType    FlagType = "boolean"
	StringType     FlagType = "string"
	NumberType     FlagType = "number"
	JSONType       FlagType = "json"
	PercentageType FlagType = "percentage"
)

type StrategyType string

const (
	ImmediateStrategy  StrategyType = "immediate"
	GradualStrategy    StrategyType = "gradual"
	ScheduledStrategy  StrategyType = "scheduled"
	UserBasedStrategy  StrategyType = "user_based"
	GeographicStrategy StrategyType = "geographic"
)

type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "not_in"
	OpRegex       ConditionOperator = "regex"
)

type RuleOperator string

const (
	RuleAnd RuleOperator = "AND"
	RuleOr  RuleOperator = "OR"
)

// Flag is a complete flag definition as held by the store.
type Flag struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Type         FlagType        `json:"type"`
	DefaultValue any             `json:"defaultValue"`
	Enabled      bool            `json:"enabled"`
	Rollout      RolloutStrategy `json:"rolloutStrategy"`
	Rules        []TargetingRule `json:"targetingRules,omitempty"`
	Variants     []Variant       `json:"variants,omitempty"`
	Monitoring   Monitoring      `json:"monitoring"`
	Schedule     *Schedule       `json:"schedule,omitempty"`
	Metadata     Metadata        `json:"metadata"`
}

type RolloutStrategy struct {
	Type   StrategyType   `json:"type"`
	Config StrategyConfig `json:"config"`
}

type StrategyConfig struct {
	Percentage          int      `json:"percentage"`
	IncrementPercentage int      `json:"incrementPercentage,omitempty"`
	IncrementInterval   int      `json:"incrementInterval,omitempty"` // minutes
	UserGroups          []string `json:"userGroups,omitempty"`
	GeoTargets          []string `json:"geoTargets,omitempty"`
}

type TargetingRule struct {
	ID         string               `json:"id"`
	Conditions []TargetingCondition `json:"conditions"`
	Operator   RuleOperator         `json:"operator"`
	Value      any                  `json:"value"`
	Enabled    bool                 `json:"enabled"`
	// Expression is an optional JsonLogic expression that must also hold for the rule to match.
	Expression json.RawMessage `json:"expression,omitempty"`
}

type TargetingCondition struct {
	Attribute string            `json:"attribute"`
	Operator  ConditionOperator `json:"operator"`
	Value     any               `json:"value"`
}

type Variant struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Value  any     `json:"value"`
	Weight float64 `json:"weight"`
}

type Monitoring struct {
	TrackEvents      bool             `json:"trackEvents"`
	TrackPerformance bool             `json:"trackPerformance"`
	Alerts           []AlertThreshold `json:"alertThresholds,omitempty"`
}

type Comparator string

const (
	GreaterThan Comparator = "gt"
	LessThan    Comparator = "lt"
	EqualTo     Comparator = "eq"
)

type AlertAction string

const (
	NotifyAction   AlertAction = "notify"
	DisableAction  AlertAction = "disable"
	RollbackAction AlertAction = "rollback"
)

type AlertThreshold struct {
	Metric     string      `json:"metric"`
	Comparator Comparator  `json:"operator"`
	Threshold  float64     `json:"threshold"`
	Action     AlertAction `json:"action"`
}

// Schedule bounds the window in which a flag is active. Timezone is informational,
// Start and End are absolute instants.
type Schedule struct {
	Start    *time.Time `json:"startDate,omitempty"`
	End      *time.Time `json:"endDate,omitempty"`
	Timezone string     `json:"timezone,omitempty"`
}

// Started reports whether the window has opened at now. A window without a
// start is always open.
func (s *Schedule) Started(now time.Time) bool {
	return s.Start == nil || !now.Before(*s.Start)
}

// Ended reports whether the window has closed at now. End is exclusive.
func (s *Schedule) Ended(now time.Time) bool {
	return s.End != nil && !now.Before(*s.End)
}

type Metadata struct {
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []string  `json:"tags,omitempty"`
	Environment string    `json:"environment,omitempty"`
	// SafetyAction and SafetyReason record the last disable or rollback applied by the safety layer.
	SafetyAction AlertAction `json:"safetyAction,omitempty"`
	SafetyReason string      `json:"safetyReason,omitempty"`
}

// IsGradual reports whether the flag ramps its rollout percentage over time.
func (f Flag) IsGradual() bool {
	return f.Rollout.Type == GradualStrategy
}

// Clone returns a copy that shares no slices with the receiver.
// Values held in any-typed fields are shared.
func (f Flag) Clone() Flag {
	c := f
	c.Rules = append([]TargetingRule(nil), f.Rules...)
	for i := range c.Rules {
		c.Rules[i].Conditions = append([]TargetingCondition(nil), f.Rules[i].Conditions...)
	}
	c.Variants = append([]Variant(nil), f.Variants...)
	c.Monitoring.Alerts = append([]AlertThreshold(nil), f.Monitoring.Alerts...)
	c.Rollout.Config.UserGroups = append([]string(nil), f.Rollout.Config.UserGroups...)
	c.Rollout.Config.GeoTargets = append([]string(nil), f.Rollout.Config.GeoTargets...)
	c.Metadata.Tags = append([]string(nil), f.Metadata.Tags...)
	if f.Schedule != nil {
		s := *f.Schedule
		c.Schedule = &s
	}
	return c
}

// ClampPercentage bounds a rollout percentage to [0,100].
func ClampPercentage(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
