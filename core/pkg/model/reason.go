package model

import (
	"encoding/json"
	"fmt"
)

// EvaluationReason explains why an evaluation produced its value.
type EvaluationReason int

const (
	ReasonUnknown EvaluationReason = iota
	ReasonFlagNotFound
	ReasonFlagDisabled
	ReasonNotStarted
	ReasonExpired
	ReasonTargetingRule
	ReasonImmediateRollout
	ReasonScheduledRollout
	ReasonVariantSelected
	ReasonRolloutIncluded
	ReasonRolloutExcluded
	ReasonGeoIncluded
	ReasonGeoExcluded
	ReasonUnknownStrategy
)

var reasonCodes = map[EvaluationReason]string{
	ReasonUnknown:          "unknown",
	ReasonFlagNotFound:     "flag_not_found",
	ReasonFlagDisabled:     "flag_disabled",
	ReasonNotStarted:       "not_started",
	ReasonExpired:          "expired",
	ReasonTargetingRule:    "targeting_rule",
	ReasonImmediateRollout: "immediate_rollout",
	ReasonScheduledRollout: "scheduled_rollout",
	ReasonVariantSelected:  "variant_selected",
	ReasonRolloutIncluded:  "rollout_included",
	ReasonRolloutExcluded:  "rollout_excluded",
	ReasonGeoIncluded:      "geo_included",
	ReasonGeoExcluded:      "geo_excluded",
	ReasonUnknownStrategy:  "unknown_strategy",
}

func (r EvaluationReason) String() string {
	if code, ok := reasonCodes[r]; ok {
		return code
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r EvaluationReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Resolution is the full outcome of evaluating a flag.
type Resolution struct {
	FlagID    string           `json:"flagId"`
	Value     any              `json:"value"`
	VariantID string           `json:"variant,omitempty"`
	Reason    EvaluationReason `json:"-"`
	RuleID    string           `json:"ruleId,omitempty"`
	Cached    bool             `json:"cached"`
}

// ReasonCode renders the machine readable reason, e.g. targeting_rule_premium.
func (r Resolution) ReasonCode() string {
	if r.Reason == ReasonTargetingRule {
		return "targeting_rule_" + r.RuleID
	}
	return r.Reason.String()
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	type alias Resolution
	return json.Marshal(struct {
		alias
		Reason string `json:"reason"`
	}{alias: alias(r), Reason: r.ReasonCode()})
}
