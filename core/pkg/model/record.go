package model

import "time"

// EvaluationRecord is one entry of the append-only evaluation history.
type EvaluationRecord struct {
	ID        string            `json:"id"`
	FlagID    string            `json:"flagId"`
	UserID    string            `json:"userId,omitempty"`
	Value     any               `json:"value"`
	VariantID string            `json:"variant,omitempty"`
	Reason    string            `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
	Context   EvaluationContext `json:"context"`
}
