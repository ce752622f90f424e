package experiment

import (
	"fmt"
	"time"
)

// Analytics summarises evaluation history.
type Analytics struct {
	FlagID           string         `json:"flagId,omitempty"`
	Hours            int            `json:"hours"`
	TotalEvaluations int            `json:"totalEvaluations"`
	UniqueUsers      int            `json:"uniqueUsers"`
	Flags            map[string]int `json:"flags"`
	Reasons          map[string]int `json:"reasons"`
	Variants         map[string]int `json:"variants"`
	Values           map[string]int `json:"values"`
}

// Analytics aggregates the last hours of history for one flag, or all flags
// when flagID is empty.
func (a *Analyzer) Analytics(flagID string, hours int) Analytics {
	if hours <= 0 {
		hours = 24
	}
	out := Analytics{
		FlagID:   flagID,
		Hours:    hours,
		Flags:    map[string]int{},
		Reasons:  map[string]int{},
		Variants: map[string]int{},
		Values:   map[string]int{},
	}

	users := map[string]struct{}{}
	since := a.clock.Now().Add(-time.Duration(hours) * time.Hour)
	for _, rec := range a.history.Select(flagID, since) {
		out.TotalEvaluations++
		out.Flags[rec.FlagID]++
		out.Reasons[rec.Reason]++
		if rec.VariantID != "" {
			out.Variants[rec.VariantID]++
		}
		out.Values[fmt.Sprint(rec.Value)]++
		if rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}
	}
	out.UniqueUsers = len(users)
	return out
}
