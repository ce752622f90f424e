package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedule_Window(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	s := &Schedule{Start: &start, End: &end}

	tests := map[string]struct {
		now            time.Time
		started, ended bool
	}{
		"before start": {now: start.Add(-time.Second)},
		"at start":     {now: start, started: true},
		"inside":       {now: start.Add(30 * time.Minute), started: true},
		"at end":       {now: end, started: true, ended: true},
		"after end":    {now: end.Add(time.Second), started: true, ended: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.started, s.Started(tt.now))
			assert.Equal(t, tt.ended, s.Ended(tt.now))
		})
	}

	open := &Schedule{}
	assert.True(t, open.Started(start))
	assert.False(t, open.Ended(end))
}

func TestEvaluationContext_Snapshot(t *testing.T) {
	attrs := map[string]any{"plan": "pro"}
	ctx := EvaluationContext{UserID: "u1", Attributes: attrs}

	snap := ctx.Snapshot()
	attrs["plan"] = "free"

	assert.Equal(t, "pro", snap.Attributes["plan"])
	assert.Equal(t, "u1", snap.UserID)
	assert.Nil(t, EvaluationContext{}.Snapshot().Attributes)
}
