package store

import (
	"sync"
	"time"

	"github.com/open-feature/flagx/core/pkg/model"
)

const DefaultHistoryLimit = 10000

// History is the bounded, append-only log of evaluation records. Once the limit
// is reached the oldest records are dropped.
type History struct {
	mx      sync.RWMutex
	limit   int
	records []model.EvaluationRecord
	start   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(rec model.EvaluationRecord) {
	h.mx.Lock()
	defer h.mx.Unlock()

	if len(h.records) < h.limit {
		h.records = append(h.records, rec)
		return
	}
	// ring is full: overwrite the oldest slot
	h.records[h.start] = rec
	h.start = (h.start + 1) % h.limit
}

func (h *History) Len() int {
	h.mx.RLock()
	defer h.mx.RUnlock()
	return len(h.records)
}

// Select returns, oldest first, the records for flagID (all flags when empty)
// whose timestamp is not before since.
func (h *History) Select(flagID string, since time.Time) []model.EvaluationRecord {
	h.mx.RLock()
	defer h.mx.RUnlock()

	out := []model.EvaluationRecord{}
	n := len(h.records)
	for i := 0; i < n; i++ {
		rec := h.records[(h.start+i)%n]
		if flagID != "" && rec.FlagID != flagID {
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
