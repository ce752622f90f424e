package experiment

type Action string

const (
	Continue      Action = "continue"
	ExtendTest    Action = "extend_test"
	PromoteWinner Action = "promote_winner"
)

type Recommendation struct {
	Action     Action  `json:"action"`
	Variant    string  `json:"variant,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Recommendation turns the stored results of the last analysis into a decision.
func (a *Analyzer) Recommendation(flagID string) Recommendation {
	results := a.Results(flagID)
	if len(results) == 0 {
		return Recommendation{Action: Continue, Reason: "no analysis results yet"}
	}

	wins := map[string]int{}
	order := []string{}
	significant := 0
	confidence := 0.0
	for _, r := range results {
		if !r.Significant {
			continue
		}
		significant++
		if r.Confidence > confidence {
			confidence = r.Confidence
		}
		if _, ok := wins[r.Winner]; !ok {
			order = append(order, r.Winner)
		}
		wins[r.Winner]++
	}
	if significant == 0 {
		return Recommendation{Action: ExtendTest, Reason: "no metric reached significance"}
	}

	for _, variant := range order {
		if float64(wins[variant])/float64(significant) >= promoteShare {
			return Recommendation{
				Action:     PromoteWinner,
				Variant:    variant,
				Confidence: confidence,
				Reason:     "variant wins the majority of significant metrics",
			}
		}
	}
	return Recommendation{Action: Continue, Confidence: confidence, Reason: "mixed results across metrics"}
}
