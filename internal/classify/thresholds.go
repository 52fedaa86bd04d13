package classify

import (
	"github.com/ppiankov/curator/internal/model"
)

// Thresholds are ordered lower bounds on the total score:
// below Analysis is research, below Practice is analysis, the rest is practice.
type Thresholds struct {
	Analysis float64
	Practice float64
	Max      float64
}

// NewThresholds validates 0 < analysis < practice < max
func NewThresholds(cfg model.ThresholdConfig, maxScore float64) (Thresholds, error) {
	t := Thresholds{Analysis: cfg.Analysis, Practice: cfg.Practice, Max: maxScore}
	if !(t.Analysis > 0 && t.Analysis < t.Practice && t.Practice < t.Max) {
		return Thresholds{}, model.Errorf(model.ReasonInvalidInput,
			"thresholds must satisfy 0 < analysis (%g) < practice (%g) < max score (%g)", t.Analysis, t.Practice, t.Max)
	}
	return t, nil
}

// Tier maps a total score to a tier
func (t Thresholds) Tier(score float64) model.Tier {
	switch {
	case score < t.Analysis:
		return model.TierResearch
	case score < t.Practice:
		return model.TierAnalysis
	default:
		return model.TierPractice
	}
}
