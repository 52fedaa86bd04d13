package model

// CriterionScore is one weighted rubric dimension
type CriterionScore struct {
	Name      string  `json:"name"`                // Criterion name (e.g., "source-credibility")
	Weight    float64 `json:"weight"`              // Positive weight, weights sum to the rubric total
	RawScore  int     `json:"rawScore"`            // Integer in [1,5]
	Rationale string  `json:"rationale,omitempty"` // Optional free text from the scoring function
}

// Contribution returns rawScore/5 * weight
func (c CriterionScore) Contribution() float64 {
	return float64(c.RawScore) / 5 * c.Weight
}

// Evaluation is the Scorer output for one document
type Evaluation struct {
	DocumentID string           `json:"documentId"`
	Criteria   []CriterionScore `json:"criteria"`   // Ordered as declared by the rubric
	TotalScore float64          `json:"totalScore"` // Sum of contributions
	MaxScore   float64          `json:"maxScore"`   // Sum of weights
}

// Recompute derives TotalScore and MaxScore from Criteria
func (e *Evaluation) Recompute() {
	var total, maxScore float64
	for _, c := range e.Criteria {
		total += c.Contribution()
		maxScore += c.Weight
	}
	e.TotalScore = total
	e.MaxScore = maxScore
}

// Criterion returns the named sub-score
func (e Evaluation) Criterion(name string) (CriterionScore, bool) {
	for _, c := range e.Criteria {
		if c.Name == name {
			return c, true
		}
	}
	return CriterionScore{}, false
}
