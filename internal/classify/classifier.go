package classify

import (
	"fmt"

	"github.com/ppiankov/curator/internal/model"
)

// Warning is a non-fatal classification finding
type Warning struct {
	Axis    model.Axis
	Reason  model.Reason
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Reason, w.Message)
}

// Result is the classifier output for one evaluation
type Result struct {
	Tier        model.Tier
	Provisional bool // Practice needs a human validation signal before filing
	Taxonomy    model.Taxonomy
	Matched     map[model.Axis]Rule
	Warnings    []Warning
}

// Classifier assigns tiers and taxonomy values
type Classifier struct {
	thresholds Thresholds
	heuristics *Heuristics
}

// New creates a classifier from validated thresholds and heuristics
func New(thresholds Thresholds, heuristics *Heuristics) *Classifier {
	return &Classifier{thresholds: thresholds, heuristics: heuristics}
}

// Thresholds returns the tier thresholds
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify maps the total score to a tier and runs the axis rules. For each
// axis the first matching rule in declaration order wins; an axis with no
// match stays unset and produces a NoMatchingRule warning.
func (c *Classifier) Classify(ev model.Evaluation, doc model.SourceDocument) Result {
	tier := c.thresholds.Tier(ev.TotalScore)
	res := Result{
		Tier:        tier,
		Provisional: tier == model.TierPractice,
		Matched:     make(map[model.Axis]Rule, len(model.Axes)),
	}

	var text string
	if c.heuristics.needsText() {
		text = " " + model.CanonicalText(doc.RawText) + " "
	}

	for _, r := range c.heuristics.rules {
		if _, done := res.Matched[r.Axis]; done {
			continue
		}
		if r.matches(ev, doc, text) {
			res.Matched[r.Axis] = r
			res.Taxonomy.Set(r.Axis, r.Value)
		}
	}

	for _, axis := range model.Axes {
		if _, ok := res.Matched[axis]; ok {
			continue
		}
		res.Warnings = append(res.Warnings, Warning{
			Axis:    axis,
			Reason:  model.ReasonNoMatchingRule,
			Message: fmt.Sprintf("no rule matched axis %s; value left unknown", axis),
		})
	}

	return res
}
