package score

import (
	"fmt"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/curator/internal/model"
)

// Input is what a scoring function sees: the text plus provenance
type Input struct {
	Text       string
	URL        string
	Metadata   model.Metadata
	CapturedAt time.Time
	Stats      Stats
}

// Func scores one criterion. It must be pure and return a value in [1,5];
// the optional string is recorded as the rationale.
type Func func(in Input) (int, string)

// Funcs maps scoring function names to implementations
type Funcs map[string]Func

// Scorer applies a weighted rubric to documents
type Scorer struct {
	rubric model.RubricConfig
	funcs  []Func

	mu     sync.RWMutex
	halted *model.Error // Set on the first out-of-range score
}

// NewScorer resolves every criterion's scoring function and checks the
// rubric weights. funcs may be nil to use the built-in functions.
func NewScorer(rubric model.RubricConfig, funcs Funcs) (*Scorer, error) {
	if funcs == nil {
		funcs = Builtin()
	}
	if len(rubric.Criteria) == 0 {
		return nil, model.Errorf(model.ReasonRubricMismatch, "rubric has no criteria")
	}

	resolved := make([]Func, len(rubric.Criteria))
	seen := make(map[string]bool, len(rubric.Criteria))
	var sum float64
	for i, c := range rubric.Criteria {
		if seen[c.Name] {
			return nil, model.Errorf(model.ReasonRubricMismatch, "duplicate criterion %q", c.Name)
		}
		seen[c.Name] = true

		if c.Weight <= 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return nil, model.Errorf(model.ReasonRubricMismatch, "criterion %q has invalid weight %v", c.Name, c.Weight)
		}
		fn, ok := funcs[c.FuncName()]
		if !ok {
			return nil, model.Errorf(model.ReasonRubricMismatch, "criterion %q: no scoring function %q", c.Name, c.FuncName())
		}
		resolved[i] = fn
		sum += c.Weight
	}

	total := rubric.TotalWeight
	if total == 0 {
		total = sum
	}
	if math.Abs(sum-total) > 1e-9*math.Max(1, total) {
		return nil, model.Errorf(model.ReasonRubricMismatch, "criterion weights sum to %g, expected %g", sum, total)
	}
	rubric.TotalWeight = total

	return &Scorer{rubric: rubric, funcs: resolved}, nil
}

// MaxScore returns the sum of rubric weights
func (s *Scorer) MaxScore() float64 {
	return s.rubric.TotalWeight
}

// MinContentLength returns the minimum text length in characters
func (s *Scorer) MinContentLength() int {
	return s.rubric.MinContentLength
}

// Criteria returns the rubric criterion names in order
func (s *Scorer) Criteria() []string {
	names := make([]string, len(s.rubric.Criteria))
	for i, c := range s.rubric.Criteria {
		names[i] = c.Name
	}
	return names
}

// Halted returns the RubricMismatch that stopped this scorer, if any
func (s *Scorer) Halted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.halted == nil {
		return nil
	}
	return s.halted
}

// Evaluate scores a document. It has no side effects apart from halting the
// scorer when a scoring function misbehaves: after a RubricMismatch every
// later call fails the same way until a new Scorer is built.
func (s *Scorer) Evaluate(doc model.SourceDocument) (model.Evaluation, error) {
	if err := s.Halted(); err != nil {
		return model.Evaluation{}, err
	}

	length := utf8.RuneCountInString(doc.RawText)
	if length < s.rubric.MinContentLength {
		return model.Evaluation{}, model.Errorf(model.ReasonInsufficientContent,
			"content has %d characters, minimum is %d", length, s.rubric.MinContentLength)
	}

	in := Input{
		Text:       doc.RawText,
		URL:        doc.URL,
		Metadata:   doc.Metadata(),
		CapturedAt: doc.CapturedAt,
		Stats:      Analyze(doc.RawText),
	}

	ev := model.Evaluation{
		DocumentID: doc.ID,
		Criteria:   make([]model.CriterionScore, len(s.rubric.Criteria)),
	}
	for i, c := range s.rubric.Criteria {
		raw, rationale := s.funcs[i](in)
		if raw < 1 || raw > 5 {
			return model.Evaluation{}, s.halt(model.Errorf(model.ReasonRubricMismatch,
				"scoring function %q for criterion %q returned %d, want 1..5", c.FuncName(), c.Name, raw))
		}
		ev.Criteria[i] = model.CriterionScore{
			Name:      c.Name,
			Weight:    c.Weight,
			RawScore:  raw,
			Rationale: rationale,
		}
	}
	ev.Recompute()

	return ev, nil
}

func (s *Scorer) halt(err *model.Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted == nil {
		s.halted = err
	}
	return s.halted
}

// Describe renders an evaluation as a one-line breakdown
func Describe(ev model.Evaluation) string {
	return fmt.Sprintf("%.2f/%.2f across %d criteria", ev.TotalScore, ev.MaxScore, len(ev.Criteria))
}
