package classify

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ppiankov/curator/internal/model"
)

// Vocabulary is the immutable per-axis set of allowed values. An axis with no
// configured values accepts any value.
type Vocabulary struct {
	values map[model.Axis][]string // Sorted
}

// NewVocabulary builds a vocabulary from configuration
func NewVocabulary(cfg map[string][]string) (*Vocabulary, error) {
	v := &Vocabulary{values: make(map[model.Axis][]string, len(cfg))}
	for name, values := range cfg {
		axis, err := model.ParseAxis(name)
		if err != nil {
			return nil, model.Wrap(model.ReasonInvalidInput, err, "vocabulary")
		}
		sorted := make([]string, 0, len(values))
		for _, val := range values {
			val = strings.TrimSpace(val)
			if val == "" {
				return nil, model.Errorf(model.ReasonInvalidInput, "vocabulary for %s contains an empty value", axis)
			}
			sorted = append(sorted, val)
		}
		sort.Strings(sorted)
		v.values[axis] = slices.Compact(sorted)
	}
	return v, nil
}

// Allows reports whether value is permitted on axis
func (v *Vocabulary) Allows(axis model.Axis, value string) bool {
	vals, ok := v.values[axis]
	if !ok || len(vals) == 0 {
		return true
	}
	_, found := slices.BinarySearch(vals, value)
	return found
}

// Values returns a copy of the configured values for axis
func (v *Vocabulary) Values(axis model.Axis) []string {
	return slices.Clone(v.values[axis])
}

// Range bounds a criterion raw score; zero leaves a side open
type Range struct {
	Min int
	Max int
}

func (r Range) contains(v int) bool {
	if r.Min > 0 && v < r.Min {
		return false
	}
	if r.Max > 0 && v > r.Max {
		return false
	}
	return true
}

type criterionBound struct {
	name  string
	bound Range
}

// Rule assigns Value to Axis when all of its conditions hold
type Rule struct {
	Axis           model.Axis
	Value          string
	Criteria       []criterionBound // Sorted by name
	Keywords       []string         // Canonicalized
	MinKeywordHits int
	RequireAuthor  bool
	Index          int // Declaration order
}

// CatchAll reports whether the rule has no conditions
func (r Rule) CatchAll() bool {
	return len(r.Criteria) == 0 && len(r.Keywords) == 0 && !r.RequireAuthor
}

func (r Rule) String() string {
	return fmt.Sprintf("rule #%d (%s=%s)", r.Index, r.Axis, r.Value)
}

// matches evaluates the rule; text is " " + canonical text + " "
func (r Rule) matches(ev model.Evaluation, doc model.SourceDocument, text string) bool {
	if r.RequireAuthor && doc.AuthorInfo == "" {
		return false
	}
	for _, cb := range r.Criteria {
		c, ok := ev.Criterion(cb.name)
		if !ok || !cb.bound.contains(c.RawScore) {
			return false
		}
	}
	if len(r.Keywords) > 0 {
		hits := 0
		for _, kw := range r.Keywords {
			if strings.Contains(text, " "+kw+" ") {
				hits++
			}
		}
		if hits < r.MinKeywordHits {
			return false
		}
	}
	return true
}

// Heuristics is the ordered, validated rule set plus the vocabulary
type Heuristics struct {
	vocab *Vocabulary
	rules []Rule
}

// NewHeuristics validates the taxonomy configuration against the rubric's
// criterion names
func NewHeuristics(cfg model.TaxonomyConfig, criteria []string) (*Heuristics, error) {
	vocab, err := NewVocabulary(cfg.Vocabulary)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		known[c] = true
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		axis, err := model.ParseAxis(rc.Axis)
		if err != nil {
			return nil, model.Wrap(model.ReasonInvalidInput, err, fmt.Sprintf("rule #%d", i))
		}
		if !vocab.Allows(axis, rc.Value) {
			return nil, model.Errorf(model.ReasonInvalidInput,
				"rule #%d: value %q is not in the %s vocabulary", i, rc.Value, axis)
		}

		rule := Rule{
			Axis:           axis,
			Value:          rc.Value,
			RequireAuthor:  rc.When.RequireAuthor,
			MinKeywordHits: rc.When.MinKeywordHits,
			Index:          i,
		}
		for name, rg := range rc.When.Criteria {
			if !known[name] {
				return nil, model.Errorf(model.ReasonInvalidInput, "rule #%d: unknown criterion %q", i, name)
			}
			if rg.Min > 0 && rg.Max > 0 && rg.Min > rg.Max {
				return nil, model.Errorf(model.ReasonInvalidInput, "rule #%d: %s min %d exceeds max %d", i, name, rg.Min, rg.Max)
			}
			rule.Criteria = append(rule.Criteria, criterionBound{name: name, bound: Range{Min: rg.Min, Max: rg.Max}})
		}
		sort.Slice(rule.Criteria, func(a, b int) bool { return rule.Criteria[a].name < rule.Criteria[b].name })

		for _, kw := range rc.When.Keywords {
			if ckw := model.CanonicalText(kw); ckw != "" {
				rule.Keywords = append(rule.Keywords, ckw)
			}
		}
		if len(rule.Keywords) > 0 && rule.MinKeywordHits == 0 {
			rule.MinKeywordHits = 1
		}
		if rule.MinKeywordHits > len(rule.Keywords) && len(rule.Keywords) > 0 {
			return nil, model.Errorf(model.ReasonInvalidInput,
				"rule #%d: min_keyword_hits %d exceeds %d keywords", i, rule.MinKeywordHits, len(rule.Keywords))
		}

		rules = append(rules, rule)
	}

	return &Heuristics{vocab: vocab, rules: rules}, nil
}

// Vocabulary returns the vocabulary the rules were validated against
func (h *Heuristics) Vocabulary() *Vocabulary {
	return h.vocab
}

// Rules returns the rules in evaluation order
func (h *Heuristics) Rules() []Rule {
	return slices.Clone(h.rules)
}

func (h *Heuristics) needsText() bool {
	for _, r := range h.rules {
		if len(r.Keywords) > 0 {
			return true
		}
	}
	return false
}
