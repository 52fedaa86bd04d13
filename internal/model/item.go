package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tier is the maturity tier of a classified item
type Tier string

const (
	TierResearch Tier = "research"
	TierAnalysis Tier = "analysis"
	TierPractice Tier = "practice" // Requires a recorded human validation
)

// Rank orders tiers: research < analysis < practice. Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierResearch:
		return 1
	case TierAnalysis:
		return 2
	case TierPractice:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the three known tiers
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier parses a tier name
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q (want research, analysis or practice)", s)
	}
	return t, nil
}

// Axis is one taxonomy dimension
type Axis string

const (
	AxisDomain      Axis = "domain"
	AxisRiskProfile Axis = "riskProfile"
	AxisContext     Axis = "context"
	AxisMaturity    Axis = "maturity" // Lifecycle stage, independent of Tier
)

// Axes lists all taxonomy axes in declaration order
var Axes = []Axis{AxisDomain, AxisRiskProfile, AxisContext, AxisMaturity}

// ParseAxis parses an axis name, ignoring case
func ParseAxis(s string) (Axis, error) {
	for _, a := range Axes {
		if strings.EqualFold(string(a), s) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown taxonomy axis %q", s)
}

// Required reports whether filing needs a value on this axis
func (a Axis) Required() bool {
	return a == AxisDomain || a == AxisRiskProfile
}

// Taxonomy holds one value per axis. An empty value means unknown, which is
// different from any explicit vocabulary value such as "none".
type Taxonomy struct {
	Domain      string `json:"domain,omitempty"`
	RiskProfile string `json:"riskProfile,omitempty"`
	Context     string `json:"context,omitempty"`
	Maturity    string `json:"maturity,omitempty"`
}

// Get returns the value of an axis
func (t Taxonomy) Get(a Axis) string {
	switch a {
	case AxisDomain:
		return t.Domain
	case AxisRiskProfile:
		return t.RiskProfile
	case AxisContext:
		return t.Context
	case AxisMaturity:
		return t.Maturity
	}
	return ""
}

// Set assigns the value of an axis
func (t *Taxonomy) Set(a Axis, v string) {
	switch a {
	case AxisDomain:
		t.Domain = v
	case AxisRiskProfile:
		t.RiskProfile = v
	case AxisContext:
		t.Context = v
	case AxisMaturity:
		t.Maturity = v
	}
}

// RelationKind labels a relationship edge
type RelationKind string

const (
	RelationRequires     RelationKind = "requires"
	RelationEnables      RelationKind = "enables"
	RelationConflicts    RelationKind = "conflicts"    // Symmetric
	RelationAlternatives RelationKind = "alternatives" // Symmetric
)

// RelationKinds lists all edge kinds
var RelationKinds = []RelationKind{RelationRequires, RelationEnables, RelationConflicts, RelationAlternatives}

// ParseRelationKind parses an edge kind name
func ParseRelationKind(s string) (RelationKind, error) {
	for _, k := range RelationKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown relationship kind %q", s)
}

// Symmetric reports whether an edge of this kind implies the reverse edge
func (k RelationKind) Symmetric() bool {
	return k == RelationConflicts || k == RelationAlternatives
}

// Relationships holds the outgoing edges of an item as sorted id sets
type Relationships struct {
	Requires     []string `json:"requires"`
	Enables      []string `json:"enables"`
	Conflicts    []string `json:"conflicts"`
	Alternatives []string `json:"alternatives"`
}

func (r *Relationships) set(k RelationKind) *[]string {
	switch k {
	case RelationRequires:
		return &r.Requires
	case RelationEnables:
		return &r.Enables
	case RelationConflicts:
		return &r.Conflicts
	case RelationAlternatives:
		return &r.Alternatives
	}
	return nil
}

// Get returns the ids on the given edge kind
func (r Relationships) Get(k RelationKind) []string {
	if s := r.set(k); s != nil {
		return *s
	}
	return nil
}

// Has reports whether id is present on the given edge kind
func (r Relationships) Has(k RelationKind, id string) bool {
	_, found := slices.BinarySearch(r.Get(k), id)
	return found
}

// Add inserts id into the edge set, keeping it sorted. Returns false if already present.
func (r *Relationships) Add(k RelationKind, id string) bool {
	s := r.set(k)
	if s == nil {
		return false
	}
	i, found := slices.BinarySearch(*s, id)
	if found {
		return false
	}
	*s = slices.Insert(*s, i, id)
	return true
}

// Remove deletes id from the edge set. Returns false if it was absent.
func (r *Relationships) Remove(k RelationKind, id string) bool {
	s := r.set(k)
	if s == nil {
		return false
	}
	i, found := slices.BinarySearch(*s, id)
	if !found {
		return false
	}
	*s = slices.Delete(*s, i, i+1)
	return true
}

// Clone returns a deep copy
func (r Relationships) Clone() Relationships {
	return Relationships{
		Requires:     slices.Clone(r.Requires),
		Enables:      slices.Clone(r.Enables),
		Conflicts:    slices.Clone(r.Conflicts),
		Alternatives: slices.Clone(r.Alternatives),
	}
}

// ClassifiedItem is the filed, queryable unit. Items are never deleted; a
// retired item carries SupersededBy.
type ClassifiedItem struct {
	ID                string        `json:"id"`
	Tier              Tier          `json:"tier"`
	Taxonomy          Taxonomy      `json:"taxonomy"`
	Relationships     Relationships `json:"relationships"`
	ValidatedAt       *time.Time    `json:"validatedAt"`
	ValidatedBy       string        `json:"validatedBy,omitempty"`
	SupersededBy      *string       `json:"supersededBy"`
	PendingValidation bool          `json:"pendingValidation,omitempty"` // Scored as practice, awaiting validation
	Score             float64       `json:"score"`
	MaxScore          float64       `json:"maxScore"`
	Evaluation        *Evaluation   `json:"evaluation,omitempty"`
	SourceURL         string        `json:"sourceUrl,omitempty"`
	CapturedAt        time.Time     `json:"capturedAt"`
	FiledAt           time.Time     `json:"filedAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// Retired reports whether the item has been superseded
func (i *ClassifiedItem) Retired() bool {
	return i.SupersededBy != nil
}

// Clone returns a deep copy safe to hand out of a store
func (i *ClassifiedItem) Clone() *ClassifiedItem {
	if i == nil {
		return nil
	}
	c := *i
	c.Relationships = i.Relationships.Clone()
	if i.ValidatedAt != nil {
		t := *i.ValidatedAt
		c.ValidatedAt = &t
	}
	if i.SupersededBy != nil {
		s := *i.SupersededBy
		c.SupersededBy = &s
	}
	if i.Evaluation != nil {
		ev := *i.Evaluation
		ev.Criteria = slices.Clone(i.Evaluation.Criteria)
		c.Evaluation = &ev
	}
	return &c
}

// Fingerprint is the stored dedupe signature of a filed item
type Fingerprint struct {
	ItemID     string    `json:"itemId"`
	Shingles   []uint64  `json:"shingles"` // Sorted, unique shingle hashes
	CapturedAt time.Time `json:"capturedAt"`
}

// DuplicateMarker records a submission that matched an existing item
type DuplicateMarker struct {
	DocumentID  string    `json:"documentId"`
	DuplicateOf string    `json:"duplicateOf"`
	Similarity  float64   `json:"similarity"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}
