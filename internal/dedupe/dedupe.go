package dedupe

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/ppiankov/curator/internal/model"
)

// Source yields the stored fingerprints to compare against
type Source interface {
	Fingerprints(ctx context.Context) iter.Seq2[model.Fingerprint, error]
}

// Match is a near-duplicate hit
type Match struct {
	ItemID     string
	Similarity float64
	CapturedAt time.Time
}

// Deduplicator finds near-duplicates of new documents among filed items
type Deduplicator struct {
	threshold   float64
	shingleSize int
}

// New creates a deduplicator from configuration
func New(cfg model.DedupeConfig) (*Deduplicator, error) {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, model.Errorf(model.ReasonInvalidInput, "dedupe threshold %g must be in (0, 1]", cfg.Threshold)
	}
	k := cfg.ShingleSize
	if k == 0 {
		k = DefaultShingleSize
	}
	if k < 1 {
		return nil, model.Errorf(model.ReasonInvalidInput, "shingle size %d must be positive", k)
	}
	return &Deduplicator{threshold: cfg.Threshold, shingleSize: k}, nil
}

// Threshold returns the minimum similarity treated as a duplicate
func (d *Deduplicator) Threshold() float64 {
	return d.threshold
}

// Fingerprint builds the fingerprint to store when doc is filed as itemID
func (d *Deduplicator) Fingerprint(itemID string, doc model.SourceDocument) model.Fingerprint {
	return NewFingerprint(itemID, doc, d.shingleSize)
}

// FindNearDuplicate returns the stored item most similar to doc at or above
// the threshold, or nil. An item filed under doc's own id is an exact match. Ties go to the most recently captured item, then
// the lowest id.
func (d *Deduplicator) FindNearDuplicate(ctx context.Context, doc model.SourceDocument, src Source) (*Match, error) {
	shingles := Shingles(doc.RawText, d.shingleSize)
	if len(shingles) == 0 {
		return nil, nil
	}

	var best *Match
	for fp, err := range src.Fingerprints(ctx) {
		if err != nil {
			return nil, fmt.Errorf("scan fingerprints: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sim := Jaccard(shingles, fp.Shingles)
		if fp.ItemID == doc.ID {
			sim = 1
		}
		if sim < d.threshold {
			continue
		}
		cand := &Match{ItemID: fp.ItemID, Similarity: sim, CapturedAt: fp.CapturedAt}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best, nil
}

func better(a, b *Match) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if !a.CapturedAt.Equal(b.CapturedAt) {
		return a.CapturedAt.After(b.CapturedAt)
	}
	return a.ItemID < b.ItemID
}
