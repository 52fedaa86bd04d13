package registry

import (
	"context"
	"iter"

	"github.com/ppiankov/curator/internal/model"
)

// Store is the persistence backend of the registry. Every Update is a single
// atomic transaction: either all of its writes become visible or none do.
type Store interface {
	// Get returns the item or nil when absent
	Get(ctx context.Context, id string) (*model.ClassifiedItem, error)
	Update(ctx context.Context, fn func(tx Tx) error) error
	Query(ctx context.Context, q Query) iter.Seq2[model.ClassifiedItem, error]
	Fingerprints(ctx context.Context) iter.Seq2[model.Fingerprint, error]
	// Inbound returns the sorted ids of items with an edge of kind pointing at id
	Inbound(ctx context.Context, id string, kind model.RelationKind) ([]string, error)
	Duplicates(ctx context.Context, itemID string) ([]model.DuplicateMarker, error)
	Close() error
}

// Tx is the write view inside Store.Update. Reads observe the transaction's
// own pending writes.
type Tx interface {
	Get(id string) (*model.ClassifiedItem, error)
	Put(item *model.ClassifiedItem) error
	PutFingerprint(fp model.Fingerprint) error
	PutDuplicate(m model.DuplicateMarker) error
}

// Query selects items by one taxonomy axis value. Results are ordered by
// ValidatedAt descending with unvalidated items last, then by id.
type Query struct {
	Axis           model.Axis
	Value          string
	IncludeRetired bool
}

func (q Query) matches(item *model.ClassifiedItem) bool {
	if !q.IncludeRetired && item.Retired() {
		return false
	}
	return item.Taxonomy.Get(q.Axis) == q.Value
}

// compareItems orders items for query results
func compareItems(a, b *model.ClassifiedItem) int {
	switch {
	case a.ValidatedAt != nil && b.ValidatedAt == nil:
		return -1
	case a.ValidatedAt == nil && b.ValidatedAt != nil:
		return 1
	case a.ValidatedAt != nil && b.ValidatedAt != nil && !a.ValidatedAt.Equal(*b.ValidatedAt):
		if a.ValidatedAt.After(*b.ValidatedAt) {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
