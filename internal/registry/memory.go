package registry

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/ppiankov/curator/internal/model"
)

type edgeKey struct {
	to   string
	kind model.RelationKind
}

type dupKey struct {
	documentID  string
	duplicateOf string
}

// MemoryStore keeps the registry in process memory. Records are deep-copied
// on the way in and out.
type MemoryStore struct {
	mu           sync.RWMutex
	items        map[string]*model.ClassifiedItem
	inbound      map[edgeKey]map[string]struct{}
	fingerprints map[string]model.Fingerprint
	duplicates   map[dupKey]model.DuplicateMarker
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:        make(map[string]*model.ClassifiedItem),
		inbound:      make(map[edgeKey]map[string]struct{}),
		fingerprints: make(map[string]model.Fingerprint),
		duplicates:   make(map[dupKey]model.DuplicateMarker),
	}
}

// Get returns a copy of the item
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.ClassifiedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id].Clone(), nil
}

type memoryTx struct {
	s            *MemoryStore
	items        map[string]*model.ClassifiedItem
	fingerprints []model.Fingerprint
	duplicates   []model.DuplicateMarker
}

func (tx *memoryTx) Get(id string) (*model.ClassifiedItem, error) {
	if item, ok := tx.items[id]; ok {
		return item.Clone(), nil
	}
	return tx.s.items[id].Clone(), nil
}

func (tx *memoryTx) Put(item *model.ClassifiedItem) error {
	tx.items[item.ID] = item.Clone()
	return nil
}

func (tx *memoryTx) PutFingerprint(fp model.Fingerprint) error {
	fp.Shingles = slices.Clone(fp.Shingles)
	tx.fingerprints = append(tx.fingerprints, fp)
	return nil
}

func (tx *memoryTx) PutDuplicate(m model.DuplicateMarker) error {
	tx.duplicates = append(tx.duplicates, m)
	return nil
}

// Update runs fn under the store's write lock and applies its writes only if
// fn returns nil and the context is still live
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s, items: make(map[string]*model.ClassifiedItem)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, item := range tx.items {
		s.reindex(s.items[id], item)
		s.items[id] = item
	}
	for _, fp := range tx.fingerprints {
		s.fingerprints[fp.ItemID] = fp
	}
	for _, m := range tx.duplicates {
		s.duplicates[dupKey{m.DocumentID, m.DuplicateOf}] = m
	}
	return nil
}

// reindex moves the reverse edge index from old's outgoing edges to next's
func (s *MemoryStore) reindex(old, next *model.ClassifiedItem) {
	for _, kind := range model.RelationKinds {
		if old != nil {
			for _, to := range old.Relationships.Get(kind) {
				if !next.Relationships.Has(kind, to) {
					delete(s.inbound[edgeKey{to, kind}], next.ID)
				}
			}
		}
		for _, to := range next.Relationships.Get(kind) {
			k := edgeKey{to, kind}
			if s.inbound[k] == nil {
				s.inbound[k] = make(map[string]struct{})
			}
			s.inbound[k][next.ID] = struct{}{}
		}
	}
}

// Query snapshots the matching items and yields them in query order
func (s *MemoryStore) Query(ctx context.Context, q Query) iter.Seq2[model.ClassifiedItem, error] {
	return func(yield func(model.ClassifiedItem, error) bool) {
		s.mu.RLock()
		var matched []*model.ClassifiedItem
		for _, item := range s.items {
			if q.matches(item) {
				matched = append(matched, item.Clone())
			}
		}
		s.mu.RUnlock()

		slices.SortFunc(matched, compareItems)
		for _, item := range matched {
			if err := ctx.Err(); err != nil {
				yield(model.ClassifiedItem{}, err)
				return
			}
			if !yield(*item, nil) {
				return
			}
		}
	}
}

// Fingerprints yields stored fingerprints ordered by item id
func (s *MemoryStore) Fingerprints(ctx context.Context) iter.Seq2[model.Fingerprint, error] {
	return func(yield func(model.Fingerprint, error) bool) {
		s.mu.RLock()
		fps := make([]model.Fingerprint, 0, len(s.fingerprints))
		for _, fp := range s.fingerprints {
			fps = append(fps, fp)
		}
		s.mu.RUnlock()

		sort.Slice(fps, func(i, j int) bool { return fps[i].ItemID < fps[j].ItemID })
		for _, fp := range fps {
			if err := ctx.Err(); err != nil {
				yield(model.Fingerprint{}, err)
				return
			}
			if !yield(fp, nil) {
				return
			}
		}
	}
}

// Inbound returns the sorted ids with an edge of kind to id
func (s *MemoryStore) Inbound(ctx context.Context, id string, kind model.RelationKind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := s.inbound[edgeKey{id, kind}]
	ids := make([]string, 0, len(from))
	for f := range from {
		ids = append(ids, f)
	}
	sort.Strings(ids)
	return ids, nil
}

// Duplicates returns the markers pointing at itemID, oldest first
func (s *MemoryStore) Duplicates(ctx context.Context, itemID string) ([]model.DuplicateMarker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.DuplicateMarker
	for _, m := range s.duplicates {
		if m.DuplicateOf == itemID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
