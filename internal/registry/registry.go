package registry

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/metrics"
	"github.com/ppiankov/curator/internal/model"
)

// Registry is the durable, queryable store of classified items. It owns the
// filing invariants; Practice items always carry a validation, and items are
// retired rather than deleted.
type Registry struct {
	store   Store
	locks   stripedLocks
	intake  sync.Mutex
	now     func() time.Time
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMetrics records committed writes
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry over store
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates the store selected by cfg and wraps it in a registry
func Open(cfg model.RegistryConfig, opts ...Option) (*Registry, error) {
	switch cfg.Driver {
	case "", "memory":
		return New(NewMemoryStore(), opts...), nil
	case "sqlite":
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return New(store, opts...), nil
	default:
		return nil, model.Errorf(model.ReasonInvalidInput, "unknown registry driver %q", cfg.Driver)
	}
}

// Close releases the store
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) committed(op string, fields ...zap.Field) {
	r.metrics.RecordWrite(op)
	r.logger.Debug("registry write", append([]zap.Field{zap.String("op", op)}, fields...)...)
}

// checkInvariants enforces the filing rules on a complete item
func checkInvariants(item *model.ClassifiedItem) error {
	if item.ID == "" {
		return model.Errorf(model.ReasonInvariantViolation, "item has no id")
	}
	if !item.Tier.Valid() {
		return model.Errorf(model.ReasonInvariantViolation, "item %s has invalid tier %q", item.ID, item.Tier)
	}
	if item.Tier == model.TierPractice && item.ValidatedAt == nil {
		return model.Errorf(model.ReasonInvariantViolation, "practice item %s requires a validation record", item.ID)
	}
	for _, axis := range model.Axes {
		if axis.Required() && item.Taxonomy.Get(axis) == "" {
			return model.Errorf(model.ReasonInvariantViolation, "item %s is missing required axis %s", item.ID, axis)
		}
	}
	return nil
}

type fileOptions struct {
	fingerprint *model.Fingerprint
}

// FileOption configures File
type FileOption func(*fileOptions)

// WithFingerprint stores the dedupe fingerprint in the same transaction
func WithFingerprint(fp model.Fingerprint) FileOption {
	return func(o *fileOptions) { o.fingerprint = &fp }
}

// File stores a new item or updates an existing one. Re-filing may raise the
// tier but never lower it (use OverrideTier); relationships and retirement
// of an existing item are kept. On any error nothing is persisted.
func (r *Registry) File(ctx context.Context, item model.ClassifiedItem, opts ...FileOption) (model.ClassifiedItem, error) {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}

	next := item.Clone()
	if err := checkInvariants(next); err != nil {
		return model.ClassifiedItem{}, err
	}

	unlock := r.locks.lock(next.ID)
	defer unlock()

	now := r.now()
	err := r.store.Update(ctx, func(tx Tx) error {
		existing, err := tx.Get(next.ID)
		if err != nil {
			return err
		}

		if existing == nil {
			if !emptyRelationships(next.Relationships) {
				return model.Errorf(model.ReasonInvalidInput,
					"new item %s carries relationships; add them with AddRelationship", next.ID)
			}
			next.Relationships = model.Relationships{}
			next.SupersededBy = nil
			next.FiledAt = now
		} else {
			if next.Tier.Rank() < existing.Tier.Rank() {
				return model.Errorf(model.ReasonTierDowngrade,
					"item %s is %s; refusing to re-file as %s", next.ID, existing.Tier, next.Tier)
			}
			next.Relationships = existing.Relationships
			next.SupersededBy = existing.SupersededBy
			next.FiledAt = existing.FiledAt
			if next.ValidatedAt == nil {
				next.ValidatedAt = existing.ValidatedAt
				next.ValidatedBy = existing.ValidatedBy
			}
		}
		next.UpdatedAt = now

		if err := tx.Put(next); err != nil {
			return err
		}
		if o.fingerprint != nil {
			fp := *o.fingerprint
			fp.ItemID = next.ID
			if err := tx.PutFingerprint(fp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.ClassifiedItem{}, err
	}

	r.committed("file", zap.String("id", next.ID), zap.String("tier", string(next.Tier)))
	return *next, nil
}

func emptyRelationships(rel model.Relationships) bool {
	for _, k := range model.RelationKinds {
		if len(rel.Get(k)) > 0 {
			return false
		}
	}
	return true
}

// Get returns the item with id. found is false when it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (model.ClassifiedItem, bool, error) {
	item, err := r.store.Get(ctx, id)
	if err != nil {
		return model.ClassifiedItem{}, false, err
	}
	if item == nil {
		return model.ClassifiedItem{}, false, nil
	}
	return *item, true, nil
}

type queryOptions struct {
	includeRetired bool
}

// QueryOption configures QueryByAxis
type QueryOption func(*queryOptions)

// IncludeRetired also yields superseded items
func IncludeRetired() QueryOption {
	return func(o *queryOptions) { o.includeRetired = true }
}

// QueryByAxis lazily yields the items whose axis equals value, most recently
// validated first, unvalidated last, then by id
func (r *Registry) QueryByAxis(ctx context.Context, axis model.Axis, value string, opts ...QueryOption) iter.Seq2[model.ClassifiedItem, error] {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	axis, err := model.ParseAxis(string(axis))
	if err != nil {
		return func(yield func(model.ClassifiedItem, error) bool) {
			yield(model.ClassifiedItem{}, model.Wrap(model.ReasonInvalidInput, err, "query"))
		}
	}
	return r.store.Query(ctx, Query{Axis: axis, Value: value, IncludeRetired: o.includeRetired})
}

// loadPair reads both ends of an edge inside a transaction
func loadPair(tx Tx, from, to string) (*model.ClassifiedItem, *model.ClassifiedItem, error) {
	a, err := tx.Get(from)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, model.Errorf(model.ReasonNotFound, "item %s not found", from)
	}
	b, err := tx.Get(to)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, model.Errorf(model.ReasonNotFound, "item %s not found", to)
	}
	return a, b, nil
}

func checkEdge(from, to string, kind model.RelationKind) error {
	if _, err := model.ParseRelationKind(string(kind)); err != nil {
		return model.Wrap(model.ReasonInvalidInput, err, "relationship")
	}
	if from == to {
		return model.Errorf(model.ReasonInvalidInput, "item %s cannot relate to itself", from)
	}
	return nil
}

// AddRelationship adds from -kind-> to. Symmetric kinds also add the reverse
// edge in the same transaction. Adding an existing edge is a no-op.
func (r *Registry) AddRelationship(ctx context.Context, from, to string, kind model.RelationKind) error {
	if err := checkEdge(from, to, kind); err != nil {
		return err
	}

	unlock := r.locks.lock(from, to)
	defer unlock()

	changed := false
	err := r.store.Update(ctx, func(tx Tx) error {
		a, b, err := loadPair(tx, from, to)
		if err != nil {
			return err
		}
		now := r.now()
		if a.Relationships.Add(kind, to) {
			a.UpdatedAt = now
			if err := tx.Put(a); err != nil {
				return err
			}
			changed = true
		}
		if kind.Symmetric() && b.Relationships.Add(kind, from) {
			b.UpdatedAt = now
			if err := tx.Put(b); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add relationship: %w", err)
	}
	if changed {
		r.committed("relate", zap.String("from", from), zap.String("to", to), zap.String("kind", string(kind)))
	}
	return nil
}

// RemoveRelationship removes from -kind-> to, and the reverse edge for
// symmetric kinds. Removing an absent edge is a no-op.
func (r *Registry) RemoveRelationship(ctx context.Context, from, to string, kind model.RelationKind) error {
	if err := checkEdge(from, to, kind); err != nil {
		return err
	}

	unlock := r.locks.lock(from, to)
	defer unlock()

	changed := false
	err := r.store.Update(ctx, func(tx Tx) error {
		a, b, err := loadPair(tx, from, to)
		if err != nil {
			return err
		}
		now := r.now()
		if a.Relationships.Remove(kind, to) {
			a.UpdatedAt = now
			if err := tx.Put(a); err != nil {
				return err
			}
			changed = true
		}
		if kind.Symmetric() && b.Relationships.Remove(kind, from) {
			b.UpdatedAt = now
			if err := tx.Put(b); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove relationship: %w", err)
	}
	if changed {
		r.committed("unrelate", zap.String("from", from), zap.String("to", to), zap.String("kind", string(kind)))
	}
	return nil
}

// Dependents returns the ids of items holding an edge of kind to id, e.g.
// everything that requires id
func (r *Registry) Dependents(ctx context.Context, id string, kind model.RelationKind) ([]string, error) {
	if _, err := model.ParseRelationKind(string(kind)); err != nil {
		return nil, model.Wrap(model.ReasonInvalidInput, err, "dependents")
	}
	item, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.Errorf(model.ReasonNotFound, "item %s not found", id)
	}
	return r.store.Inbound(ctx, id, kind)
}

// Retire marks id as superseded by successor. The item stays queryable with
// IncludeRetired. Retiring again to the same successor is a no-op.
func (r *Registry) Retire(ctx context.Context, id, successor string) error {
	if id == successor {
		return model.Errorf(model.ReasonInvalidInput, "item %s cannot supersede itself", id)
	}

	unlock := r.locks.lock(id, successor)
	defer unlock()

	changed := false
	err := r.store.Update(ctx, func(tx Tx) error {
		item, _, err := loadPair(tx, id, successor)
		if err != nil {
			return err
		}
		if item.SupersededBy != nil {
			if *item.SupersededBy == successor {
				return nil
			}
			return model.Errorf(model.ReasonInvalidInput,
				"item %s is already superseded by %s", id, *item.SupersededBy)
		}
		s := successor
		item.SupersededBy = &s
		item.UpdatedAt = r.now()
		changed = true
		return tx.Put(item)
	})
	if err != nil {
		return fmt.Errorf("retire: %w", err)
	}
	if changed {
		r.committed("retire", zap.String("id", id), zap.String("successor", successor))
	}
	return nil
}

// update applies fn to one existing item in a single transaction
func (r *Registry) update(ctx context.Context, op, id string, fn func(item *model.ClassifiedItem) error) (model.ClassifiedItem, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	var out model.ClassifiedItem
	err := r.store.Update(ctx, func(tx Tx) error {
		item, err := tx.Get(id)
		if err != nil {
			return err
		}
		if item == nil {
			return model.Errorf(model.ReasonNotFound, "item %s not found", id)
		}
		if err := fn(item); err != nil {
			return err
		}
		item.UpdatedAt = r.now()
		if err := checkInvariants(item); err != nil {
			return err
		}
		out = *item
		return tx.Put(item)
	})
	if err != nil {
		return model.ClassifiedItem{}, fmt.Errorf("%s: %w", op, err)
	}
	r.committed(op, zap.String("id", id), zap.String("tier", string(out.Tier)))
	return out, nil
}

// RecordValidation records a human validation. An item waiting on one is
// promoted to practice. A zero at means now.
func (r *Registry) RecordValidation(ctx context.Context, id, by string, at time.Time) (model.ClassifiedItem, error) {
	if by == "" {
		return model.ClassifiedItem{}, model.Errorf(model.ReasonInvalidInput, "validation requires a validator")
	}
	if at.IsZero() {
		at = r.now()
	}
	at = at.UTC()
	return r.update(ctx, "validate", id, func(item *model.ClassifiedItem) error {
		item.ValidatedAt = &at
		item.ValidatedBy = by
		if item.PendingValidation {
			item.Tier = model.TierPractice
			item.PendingValidation = false
		}
		return nil
	})
}

// OverrideTier sets the tier explicitly, including downgrades. Moving to
// practice needs an existing validation or a validator.
func (r *Registry) OverrideTier(ctx context.Context, id string, tier model.Tier, validatedBy string) (model.ClassifiedItem, error) {
	if !tier.Valid() {
		return model.ClassifiedItem{}, model.Errorf(model.ReasonInvalidInput, "unknown tier %q", tier)
	}
	return r.update(ctx, "override", id, func(item *model.ClassifiedItem) error {
		if validatedBy != "" {
			at := r.now()
			item.ValidatedAt = &at
			item.ValidatedBy = validatedBy
		}
		item.Tier = tier
		item.PendingValidation = false
		return nil
	})
}

// RecordDuplicate stores a marker that a submission duplicated an existing item
func (r *Registry) RecordDuplicate(ctx context.Context, m model.DuplicateMarker) error {
	if m.DocumentID == "" || m.DuplicateOf == "" {
		return model.Errorf(model.ReasonInvalidInput, "duplicate marker needs a document id and a target")
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = r.now()
	}

	unlock := r.locks.lock(m.DuplicateOf)
	defer unlock()

	err := r.store.Update(ctx, func(tx Tx) error {
		target, err := tx.Get(m.DuplicateOf)
		if err != nil {
			return err
		}
		if target == nil {
			return model.Errorf(model.ReasonNotFound, "item %s not found", m.DuplicateOf)
		}
		return tx.PutDuplicate(m)
	})
	if err != nil {
		return fmt.Errorf("record duplicate: %w", err)
	}
	r.committed("duplicate", zap.String("document_id", m.DocumentID), zap.String("duplicate_of", m.DuplicateOf))
	return nil
}

// Duplicates returns the markers recorded against itemID
func (r *Registry) Duplicates(ctx context.Context, itemID string) ([]model.DuplicateMarker, error) {
	return r.store.Duplicates(ctx, itemID)
}

// Fingerprints yields every stored fingerprint, retired items included
func (r *Registry) Fingerprints(ctx context.Context) iter.Seq2[model.Fingerprint, error] {
	return r.store.Fingerprints(ctx)
}

// Intake runs fn as the only intake in progress, so a dedupe check and the
// filing that follows it cannot interleave with another submission's
func (r *Registry) Intake(ctx context.Context, fn func(ctx context.Context) error) error {
	r.intake.Lock()
	defer r.intake.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
