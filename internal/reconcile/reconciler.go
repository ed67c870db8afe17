// Package reconcile classifies incoming batches of records as new or
// existing against stored state, and applies them in bulk. It is the single
// write discipline shared by weather ingestion, crop ingestion and the
// stats aggregation: one batch is one unit of atomicity.
package reconcile

import (
	"context"
	"fmt"
)

// Mode selects what happens when a candidate's natural key already exists.
type Mode int

const (
	// RefreshOnConflict updates the existing row's mutable fields with the
	// candidate's values. Key columns and creation metadata are never touched.
	RefreshOnConflict Mode = iota

	// IgnoreConflicts silently skips candidates whose key already exists;
	// stored rows keep their original values.
	IgnoreConflicts
)

func (m Mode) String() string {
	if m == IgnoreConflicts {
		return "ignore"
	}
	return "refresh"
}

// ParseMode maps a configuration token to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "refresh", "":
		return RefreshOnConflict, nil
	case "ignore":
		return IgnoreConflicts, nil
	}
	return 0, fmt.Errorf("unknown conflict mode %q, expected refresh or ignore", s)
}

// Strategy selects how existing rows are detected.
type Strategy int

const (
	// StrategyUpsert submits the whole batch as one conflict-aware bulk
	// write; the store's unique constraint does the classification.
	StrategyUpsert Strategy = iota

	// StrategyQueryThenBranch looks up existing keys with a batched select,
	// splits the batch by set difference and applies creates and updates as
	// two bulk operations inside one transaction.
	StrategyQueryThenBranch
)

func (s Strategy) String() string {
	if s == StrategyQueryThenBranch {
		return "query"
	}
	return "upsert"
}

// ParseStrategy maps a configuration token to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "upsert", "":
		return StrategyUpsert, nil
	case "query":
		return StrategyQueryThenBranch, nil
	}
	return 0, fmt.Errorf("unknown reconcile strategy %q, expected upsert or query", s)
}

// Result reports how a batch landed in the store. Under IgnoreConflicts,
// skipped candidates count as neither created nor updated.
type Result struct {
	Created int
	Updated int
}

// Add accumulates another batch's counts, for per-run totals.
func (r *Result) Add(other Result) {
	r.Created += other.Created
	r.Updated += other.Updated
}

// Store is the collection a batch reconciles against. Implementations must
// make ApplySplit and Upsert all-or-nothing: a constraint violation outside
// the expected natural key, or any connectivity failure, rolls back the
// whole batch.
type Store[R any] interface {
	// Key returns the record's natural key.
	Key(record R) string

	// Existing reports which of the candidates' keys are already stored,
	// using batched lookups rather than one round trip per record.
	Existing(ctx context.Context, records []R) (map[string]struct{}, error)

	// ApplySplit bulk-creates toCreate and bulk-updates the mutable fields
	// of toUpdate inside a single transaction.
	ApplySplit(ctx context.Context, toCreate, toUpdate []R) error

	// Upsert writes the batch with the natural key as conflict target,
	// refreshing mutable fields on conflict when refresh is true and
	// skipping conflicting rows otherwise. It returns how many rows were
	// newly created.
	Upsert(ctx context.Context, records []R, refresh bool) (created int, err error)
}

// Reconciler applies candidate batches to a Store with a fixed strategy and
// conflict mode. Both strategies produce identical final state.
type Reconciler[R any] struct {
	store    Store[R]
	strategy Strategy
	mode     Mode
}

// New creates a Reconciler over the given store.
func New[R any](store Store[R], strategy Strategy, mode Mode) *Reconciler[R] {
	return &Reconciler[R]{store: store, strategy: strategy, mode: mode}
}

// Reconcile applies one batch and reports created/updated counts. An empty
// batch is a no-op with zero counts and no store traffic.
func (r *Reconciler[R]) Reconcile(ctx context.Context, batch []R) (Result, error) {
	if len(batch) == 0 {
		return Result{}, nil
	}

	if r.strategy == StrategyQueryThenBranch {
		return r.queryThenBranch(ctx, batch)
	}
	return r.upsert(ctx, batch)
}

func (r *Reconciler[R]) queryThenBranch(ctx context.Context, batch []R) (Result, error) {
	existing, err := r.store.Existing(ctx, batch)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up existing keys: %w", err)
	}

	toCreate := make([]R, 0, len(batch))
	toUpdate := make([]R, 0, len(existing))
	for _, record := range batch {
		if _, ok := existing[r.store.Key(record)]; ok {
			toUpdate = append(toUpdate, record)
		} else {
			toCreate = append(toCreate, record)
		}
	}

	if r.mode == IgnoreConflicts {
		toUpdate = nil
	}

	if err := r.store.ApplySplit(ctx, toCreate, toUpdate); err != nil {
		return Result{}, fmt.Errorf("failed to apply batch: %w", err)
	}

	return Result{Created: len(toCreate), Updated: len(toUpdate)}, nil
}

func (r *Reconciler[R]) upsert(ctx context.Context, batch []R) (Result, error) {
	created, err := r.store.Upsert(ctx, batch, r.mode == RefreshOnConflict)
	if err != nil {
		return Result{}, fmt.Errorf("failed to upsert batch: %w", err)
	}

	result := Result{Created: created}
	if r.mode == RefreshOnConflict {
		result.Updated = len(batch) - created
	}
	return result, nil
}
