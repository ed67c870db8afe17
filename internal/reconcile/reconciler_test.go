package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	key string
	val int
}

// memStore is an in-memory Store backing the reconciler tests. It keeps the
// same created/updated semantics a relational store would: Upsert with
// refresh overwrites, without refresh leaves existing rows alone.
type memStore struct {
	rows map[string]int

	existingCalls int
	applyCalls    int
	upsertCalls   int

	existingErr error
	applyErr    error
	upsertErr   error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]int)}
}

func (s *memStore) Key(r *row) string { return r.key }

func (s *memStore) Existing(_ context.Context, records []*row) (map[string]struct{}, error) {
	s.existingCalls++
	if s.existingErr != nil {
		return nil, s.existingErr
	}
	found := make(map[string]struct{})
	for _, r := range records {
		if _, ok := s.rows[r.key]; ok {
			found[r.key] = struct{}{}
		}
	}
	return found, nil
}

func (s *memStore) ApplySplit(_ context.Context, toCreate, toUpdate []*row) error {
	s.applyCalls++
	if s.applyErr != nil {
		return s.applyErr
	}
	for _, r := range toCreate {
		s.rows[r.key] = r.val
	}
	for _, r := range toUpdate {
		s.rows[r.key] = r.val
	}
	return nil
}

func (s *memStore) Upsert(_ context.Context, records []*row, refresh bool) (int, error) {
	s.upsertCalls++
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	created := 0
	for _, r := range records {
		if _, ok := s.rows[r.key]; !ok {
			created++
			s.rows[r.key] = r.val
		} else if refresh {
			s.rows[r.key] = r.val
		}
	}
	return created, nil
}

func TestReconcileEmptyBatch(t *testing.T) {
	store := newMemStore()
	r := New[*row](store, StrategyUpsert, RefreshOnConflict)

	result, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Zero(t, store.upsertCalls)
	assert.Zero(t, store.existingCalls)
}

func TestReconcileCounts(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		mode     Mode
	}{
		{"upsert refresh", StrategyUpsert, RefreshOnConflict},
		{"upsert ignore", StrategyUpsert, IgnoreConflicts},
		{"query refresh", StrategyQueryThenBranch, RefreshOnConflict},
		{"query ignore", StrategyQueryThenBranch, IgnoreConflicts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.rows["a"] = 1
			store.rows["b"] = 2
			r := New[*row](store, tt.strategy, tt.mode)

			batch := []*row{
				{key: "a", val: 10},
				{key: "b", val: 20},
				{key: "c", val: 30},
			}
			result, err := r.Reconcile(context.Background(), batch)
			require.NoError(t, err)

			assert.Equal(t, 1, result.Created)
			if tt.mode == RefreshOnConflict {
				assert.Equal(t, 2, result.Updated)
			} else {
				assert.Equal(t, 0, result.Updated)
			}

			// New rows land regardless of mode.
			assert.Equal(t, 30, store.rows["c"])

			if tt.mode == RefreshOnConflict {
				assert.Equal(t, 10, store.rows["a"])
				assert.Equal(t, 20, store.rows["b"])
			} else {
				assert.Equal(t, 1, store.rows["a"])
				assert.Equal(t, 2, store.rows["b"])
			}
		})
	}
}

func TestReconcileIdempotent(t *testing.T) {
	for _, strategy := range []Strategy{StrategyUpsert, StrategyQueryThenBranch} {
		t.Run(strategy.String(), func(t *testing.T) {
			store := newMemStore()
			r := New[*row](store, strategy, RefreshOnConflict)
			batch := []*row{{key: "a", val: 1}, {key: "b", val: 2}}

			first, err := r.Reconcile(context.Background(), batch)
			require.NoError(t, err)
			assert.Equal(t, Result{Created: 2, Updated: 0}, first)

			second, err := r.Reconcile(context.Background(), batch)
			require.NoError(t, err)
			assert.Equal(t, Result{Created: 0, Updated: 2}, second)
			assert.Len(t, store.rows, 2)
		})
	}
}

func TestReconcileStrategiesConverge(t *testing.T) {
	batch := []*row{
		{key: "a", val: 10},
		{key: "b", val: 20},
		{key: "c", val: 30},
	}

	run := func(strategy Strategy) map[string]int {
		store := newMemStore()
		store.rows["a"] = 1
		r := New[*row](store, strategy, RefreshOnConflict)
		_, err := r.Reconcile(context.Background(), batch)
		require.NoError(t, err)
		return store.rows
	}

	assert.Equal(t, run(StrategyUpsert), run(StrategyQueryThenBranch))
}

func TestReconcileQueryThenBranchDispatch(t *testing.T) {
	store := newMemStore()
	r := New[*row](store, StrategyQueryThenBranch, RefreshOnConflict)

	_, err := r.Reconcile(context.Background(), []*row{{key: "x", val: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, store.existingCalls)
	assert.Equal(t, 1, store.applyCalls)
	assert.Zero(t, store.upsertCalls)
}

func TestReconcileStoreErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("upsert error", func(t *testing.T) {
		store := newMemStore()
		store.upsertErr = boom
		r := New[*row](store, StrategyUpsert, RefreshOnConflict)
		_, err := r.Reconcile(context.Background(), []*row{{key: "a"}})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("existing error", func(t *testing.T) {
		store := newMemStore()
		store.existingErr = boom
		r := New[*row](store, StrategyQueryThenBranch, RefreshOnConflict)
		_, err := r.Reconcile(context.Background(), []*row{{key: "a"}})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, store.applyCalls)
	})

	t.Run("apply error", func(t *testing.T) {
		store := newMemStore()
		store.applyErr = boom
		r := New[*row](store, StrategyQueryThenBranch, RefreshOnConflict)
		_, err := r.Reconcile(context.Background(), []*row{{key: "a"}})
		assert.ErrorIs(t, err, boom)
	})
}

func TestResultAdd(t *testing.T) {
	r := Result{Created: 1, Updated: 2}
	r.Add(Result{Created: 3, Updated: 4})
	assert.Equal(t, Result{Created: 4, Updated: 6}, r)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: RefreshOnConflict},
		{in: "refresh", want: RefreshOnConflict},
		{in: "ignore", want: IgnoreConflicts},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "", want: StrategyUpsert},
		{in: "upsert", want: StrategyUpsert},
		{in: "query", want: StrategyQueryThenBranch},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
