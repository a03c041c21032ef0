// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listing(id string, updated time.Time) store.Listing {
	return store.Listing{
		ID:        id,
		Title:     "Listing " + id,
		Location:  "Essaouira",
		UpdatedAt: updated,
	}
}

func TestMemoryIndexUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	now := time.Now()
	require.NoError(t, ix.Upsert(ctx, listing("a", now), []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("b", now), []float32{0, 1, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("c", now), []float32{0.9, 0.1, 0}))

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Listing.ID)
	assert.Equal(t, "c", results[1].Listing.ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestMemoryIndexDimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	require.NoError(t, ix.Upsert(ctx, listing("a", time.Now()), []float32{1, 0, 0}))

	err = ix.Upsert(ctx, listing("b", time.Now()), []float32{1, 0})
	require.Error(t, err)
	assert.True(t, dwellyerr.IsDimensionMismatch(err))
	assert.Equal(t, dwellyerr.CodeIndexUpsertDimensionMismatch, dwellyerr.CodeOf(err))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Listing.ID)
}

func TestMemoryIndexQueryDimensionMismatch(t *testing.T) {
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	_, err = ix.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.Error(t, err)
	assert.True(t, dwellyerr.IsDimensionMismatch(err))
}

func TestMemoryIndexMinScoreExcludesNearOrthogonal(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0.25)
	require.NoError(t, err)

	now := time.Now()
	// Three vectors well above the 0.25 threshold against [1,0,0].
	require.NoError(t, ix.Upsert(ctx, listing("a", now), []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("b", now), []float32{0.9, 0.1, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("c", now), []float32{0.8, 0.2, 0}))
	// Two near-orthogonal vectors below it.
	require.NoError(t, ix.Upsert(ctx, listing("d", now), []float32{0.1, 0.9, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("e", now), []float32{0, 0, 1}))

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.25)
	}
}

func TestMemoryIndexDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	// Identical vectors: scores tie exactly.
	require.NoError(t, ix.Upsert(ctx, listing("b", older), []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("a", older), []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, listing("c", newer), []float32{1, 0, 0}))

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// Recency first, then id ascending.
	assert.Equal(t, "c", results[0].Listing.ID)
	assert.Equal(t, "a", results[1].Listing.ID)
	assert.Equal(t, "b", results[2].Listing.ID)
}

func TestMemoryIndexFilterAppliedBeforeRanking(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	now := time.Now()
	expensive := store.Listing{ID: "x", Title: "Villa", Location: "Essaouira", Price: 900000, Bedrooms: 4, Type: "villa", UpdatedAt: now}
	cheap := store.Listing{ID: "y", Title: "Riad", Location: "Essaouira", Price: 250000, Bedrooms: 3, Type: "riad", UpdatedAt: now}
	require.NoError(t, ix.Upsert(ctx, expensive, []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, cheap, []float32{0.5, 0.5, 0}))

	// The best raw match is filtered out; the in-budget listing must
	// still be returned rather than an empty set.
	results, err := ix.Query(ctx, []float32{1, 0, 0}, 1, &store.Filter{MaxPrice: 300000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].Listing.ID)
}

func TestMemoryIndexFilterFields(t *testing.T) {
	now := time.Now()
	l := store.Listing{ID: "1", Price: 500000, Bedrooms: 3, Type: "Apartment", Location: "Essaouira", UpdatedAt: now}

	tests := []struct {
		name   string
		filter store.Filter
		want   bool
	}{
		{"no constraints", store.Filter{}, true},
		{"min price pass", store.Filter{MinPrice: 400000}, true},
		{"min price fail", store.Filter{MinPrice: 600000}, false},
		{"max price fail", store.Filter{MaxPrice: 400000}, false},
		{"bedrooms pass", store.Filter{MinBedrooms: 3}, true},
		{"bedrooms fail", store.Filter{MinBedrooms: 4}, false},
		{"type case-insensitive", store.Filter{Type: "apartment"}, true},
		{"type mismatch", store.Filter{Type: "villa"}, false},
		{"location pass", store.Filter{Location: "essaouira"}, true},
		{"location fail", store.Filter{Location: "Marrakech"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(l))
		})
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	require.NoError(t, ix.Upsert(ctx, listing("a", time.Now()), []float32{1, 0, 0}))
	require.NoError(t, ix.Remove(ctx, "a"))
	require.NoError(t, ix.Remove(ctx, "absent")) // no-op

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	require.NoError(t, ix.Upsert(ctx, listing("a", time.Now()), []float32{1, 0, 0}))
	updated := listing("a", time.Now())
	updated.Title = "Renovated riad"
	require.NoError(t, ix.Upsert(ctx, updated, []float32{0, 1, 0}))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := ix.Query(ctx, []float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Renovated riad", results[0].Listing.Title)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemoryIndexConcurrentQueriesAndWrites(t *testing.T) {
	ctx := context.Background()
	ix, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, ix.Upsert(ctx, listing("a", now), []float32{1, 0, 0}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					_, qerr := ix.Query(ctx, []float32{1, 0, 0}, 5, nil)
					assert.NoError(t, qerr)
				} else {
					assert.NoError(t, ix.Upsert(ctx, listing("a", now), []float32{1, 0, 0}))
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	v := store.Normalize([]float32{3, 4, 0})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := store.Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, store.Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, store.Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, store.Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestDedupKeyNormalizesTitle(t *testing.T) {
	a := store.Listing{ID: "1", Title: "  Charming   Riad ", Location: "Essaouira"}
	b := store.Listing{ID: "2", Title: "charming riad", Location: "essaouira"}
	assert.Equal(t, a.DedupKey(), b.DedupKey())
}

func TestOpenIndexUnsupportedBackend(t *testing.T) {
	_, err := store.OpenIndex(store.IndexConfig{Backend: "chroma", Dimensions: 3})
	require.Error(t, err)
	assert.True(t, dwellyerr.HasCode(err, dwellyerr.CodeIndexBackendUnsupported))
	assert.Contains(t, err.Error(), "unsupported index backend")
}

func TestNewMemoryIndexRejectsNonPositiveDimensions(t *testing.T) {
	_, err := store.NewMemoryIndex(0, 0)
	require.Error(t, err)
	assert.True(t, dwellyerr.HasCode(err, dwellyerr.CodeIndexOpenInvalidValue))
	assert.True(t, dwellyerr.IsInvalidInput(err))
}

func TestOpenIndexMemory(t *testing.T) {
	ix, err := store.OpenIndex(store.IndexConfig{Backend: "memory", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, ix.Dimensions())
}
