// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package store

import (
	"context"
	"sort"
	"sync"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

func init() {
	RegisterBackend("memory", func(cfg IndexConfig) (VectorIndex, error) {
		return NewMemoryIndex(cfg.Dimensions, cfg.MinScore)
	})
}

// Compile-time interface check.
var _ VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex is a brute-force cosine-similarity index held in process
// memory. Vectors are unit-normalized at upsert so scoring is a dot
// product. Suited to corpora of a few thousand listings.
type MemoryIndex struct {
	mu       sync.RWMutex
	dims     int
	minScore float64
	entries  map[string]memoryEntry
}

type memoryEntry struct {
	listing   Listing
	embedding []float32 // unit-normalized
}

// NewMemoryIndex creates an in-memory index with the given embedding
// dimension and minimum similarity threshold for query results.
func NewMemoryIndex(dims int, minScore float64) (*MemoryIndex, error) {
	if dims <= 0 {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexOpenInvalidValue,
			"memory index dimensions must be greater than 0, got %d", dims)
	}

	return &MemoryIndex{
		dims:     dims,
		minScore: minScore,
		entries:  map[string]memoryEntry{},
	}, nil
}

// Upsert inserts or replaces the vector and listing for one id.
func (m *MemoryIndex) Upsert(_ context.Context, listing Listing, embedding []float32) error {
	if listing.ID == "" {
		return dwellyerr.New(dwellyerr.CodeIndexDatabaseFailure, "listing id must not be empty")
	}
	if len(embedding) != m.dims {
		return dwellyerr.Errorf(dwellyerr.CodeIndexUpsertDimensionMismatch,
			"expected %d dimensions, got %d", m.dims, len(embedding))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[listing.ID] = memoryEntry{
		listing:   listing,
		embedding: Normalize(embedding),
	}
	return nil
}

// Query returns up to k listings ranked by descending cosine similarity.
// The filter is applied before ranking. Ties break by descending listing
// recency, then ascending listing id, so ordering is deterministic.
func (m *MemoryIndex) Query(_ context.Context, embedding []float32, k int, filter *Filter) ([]RetrievalResult, error) {
	if len(embedding) != m.dims {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexQueryDimensionMismatch,
			"expected %d dimensions, got %d", m.dims, len(embedding))
	}
	if k <= 0 {
		return nil, nil
	}

	query := Normalize(embedding)

	m.mu.RLock()
	candidates := make([]RetrievalResult, 0, len(m.entries))
	for _, e := range m.entries {
		if !filter.Matches(e.listing) {
			continue
		}
		score := Cosine(query, e.embedding)
		if score < m.minScore {
			continue
		}
		candidates = append(candidates, RetrievalResult{Listing: e.listing, Score: score})
	}
	m.mu.RUnlock()

	SortResults(candidates)

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// Remove deletes one listing's vector. Removing an absent id is a no-op.
func (m *MemoryIndex) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Count returns the number of stored vectors.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Dimensions returns the configured embedding dimension.
func (m *MemoryIndex) Dimensions() int { return m.dims }

// Close releases the index contents.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]memoryEntry{}
	return nil
}

// SortResults orders results by descending score, breaking ties by
// descending listing recency and then ascending listing id.
func SortResults(results []RetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Listing.UpdatedAt, results[j].Listing.UpdatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Listing.ID < results[j].Listing.ID
	})
}
