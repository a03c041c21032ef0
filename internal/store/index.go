// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package store

import (
	"context"
	"sync"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// VectorIndex stores per-listing embeddings and answers nearest-neighbor
// queries ranked by cosine similarity. All vectors in one index share the
// configured dimension; an upsert with a mismatched dimension fails with a
// dimension_mismatch code and leaves the index unchanged.
//
// Concurrent queries are allowed. Upserts and removes are serialized with
// respect to each other and to in-flight queries per listing id: a query
// observes either the fully-old or fully-new state for a listing, never a
// partial write.
type VectorIndex interface {
	Upsert(ctx context.Context, listing Listing, embedding []float32) error
	Query(ctx context.Context, embedding []float32, k int, filter *Filter) ([]RetrievalResult, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Dimensions() int
	Close() error
}

// IndexConfig controls which backend the index factory opens.
type IndexConfig struct {
	Backend    string  // "memory" or "sqlite"
	Path       string  // database path, sqlite backend only
	Dimensions int     // embedding dimensions
	MinScore   float64 // minimum similarity a query result may have
}

// IndexFactory opens a vector index for one backend.
type IndexFactory func(cfg IndexConfig) (VectorIndex, error)

var (
	indexFactories = map[string]IndexFactory{}
	factoriesMu    sync.RWMutex
)

// RegisterBackend registers a factory for a named index backend.
// Backend packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, factory IndexFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	indexFactories[name] = factory
}

// OpenIndex opens the vector index selected by cfg.Backend.
func OpenIndex(cfg IndexConfig) (VectorIndex, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}

	factoriesMu.RLock()
	factory, ok := indexFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexBackendUnsupported,
			"unsupported index backend: %q", backend)
	}

	return factory(cfg)
}
