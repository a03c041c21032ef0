// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package retrieval turns a natural-language query into a ranked,
// deduplicated context set of candidate listings.
package retrieval

import (
	"context"
	"time"

	"github.com/dwelly-dev/dwelly/internal/locale"
	"github.com/dwelly-dev/dwelly/internal/provider"
	"github.com/dwelly-dev/dwelly/internal/store"
)

// Config controls candidate selection.
type Config struct {
	// TopK is the default result count when the caller passes topK <= 0.
	TopK int
	// OversampleFactor widens the index query to topK*factor so
	// deduplication does not under-fill the result set.
	OversampleFactor int
	// MinSimilarity drops near-orthogonal candidates even when fewer
	// than topK remain. Zero results is a valid outcome.
	MinSimilarity float64
	// EmbedTimeout bounds the embedding call independently of the
	// caller's deadline.
	EmbedTimeout time.Duration
}

// Match is one retrieved candidate with its location resolved for the
// requested language.
type Match struct {
	Listing          store.Listing
	Score            float64
	ResolvedLocation string
}

// Planner embeds queries, searches the vector index, and assembles the
// grounding context for the chat orchestrator.
type Planner struct {
	embedder provider.Embedder
	index    store.VectorIndex
	resolver *locale.Resolver
	cfg      Config
}

// NewPlanner returns a Planner over the given embedder, index, and
// location resolver.
func NewPlanner(embedder provider.Embedder, index store.VectorIndex, resolver *locale.Resolver, cfg Config) *Planner {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.OversampleFactor < 1 {
		cfg.OversampleFactor = 2
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	return &Planner{embedder: embedder, index: index, resolver: resolver, cfg: cfg}
}

// Retrieve returns up to topK candidates for the query, ranked by
// similarity, deduplicated, with locations resolved for language.
// An embedding failure fails the whole retrieval with the same error
// kind; there is no keyword fallback.
func (p *Planner) Retrieve(ctx context.Context, query, language string, topK int) ([]Match, error) {
	return p.search(ctx, query, language, topK, nil)
}

// Search is Retrieve with a metadata filter applied before ranking.
func (p *Planner) Search(ctx context.Context, query, language string, topK int, filter *store.Filter) ([]Match, error) {
	return p.search(ctx, query, language, topK, filter)
}

func (p *Planner) search(ctx context.Context, query, language string, topK int, filter *store.Filter) ([]Match, error) {
	if err := provider.CheckInput(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(embedCtx, query)
	if err != nil {
		return nil, err
	}

	results, err := p.index.Query(ctx, vector, topK*p.cfg.OversampleFactor, filter)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, topK)
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Score < p.cfg.MinSimilarity {
			continue
		}
		key := r.Listing.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		matches = append(matches, Match{
			Listing:          r.Listing,
			Score:            r.Score,
			ResolvedLocation: p.resolver.Resolve(r.Listing.Location, language),
		})
		if len(matches) == topK {
			break
		}
	}

	return matches, nil
}
