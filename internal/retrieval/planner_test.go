// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package retrieval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwelly-dev/dwelly/internal/locale"
	"github.com/dwelly-dev/dwelly/internal/retrieval"
	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// stubEmbedder returns a fixed vector, or a fixed error.
type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vector) }
func (s *stubEmbedder) Close() error    { return nil }

func testResolver(t *testing.T) *locale.Resolver {
	t.Helper()
	return locale.New(map[string]map[string]string{
		"en": {"essaouira": "Essaouira", "casablanca": "Casablanca"},
		"ar": {"essaouira": "الصويرة", "casablanca": "الدار البيضاء"},
	})
}

func seedIndex(t *testing.T, listings map[string][]float32, byID map[string]store.Listing) store.VectorIndex {
	t.Helper()
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	for id, vec := range listings {
		require.NoError(t, index.Upsert(context.Background(), byID[id], vec))
	}
	return index
}

func plannerListing(id, title, location string) store.Listing {
	return store.Listing{
		ID:        id,
		Title:     title,
		Location:  location,
		Zipcode:   "44000",
		Type:      "apartment",
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPlannerRetrieveRanksAndResolves(t *testing.T) {
	byID := map[string]store.Listing{
		"a": plannerListing("a", "Riad near the medina", "essaouira"),
		"b": plannerListing("b", "Modern flat downtown", "casablanca"),
	}
	index := seedIndex(t, map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.6, 0.8, 0},
	}, byID)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK:             5,
		OversampleFactor: 2,
		MinSimilarity:    0.25,
	})

	matches, err := p.Retrieve(context.Background(), "riad by the sea", "ar", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Listing.ID)
	assert.Equal(t, "الصويرة", matches[0].ResolvedLocation)
	assert.Equal(t, "b", matches[1].Listing.ID)
	assert.Equal(t, "الدار البيضاء", matches[1].ResolvedLocation)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestPlannerRetrieveDropsBelowThreshold(t *testing.T) {
	byID := map[string]store.Listing{
		"near": plannerListing("near", "Sea view studio", "essaouira"),
		"far":  plannerListing("far", "Mountain cabin", "casablanca"),
	}
	index := seedIndex(t, map[string][]float32{
		"near": {1, 0, 0},
		"far":  {0, 1, 0},
	}, byID)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK:             5,
		OversampleFactor: 2,
		MinSimilarity:    0.25,
	})

	matches, err := p.Retrieve(context.Background(), "studio by the beach", "en", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].Listing.ID)
}

func TestPlannerRetrieveZeroResultsIsValid(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK: 5, OversampleFactor: 2, MinSimilarity: 0.25,
	})

	matches, err := p.Retrieve(context.Background(), "anything", "en", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPlannerRetrieveDeduplicatesByTitleAndLocation(t *testing.T) {
	// Same property listed twice under different ids; only the
	// higher-ranked copy survives and the next distinct listing fills
	// the freed slot.
	dupA := plannerListing("dup-a", "Riad Dar Mimosa", "essaouira")
	dupB := plannerListing("dup-b", "riad  dar   mimosa", "essaouira")
	other := plannerListing("other", "Harbour loft", "casablanca")
	byID := map[string]store.Listing{"dup-a": dupA, "dup-b": dupB, "other": other}

	index := seedIndex(t, map[string][]float32{
		"dup-a": {1, 0, 0},
		"dup-b": {0.9, 0.435889894354, 0},
		"other": {0.6, 0.8, 0},
	}, byID)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK:             2,
		OversampleFactor: 2,
		MinSimilarity:    0.25,
	})

	matches, err := p.Retrieve(context.Background(), "riad", "en", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "dup-a", matches[0].Listing.ID)
	assert.Equal(t, "other", matches[1].Listing.ID)
}

func TestPlannerRetrieveTruncatesToTopK(t *testing.T) {
	byID := map[string]store.Listing{}
	vectors := map[string][]float32{}
	base := []float32{1, 0, 0}
	offsets := []float32{0, 0.1, 0.2, 0.3}
	for i, id := range []string{"l0", "l1", "l2", "l3"} {
		byID[id] = plannerListing(id, "Listing "+id, "essaouira")
		vectors[id] = []float32{base[0] - offsets[i], offsets[i], 0}
	}
	index := seedIndex(t, vectors, byID)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK: 5, OversampleFactor: 2, MinSimilarity: 0.25,
	})

	matches, err := p.Retrieve(context.Background(), "listing", "en", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "l0", matches[0].Listing.ID)
}

func TestPlannerRetrievePropagatesEmbedError(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	embedErr := dwellyerr.New(dwellyerr.CodeProviderEmbedTimeout, "embed: no response within deadline")
	p := retrieval.NewPlanner(&stubEmbedder{err: embedErr}, index, testResolver(t), retrieval.Config{
		TopK: 5, OversampleFactor: 2, MinSimilarity: 0.25,
	})

	_, err = p.Retrieve(context.Background(), "riad", "en", 5)
	require.Error(t, err)
	assert.True(t, dwellyerr.IsTimeout(err))
}

func TestPlannerRetrieveRejectsEmptyQuery(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	p := retrieval.NewPlanner(embedder, index, testResolver(t), retrieval.Config{TopK: 5})

	_, err = p.Retrieve(context.Background(), "   ", "en", 5)
	require.Error(t, err)
	assert.Equal(t, dwellyerr.CodeProviderRequestInvalid, dwellyerr.CodeOf(err))
	assert.Zero(t, embedder.calls)
}

func TestPlannerSearchAppliesFilter(t *testing.T) {
	cheap := plannerListing("cheap", "Budget studio", "essaouira")
	cheap.Price = 40000
	pricey := plannerListing("pricey", "Grand villa", "essaouira")
	pricey.Price = 900000
	byID := map[string]store.Listing{"cheap": cheap, "pricey": pricey}

	index := seedIndex(t, map[string][]float32{
		"cheap":  {0.6, 0.8, 0},
		"pricey": {1, 0, 0},
	}, byID)

	p := retrieval.NewPlanner(&stubEmbedder{vector: []float32{1, 0, 0}}, index, testResolver(t), retrieval.Config{
		TopK: 5, OversampleFactor: 2, MinSimilarity: 0.25,
	})

	matches, err := p.Search(context.Background(), "home in essaouira", "en", 5, &store.Filter{MaxPrice: 50000})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cheap", matches[0].Listing.ID)
}
