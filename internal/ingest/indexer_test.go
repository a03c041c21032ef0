// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwelly-dev/dwelly/internal/ingest"
	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

type batchEmbedder struct {
	batches [][]string
	err     error
}

func (b *batchEmbedder) Name() string { return "batch-stub" }

func (b *batchEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	return []float32{1, 0, 0}, nil
}

func (b *batchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.batches = append(b.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (b *batchEmbedder) Dimensions() int { return 3 }
func (b *batchEmbedder) Close() error    { return nil }

func sampleListing(id, title string) store.Listing {
	return store.Listing{
		ID:       id,
		Title:    title,
		Location: "essaouira",
		Zipcode:  "44000",
		Type:     "riad",
		Price:    250000,
		Rooms:    5,
		Bedrooms: 3,
		Surface:  180,
	}
}

func TestIndexListingsEmbedsAndUpserts(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	embedder := &batchEmbedder{}
	ix := ingest.NewIndexer(embedder, index, 16, nil)

	indexed, err := ix.IndexListings(context.Background(), []store.Listing{
		sampleListing("l1", "Riad Dar Mimosa"),
		sampleListing("l2", "Villa Atlantique"),
	})
	require.NoError(t, err)
	require.Len(t, indexed, 2)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.Len(t, embedder.batches, 1)
	assert.Contains(t, embedder.batches[0][0], "Riad Dar Mimosa")
	assert.Contains(t, embedder.batches[0][0], "riad in essaouira")
}

func TestIndexListingsChunksBatches(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	embedder := &batchEmbedder{}
	ix := ingest.NewIndexer(embedder, index, 2, nil)

	listings := []store.Listing{
		sampleListing("l1", "One"),
		sampleListing("l2", "Two"),
		sampleListing("l3", "Three"),
		sampleListing("l4", "Four"),
		sampleListing("l5", "Five"),
	}
	_, err = ix.IndexListings(context.Background(), listings)
	require.NoError(t, err)

	require.Len(t, embedder.batches, 3)
	assert.Len(t, embedder.batches[0], 2)
	assert.Len(t, embedder.batches[1], 2)
	assert.Len(t, embedder.batches[2], 1)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestIndexListingsAssignsMissingIDs(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	ix := ingest.NewIndexer(&batchEmbedder{}, index, 16, nil)

	indexed, err := ix.IndexListings(context.Background(), []store.Listing{sampleListing("", "Riad Dar Mimosa")})
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	assert.NotEmpty(t, indexed[0].ID)
	assert.False(t, indexed[0].UpdatedAt.IsZero())
}

func TestIndexListingsRejectsEmptyDocument(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	ix := ingest.NewIndexer(&batchEmbedder{}, index, 16, nil)

	_, err = ix.IndexListings(context.Background(), []store.Listing{{ID: "l1"}})
	require.Error(t, err)
	assert.Equal(t, dwellyerr.CodeProviderRequestInvalid, dwellyerr.CodeOf(err))
}

func TestIndexListingsPropagatesEmbedError(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	embedErr := dwellyerr.New(dwellyerr.CodeProviderEmbedUpstreamFailure, "embed: upstream error")
	ix := ingest.NewIndexer(&batchEmbedder{err: embedErr}, index, 16, nil)

	_, err = ix.IndexListings(context.Background(), []store.Listing{sampleListing("l1", "Riad")})
	require.Error(t, err)
	assert.True(t, dwellyerr.IsUpstreamFailure(err))

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexListingsEmptyInput(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	ix := ingest.NewIndexer(&batchEmbedder{}, index, 16, nil)

	indexed, err := ix.IndexListings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, indexed)
}

func TestRemovePassthrough(t *testing.T) {
	index, err := store.NewMemoryIndex(3, 0)
	require.NoError(t, err)
	ix := ingest.NewIndexer(&batchEmbedder{}, index, 16, nil)

	_, err = ix.IndexListings(context.Background(), []store.Listing{sampleListing("l1", "Riad")})
	require.NoError(t, err)
	require.NoError(t, ix.Remove(context.Background(), "l1"))

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDocumentComposition(t *testing.T) {
	l := sampleListing("l1", "Riad Dar Mimosa")
	l.Amenities = []string{"pool", "terrace"}
	l.Description = "Restored riad in the medina."

	doc := ingest.Document(l)
	assert.Contains(t, doc, "Riad Dar Mimosa")
	assert.Contains(t, doc, "riad in essaouira")
	assert.Contains(t, doc, "44000")
	assert.Contains(t, doc, "price 250000")
	assert.Contains(t, doc, "5 rooms")
	assert.Contains(t, doc, "3 bedrooms")
	assert.Contains(t, doc, "180 m2")
	assert.Contains(t, doc, "pool, terrace")
	assert.Contains(t, doc, "Restored riad in the medina.")

	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.UpdatedAt = updated
	assert.NotContains(t, ingest.Document(l), "2026")
}
