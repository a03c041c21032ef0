// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package ingest embeds listing records and loads them into the vector
// index.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwelly-dev/dwelly/internal/provider"
	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Indexer batches listings through the embedder and upserts the
// resulting vectors.
type Indexer struct {
	embedder provider.Embedder
	index    store.VectorIndex
	maxBatch int
	logger   *slog.Logger
	clock    func() time.Time
}

// NewIndexer returns an Indexer that embeds at most maxBatch documents
// per upstream call.
func NewIndexer(embedder provider.Embedder, index store.VectorIndex, maxBatch int, logger *slog.Logger) *Indexer {
	if maxBatch <= 0 {
		maxBatch = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder: embedder,
		index:    index,
		maxBatch: maxBatch,
		logger:   logger,
		clock:    time.Now,
	}
}

// IndexListings embeds and upserts every listing. Listings without an
// id get a generated one; the (possibly updated) records are returned
// so callers can report the assigned ids.
func (ix *Indexer) IndexListings(ctx context.Context, listings []store.Listing) ([]store.Listing, error) {
	if len(listings) == 0 {
		return nil, nil
	}

	now := ix.clock()
	docs := make([]string, len(listings))
	for i := range listings {
		if listings[i].ID == "" {
			listings[i].ID = uuid.New().String()
		}
		if listings[i].UpdatedAt.IsZero() {
			listings[i].UpdatedAt = now
		}
		doc := Document(listings[i])
		if strings.TrimSpace(doc) == "" {
			return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "listing has no indexable text",
				dwellyerr.FieldListingID(listings[i].ID))
		}
		docs[i] = doc
	}

	for start := 0; start < len(listings); start += ix.maxBatch {
		end := start + ix.maxBatch
		if end > len(listings) {
			end = len(listings)
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, docs[start:end])
		if err != nil {
			return nil, err
		}

		for i, vector := range vectors {
			listing := listings[start+i]
			if err := ix.index.Upsert(ctx, listing, vector); err != nil {
				return nil, dwellyerr.With(err, dwellyerr.FieldListingID(listing.ID))
			}
		}

		ix.logger.Debug("indexed listing batch", "from", start, "to", end)
	}

	return listings, nil
}

// Remove deletes a listing's vector from the index.
func (ix *Indexer) Remove(ctx context.Context, id string) error {
	return ix.index.Remove(ctx, id)
}

// Document composes the searchable text for one listing: the fields a
// query is likely to mention, in prose order.
func Document(l store.Listing) string {
	var parts []string

	if l.Title != "" {
		parts = append(parts, l.Title)
	}
	switch {
	case l.Type != "" && l.Location != "":
		parts = append(parts, fmt.Sprintf("%s in %s", l.Type, l.Location))
	case l.Type != "":
		parts = append(parts, l.Type)
	case l.Location != "":
		parts = append(parts, l.Location)
	}
	if l.Zipcode != "" {
		parts = append(parts, l.Zipcode)
	}
	if l.Price > 0 {
		parts = append(parts, fmt.Sprintf("price %.0f", l.Price))
	}
	if l.Rooms > 0 {
		parts = append(parts, fmt.Sprintf("%d rooms", l.Rooms))
	}
	if l.Bedrooms > 0 {
		parts = append(parts, fmt.Sprintf("%d bedrooms", l.Bedrooms))
	}
	if l.Surface > 0 {
		parts = append(parts, fmt.Sprintf("%.0f m2", l.Surface))
	}
	if len(l.Amenities) > 0 {
		parts = append(parts, strings.Join(l.Amenities, ", "))
	}
	if l.Description != "" {
		parts = append(parts, l.Description)
	}

	return strings.Join(parts, ". ")
}
