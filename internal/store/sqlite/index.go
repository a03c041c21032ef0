// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
	store.RegisterBackend("sqlite", func(cfg store.IndexConfig) (store.VectorIndex, error) {
		return NewIndex(cfg.Path, cfg.Dimensions, cfg.MinScore)
	})
}

// Compile-time interface check.
var _ store.VectorIndex = (*Index)(nil)

// Index implements store.VectorIndex backed by SQLite with sqlite-vec.
// Embeddings live in a vec0 virtual table; the listing records live in a
// companion table carrying the filterable columns.
type Index struct {
	db       *sql.DB
	dims     int
	minScore float64
}

// NewIndex opens (or creates) a SQLite database at dbPath and initialises
// the vec0 virtual table and companion listings table.
func NewIndex(dbPath string, dims int, minScore float64) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrate(db, dims); err != nil {
		_ = db.Close()
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "migrating index tables: %w", err)
	}

	return &Index{db: db, dims: dims, minScore: minScore}, nil
}

func migrate(db *sql.DB, dims int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS listing_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dims,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating listing_vectors virtual table: %w", err)
	}

	const listingDDL = `
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	price      REAL NOT NULL DEFAULT 0,
	bedrooms   INTEGER NOT NULL DEFAULT 0,
	type       TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL DEFAULT 0
)`
	if _, err := db.Exec(listingDDL); err != nil {
		return fmt.Errorf("creating listings table: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a listing and its embedding in one
// transaction, so a concurrent query sees either the old or new state.
func (ix *Index) Upsert(ctx context.Context, listing store.Listing, embedding []float32) error {
	if listing.ID == "" {
		return dwellyerr.New(dwellyerr.CodeIndexDatabaseFailure, "listing id must not be empty")
	}
	if len(embedding) != ix.dims {
		return dwellyerr.Errorf(dwellyerr.CodeIndexUpsertDimensionMismatch,
			"expected %d dimensions, got %d", ix.dims, len(embedding))
	}

	blob, err := sqlite_vec.SerializeFloat32(store.Normalize(embedding))
	if err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "serializing embedding: %w", err)
	}

	doc, err := json.Marshal(listing)
	if err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "marshalling listing %s: %w", listing.ID, err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_vectors WHERE id = ?`, listing.ID); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "deleting existing vector %s: %w", listing.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO listing_vectors(id, embedding) VALUES (?, ?)`, listing.ID, blob); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "inserting vector %s: %w", listing.ID, err)
	}

	const listingQ = `INSERT INTO listings(id, doc, price, bedrooms, type, location, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, price = excluded.price, bedrooms = excluded.bedrooms,
	type = excluded.type, location = excluded.location, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, listingQ,
		listing.ID, string(doc), listing.Price, listing.Bedrooms,
		strings.ToLower(listing.Type), listing.Location, listing.UpdatedAt.Unix()); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "upserting listing %s: %w", listing.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "committing upsert: %w", err)
	}
	return nil
}

// Query returns up to k listings ranked by descending cosine similarity.
// Without a filter the vec0 KNN path is used. With a filter, the filtered
// candidate set is ranked by cosine in Go so the filter precedes ranking
// and never displaces in-window matches.
func (ix *Index) Query(ctx context.Context, embedding []float32, k int, filter *store.Filter) ([]store.RetrievalResult, error) {
	if len(embedding) != ix.dims {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexQueryDimensionMismatch,
			"expected %d dimensions, got %d", ix.dims, len(embedding))
	}
	if k <= 0 {
		return nil, nil
	}

	query := store.Normalize(embedding)

	var (
		results []store.RetrievalResult
		err     error
	)
	if filter == nil {
		results, err = ix.knn(ctx, query, k)
	} else {
		results, err = ix.filteredScan(ctx, query, filter)
	}
	if err != nil {
		return nil, err
	}

	// vec0 leaves equal-distance ordering unspecified; re-sort for the
	// deterministic recency/id tie-break.
	store.SortResults(results)

	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func (ix *Index) knn(ctx context.Context, query []float32, k int) ([]store.RetrievalResult, error) {
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "serializing query vector: %w", err)
	}

	const q = `SELECT l.doc, v.distance
FROM listing_vectors v
JOIN listings l ON l.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := ix.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "querying vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.RetrievalResult
	for rows.Next() {
		var doc string
		var distance float64
		if err := rows.Scan(&doc, &distance); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "scanning query result: %w", err)
		}

		// Cosine distance: similarity = 1 - distance.
		score := 1 - distance
		if score < ix.minScore {
			continue
		}

		var listing store.Listing
		if err := json.Unmarshal([]byte(doc), &listing); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "unmarshalling listing doc: %w", err)
		}
		results = append(results, store.RetrievalResult{Listing: listing, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "iterating query results: %w", err)
	}

	return results, nil
}

func (ix *Index) filteredScan(ctx context.Context, query []float32, filter *store.Filter) ([]store.RetrievalResult, error) {
	where, args := filterClause(filter)

	q := `SELECT l.doc, v.embedding
FROM listings l
JOIN listing_vectors v ON v.id = l.id` + where

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "scanning filtered listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.RetrievalResult
	for rows.Next() {
		var doc string
		var blob []byte
		if err := rows.Scan(&doc, &blob); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "scanning filtered result: %w", err)
		}

		embedding, err := deserializeFloat32(blob)
		if err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "deserializing embedding: %w", err)
		}

		score := store.Cosine(query, embedding)
		if score < ix.minScore {
			continue
		}

		var listing store.Listing
		if err := json.Unmarshal([]byte(doc), &listing); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "unmarshalling listing doc: %w", err)
		}
		results = append(results, store.RetrievalResult{Listing: listing, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "iterating filtered results: %w", err)
	}

	return results, nil
}

func filterClause(filter *store.Filter) (string, []any) {
	var conds []string
	var args []any

	if filter.MinPrice > 0 {
		conds = append(conds, "l.price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		conds = append(conds, "l.price <= ?")
		args = append(args, filter.MaxPrice)
	}
	if filter.MinBedrooms > 0 {
		conds = append(conds, "l.bedrooms >= ?")
		args = append(args, filter.MinBedrooms)
	}
	if filter.Type != "" {
		conds = append(conds, "l.type = ?")
		args = append(args, strings.ToLower(filter.Type))
	}
	if filter.Location != "" {
		conds = append(conds, "l.location = ? COLLATE NOCASE")
		args = append(args, filter.Location)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

// Remove deletes one listing and its vector. Absent ids are a no-op.
func (ix *Index) Remove(ctx context.Context, id string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_vectors WHERE id = ?`, id); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "deleting vector %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "deleting listing %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "committing remove: %w", err)
	}
	return nil
}

// Count returns the number of stored listings.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, dwellyerr.Errorf(dwellyerr.CodeIndexDatabaseFailure, "counting listings: %w", err)
	}
	return n, nil
}

// Dimensions returns the configured embedding dimension.
func (ix *Index) Dimensions() int { return ix.dims }

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// deserializeFloat32 decodes the little-endian float32 blob format that
// sqlite-vec stores embeddings in.
func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
