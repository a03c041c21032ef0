// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package store

import (
	"strings"
	"time"
)

// Listing is an immutable property record. Records are created at
// ingestion time; the search core only reads them. The embedding is
// derived from the listing text and must be recomputed whenever the
// description or attributes change.
type Listing struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location"` // canonical place key
	Zipcode     string    `json:"zipcode,omitempty"`
	Type        string    `json:"type,omitempty"` // apartment, house, villa, riad, land
	Rooms       int       `json:"rooms,omitempty"`
	Bedrooms    int       `json:"bedrooms,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Surface     float64   `json:"surface,omitempty"`
	Amenities   []string  `json:"amenities,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DedupKey returns a stable identifier independent of the listing id,
// used to collapse duplicate listings referring to the same property.
func (l Listing) DedupKey() string {
	title := strings.Join(strings.Fields(strings.ToLower(l.Title)), " ")
	return title + "|" + strings.ToLower(l.Location)
}

// RetrievalResult is one ranked candidate from a vector index query.
// Results are ephemeral and never persisted.
type RetrievalResult struct {
	Listing Listing
	Score   float64 // cosine similarity, higher is better
	Rank    int     // 1-based position in the result set
}

// Filter restricts a query to listings matching metadata constraints.
// Zero values mean "no constraint". Filters are applied before ranking
// so candidates outside the filter window never displace matches.
type Filter struct {
	MinPrice    float64
	MaxPrice    float64
	MinBedrooms int
	Type        string
	Location    string // canonical place key
}

// Matches reports whether the listing satisfies every set constraint.
func (f *Filter) Matches(l Listing) bool {
	if f == nil {
		return true
	}
	if f.MinPrice > 0 && l.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	if f.MinBedrooms > 0 && l.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.Type != "" && !strings.EqualFold(f.Type, l.Type) {
		return false
	}
	if f.Location != "" && !strings.EqualFold(f.Location, l.Location) {
		return false
	}
	return true
}
