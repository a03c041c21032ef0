// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dwelly-dev/dwelly/internal/chat"
	"github.com/dwelly-dev/dwelly/internal/retrieval"
	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
	"github.com/dwelly-dev/dwelly/pkg/health"
)

// ChatService is the conversation surface the routes depend on.
type ChatService interface {
	HandleMessage(ctx context.Context, convID, text, language string) (*chat.Reply, error)
	History(convID string) ([]chat.Turn, error)
	ClearHistory(convID string) error
}

// IndexService ingests and removes listings.
type IndexService interface {
	IndexListings(ctx context.Context, listings []store.Listing) ([]store.Listing, error)
	Remove(ctx context.Context, id string) error
}

// SearchService runs direct similarity searches with metadata filters.
type SearchService interface {
	Search(ctx context.Context, query, language string, topK int, filter *store.Filter) ([]retrieval.Match, error)
}

// StatusService reports point-in-time gateway state.
type StatusService interface {
	Status(ctx context.Context) (*Status, error)
}

// Status is the body of the status endpoint.
type Status struct {
	Conversations   int            `json:"conversations" doc:"Live conversations"`
	IndexedListings int            `json:"indexed_listings" doc:"Listings in the vector index"`
	Embedding       health.Metrics `json:"embedding" doc:"Embedding upstream health"`
	Generation      health.Metrics `json:"generation" doc:"Generation upstream health"`
}

// Services bundles the service dependencies for route handlers.
type Services struct {
	Chat   ChatService
	Index  IndexService
	Search SearchService
	Status StatusService
}

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Chat endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Send a message to the assistant",
		Tags:        []string{"chat"},
	}, s.handleChat)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations/{id}/history",
		Summary:     "Get conversation history",
		Tags:        []string{"chat"},
	}, s.handleGetHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-history",
		Method:      http.MethodDelete,
		Path:        "/api/v1/conversations/{id}/history",
		Summary:     "Clear conversation history",
		Tags:        []string{"chat"},
	}, s.handleClearHistory)

	// Listing endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "index-listings",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings",
		Summary:     "Index property listings",
		Tags:        []string{"listings"},
	}, s.handleIndexListings)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-listing",
		Method:      http.MethodDelete,
		Path:        "/api/v1/listings/{id}",
		Summary:     "Remove a listing from the index",
		Tags:        []string{"listings"},
	}, s.handleDeleteListing)

	// Status endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	// Direct search endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "search-listings",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Search listings by similarity",
		Tags:        []string{"listings"},
	}, s.handleSearch)
}

// --- Request/Response types for huma ---

type chatInput struct {
	Body struct {
		Message        string `json:"message" minLength:"1" doc:"User message"`
		Language       string `json:"language,omitempty" doc:"Preferred reply language (ISO 639-1)"`
		ConversationID string `json:"conversationId,omitempty" doc:"Existing conversation to continue"`
	}
}
type chatOutput struct {
	Body struct {
		Response struct {
			Content         string   `json:"content" doc:"Assistant reply"`
			CitedListingIDs []string `json:"citedListingIds" doc:"Listings used as grounding context"`
		} `json:"response"`
		ConversationID string `json:"conversationId" doc:"Conversation to pass on the next call"`
	}
}

type historyInput struct {
	ID string `path:"id"`
}
type historyOutput struct {
	Body struct {
		ConversationID string      `json:"conversationId"`
		Turns          []chat.Turn `json:"turns"`
	}
}

type clearHistoryOutput struct {
	Body struct {
		Status string `json:"status" example:"cleared"`
	}
}

type indexListingsInput struct {
	Body struct {
		Listings []store.Listing `json:"listings" minItems:"1" doc:"Listings to embed and index"`
	}
}
type indexListingsOutput struct {
	Body struct {
		Indexed int      `json:"indexed" doc:"Number of listings indexed"`
		IDs     []string `json:"ids" doc:"Listing ids, including generated ones"`
	}
}

type deleteListingInput struct {
	ID string `path:"id"`
}
type deleteListingOutput struct {
	Body struct {
		Status string `json:"status" example:"deleted"`
	}
}

type searchInput struct {
	Body struct {
		Query       string  `json:"query" minLength:"1" doc:"Free-text search query"`
		Language    string  `json:"language,omitempty" doc:"Language for location display names"`
		TopK        int     `json:"topK,omitempty" minimum:"0" maximum:"50" doc:"Maximum results"`
		MinPrice    float64 `json:"minPrice,omitempty" minimum:"0"`
		MaxPrice    float64 `json:"maxPrice,omitempty" minimum:"0"`
		MinBedrooms int     `json:"minBedrooms,omitempty" minimum:"0"`
		Type        string  `json:"type,omitempty" doc:"Property type filter"`
		Location    string  `json:"location,omitempty" doc:"Canonical place key filter"`
	}
}
type searchResult struct {
	Listing          store.Listing `json:"listing"`
	Score            float64       `json:"score"`
	ResolvedLocation string        `json:"resolvedLocation"`
}
type searchOutput struct {
	Body struct {
		Results []searchResult `json:"results"`
	}
}

// --- Handlers ---

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	language := input.Body.Language
	if language == "" {
		language = "en"
	}

	reply, err := s.services.Chat.HandleMessage(ctx, input.Body.ConversationID, input.Body.Message, language)
	if err != nil {
		return nil, statusError(err, "handling chat message")
	}

	out := &chatOutput{}
	out.Body.Response.Content = reply.Content
	out.Body.Response.CitedListingIDs = reply.CitedListingIDs
	if out.Body.Response.CitedListingIDs == nil {
		out.Body.Response.CitedListingIDs = []string{}
	}
	out.Body.ConversationID = reply.ConversationID
	return out, nil
}

func (s *Server) handleGetHistory(_ context.Context, input *historyInput) (*historyOutput, error) {
	turns, err := s.services.Chat.History(input.ID)
	if err != nil {
		return nil, statusError(err, "loading conversation history")
	}

	out := &historyOutput{}
	out.Body.ConversationID = input.ID
	out.Body.Turns = turns
	if out.Body.Turns == nil {
		out.Body.Turns = []chat.Turn{}
	}
	return out, nil
}

func (s *Server) handleClearHistory(_ context.Context, input *historyInput) (*clearHistoryOutput, error) {
	if err := s.services.Chat.ClearHistory(input.ID); err != nil {
		return nil, statusError(err, "clearing conversation history")
	}

	out := &clearHistoryOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

func (s *Server) handleIndexListings(ctx context.Context, input *indexListingsInput) (*indexListingsOutput, error) {
	indexed, err := s.services.Index.IndexListings(ctx, input.Body.Listings)
	if err != nil {
		return nil, statusError(err, "indexing listings")
	}

	out := &indexListingsOutput{}
	out.Body.Indexed = len(indexed)
	out.Body.IDs = make([]string, 0, len(indexed))
	for _, l := range indexed {
		out.Body.IDs = append(out.Body.IDs, l.ID)
	}
	return out, nil
}

func (s *Server) handleDeleteListing(ctx context.Context, input *deleteListingInput) (*deleteListingOutput, error) {
	if err := s.services.Index.Remove(ctx, input.ID); err != nil {
		return nil, statusError(err, "removing listing")
	}

	out := &deleteListingOutput{}
	out.Body.Status = "deleted"
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	language := input.Body.Language
	if language == "" {
		language = "en"
	}

	var filter *store.Filter
	if input.Body.MinPrice > 0 || input.Body.MaxPrice > 0 || input.Body.MinBedrooms > 0 ||
		input.Body.Type != "" || input.Body.Location != "" {
		filter = &store.Filter{
			MinPrice:    input.Body.MinPrice,
			MaxPrice:    input.Body.MaxPrice,
			MinBedrooms: input.Body.MinBedrooms,
			Type:        input.Body.Type,
			Location:    input.Body.Location,
		}
	}

	matches, err := s.services.Search.Search(ctx, input.Body.Query, language, input.Body.TopK, filter)
	if err != nil {
		return nil, statusError(err, "searching listings")
	}

	out := &searchOutput{}
	out.Body.Results = make([]searchResult, 0, len(matches))
	for _, m := range matches {
		out.Body.Results = append(out.Body.Results, searchResult{
			Listing:          m.Listing,
			Score:            m.Score,
			ResolvedLocation: m.ResolvedLocation,
		})
	}
	return out, nil
}

type statusOutput struct {
	Body Status
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	if s.services.Status == nil {
		return nil, huma.Error503ServiceUnavailable("status reporting not configured")
	}

	status, err := s.services.Status.Status(ctx)
	if err != nil {
		return nil, statusError(err, "collecting gateway status")
	}
	return &statusOutput{Body: *status}, nil
}

// statusError maps a service error onto an HTTP status via its error
// code, keeping the code visible to clients in the detail text.
func statusError(err error, msg string) error {
	status := dwellyerr.HTTPStatus(err)
	detail := msg
	if code := dwellyerr.CodeOf(err); code != "" {
		detail = msg + ": " + string(code)
	}
	return huma.NewError(status, detail, err)
}
