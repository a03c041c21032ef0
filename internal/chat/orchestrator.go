// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package chat owns the conversation lifecycle and drives the
// retrieve-then-generate turn pipeline.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwelly-dev/dwelly/internal/provider"
	"github.com/dwelly-dev/dwelly/internal/retrieval"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

const defaultSystemPrompt = `You are Dwelly, a real-estate search assistant.
Answer questions about property listings using only the listing context
provided below. Never invent listings or details that are not in the
context. Keep answers short and concrete. Reply in the language the user
writes in.`

// Retriever supplies grounding candidates for a user message.
type Retriever interface {
	Retrieve(ctx context.Context, query, language string, topK int) ([]retrieval.Match, error)
}

// Config holds the tunables for the orchestrator.
type Config struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	// TopK is the number of listings offered as grounding context.
	TopK int
	// HistoryWindow is the number of most recent turns included in the
	// prompt. The full log is kept; only the prompt is windowed.
	HistoryWindow int
	// GenerateTimeout bounds the generation call independently of the
	// embedding timeout applied inside the retriever.
	GenerateTimeout time.Duration
	// IdleTTL and SweepInterval control background eviction of idle
	// conversations.
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 6
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Reply is the outcome of one completed turn.
type Reply struct {
	ConversationID  string
	Content         string
	CitedListingIDs []string
	Language        string
}

// Orchestrator coordinates retrieval, prompt assembly, and generation
// for every conversation turn.
type Orchestrator struct {
	retriever Retriever
	generator provider.Generator
	registry  *registry
	cfg       Config
	logger    *slog.Logger
	clock     func() time.Time
}

// NewOrchestrator returns an Orchestrator over the given retriever and
// generator. A nil logger falls back to slog.Default.
func NewOrchestrator(retriever Retriever, generator provider.Generator, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		registry:  newRegistry(time.Now),
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
	}
}

// HandleMessage runs one full turn: retrieve grounding context,
// assemble the prompt, generate a reply, and append both turns to the
// conversation log. A retrieval failure degrades the turn to an
// ungrounded answer; a generation failure is terminal and leaves the
// log untouched.
func (o *Orchestrator) HandleMessage(ctx context.Context, convID, text, language string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, dwellyerr.New(dwellyerr.CodeChatRequestInvalidInput, "message must not be empty",
			dwellyerr.FieldConversationID(convID))
	}

	conv := o.registry.getOrCreate(convID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	matches, err := o.retriever.Retrieve(ctx, text, language, o.cfg.TopK)
	if err != nil {
		o.logger.Warn("retrieval failed, answering without listing context",
			"conversation_id", conv.ID,
			"code", dwellyerr.CodeOf(err),
			"error", err)
		matches = nil
	}

	req := provider.GenerateRequest{
		Model:        o.cfg.Model,
		SystemPrompt: o.systemPrompt(matches),
		Messages:     o.promptMessages(conv, text),
		MaxTokens:    o.cfg.MaxTokens,
	}

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	content, err := o.generator.Generate(genCtx, req)
	if err != nil {
		// The provider cause stays in the chain, so HTTP mapping still
		// distinguishes timeouts from other upstream failures.
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeChatGenerateFailure, "generation failed",
			dwellyerr.FieldConversationID(conv.ID),
			dwellyerr.FieldLanguage(language))
	}

	now := o.clock()
	conv.turns = append(conv.turns,
		Turn{Role: provider.MessageRoleUser, Content: text, At: now},
		Turn{Role: provider.MessageRoleAssistant, Content: content, At: now},
	)
	conv.touch(now)

	cited := make([]string, 0, len(matches))
	for _, m := range matches {
		cited = append(cited, m.Listing.ID)
	}

	return &Reply{
		ConversationID:  conv.ID,
		Content:         content,
		CitedListingIDs: cited,
		Language:        language,
	}, nil
}

// History returns a copy of the full turn log for a conversation.
func (o *Orchestrator) History(convID string) ([]Turn, error) {
	conv, ok := o.registry.get(convID)
	if !ok {
		return nil, dwellyerr.New(dwellyerr.CodeChatConversationNotFound, "conversation not found",
			dwellyerr.FieldConversationID(convID))
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.snapshot(), nil
}

// ClearHistory removes a conversation and its turn log. A conversation
// with a turn in flight is left in place and reported as a conflict;
// the caller retries once the turn completes.
func (o *Orchestrator) ClearHistory(convID string) error {
	conv, ok := o.registry.get(convID)
	if !ok {
		return dwellyerr.New(dwellyerr.CodeChatConversationNotFound, "conversation not found",
			dwellyerr.FieldConversationID(convID))
	}

	if !conv.mu.TryLock() {
		return dwellyerr.New(dwellyerr.CodeChatConversationConflict, "conversation has a turn in flight",
			dwellyerr.FieldConversationID(convID))
	}
	o.registry.remove(convID)
	conv.mu.Unlock()
	return nil
}

// Conversations returns the number of live conversations.
func (o *Orchestrator) Conversations() int {
	return o.registry.len()
}

// RunSweeper evicts idle conversations on a fixed interval until ctx is
// canceled. Callers run it in its own goroutine.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.registry.sweep(o.cfg.IdleTTL); n > 0 {
				o.logger.Debug("evicted idle conversations", "count", n)
			}
		}
	}
}

func (o *Orchestrator) systemPrompt(matches []retrieval.Match) string {
	base := o.cfg.SystemPrompt
	if base == "" {
		base = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")

	if len(matches) == 0 {
		b.WriteString("No listings matched this query. Say so plainly and suggest how the user could refine their search.")
		return b.String()
	}

	b.WriteString("Listing context:\n")
	for i, m := range matches {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, formatListing(m)))
	}
	return b.String()
}

func formatListing(m retrieval.Match) string {
	l := m.Listing

	location := m.ResolvedLocation
	if l.Zipcode != "" {
		location = location + " " + l.Zipcode
	}

	parts := []string{
		"Title: " + l.Title,
		"Type: " + l.Type,
		"Location: " + location,
	}
	if l.Price > 0 {
		parts = append(parts, fmt.Sprintf("Price: %.0f", l.Price))
	}
	if l.Rooms > 0 {
		parts = append(parts, fmt.Sprintf("Rooms: %d", l.Rooms))
	}
	if l.Bedrooms > 0 {
		parts = append(parts, fmt.Sprintf("Bedrooms: %d", l.Bedrooms))
	}
	if l.Surface > 0 {
		parts = append(parts, fmt.Sprintf("Surface: %.0f m2", l.Surface))
	}
	if len(l.Amenities) > 0 {
		parts = append(parts, "Amenities: "+strings.Join(l.Amenities, ", "))
	}
	if l.Description != "" {
		parts = append(parts, "Description: "+l.Description)
	}
	return strings.Join(parts, " | ")
}

// promptMessages windows the history and appends the current user
// message. Caller must hold conv.mu.
func (o *Orchestrator) promptMessages(conv *Conversation, text string) []provider.Message {
	history := conv.tail(o.cfg.HistoryWindow)

	messages := make([]provider.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	return append(messages, provider.Message{Role: provider.MessageRoleUser, Content: text})
}
