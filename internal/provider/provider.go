// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package provider defines the narrow capability interfaces the search
// core depends on, so concrete upstreams can be swapped without touching
// the retrieval planner or the chat orchestrator.
package provider

import (
	"context"
	"strings"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Embedder converts free text into fixed-dimension numeric vectors via a
// remote embedding model. Implementations keep no local state between
// calls beyond connection reuse; callers bound latency with a context
// deadline.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input in input order. Callers
	// chunk inputs to the configured maximum batch size.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Generator produces a text reply from a grounded prompt via a remote
// generative model.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Close() error
}

// GenerateRequest carries the assembled prompt for one generation call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
}

// Message is one conversation turn offered to the model.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// CheckInput rejects text that is empty after trimming, before any
// upstream call is made.
func CheckInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "text must not be empty")
	}
	return nil
}

// CheckInputs applies CheckInput to every batch element.
func CheckInputs(texts []string) error {
	if len(texts) == 0 {
		return dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "batch must not be empty")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return dwellyerr.Errorf(dwellyerr.CodeProviderRequestInvalid, "batch element %d must not be empty", i)
		}
	}
	return nil
}
