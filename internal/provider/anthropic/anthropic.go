// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dwelly-dev/dwelly/internal/provider"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Config holds Anthropic client configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
}

// Compile-time interface check. Anthropic has no embeddings product, so
// this package only provides a Generator.
var _ provider.Generator = (*Generator)(nil)

// Generator implements provider.Generator using the Anthropic Messages API.
type Generator struct {
	client anthropicsdk.Client
	config Config
}

// NewGenerator creates an Anthropic generator. Returns an error if the
// API key is missing.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config", dwellyerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{client: anthropicsdk.NewClient(opts...), config: cfg}, nil
}

func (g *Generator) Name() string { return "anthropic" }
func (g *Generator) Close() error { return nil }

// Generate produces a single non-streaming reply for the prompt.
func (g *Generator) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", dwellyerr.New(dwellyerr.CodeProviderResponseInvalid, "anthropic: response has no text content")
	}
	return content, nil
}

// convertMessages transforms provider.Message slices into Anthropic SDK
// MessageParam slices. System messages ride on the top-level system
// param, not the message list.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.MessageRoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, dwellyerr.Errorf(dwellyerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func classify(err error) error {
	var apierr *anthropicsdk.Error
	if errors.As(err, &apierr) {
		return provider.Classify(provider.OpGenerate, "anthropic", apierr.StatusCode, err)
	}
	return provider.Classify(provider.OpGenerate, "anthropic", 0, err)
}
