// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package openai

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/dwelly-dev/dwelly/internal/provider"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Config holds OpenAI client configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int // embedder only
	MaxRetries int // embedder only; at most one transient retry
}

// Compile-time interface checks.
var (
	_ provider.Embedder  = (*Embedder)(nil)
	_ provider.Generator = (*Generator)(nil)
)

// Embedder implements provider.Embedder using the OpenAI Embeddings API.
type Embedder struct {
	client openaisdk.Client
	config Config
}

// NewEmbedder creates an OpenAI embedder. Returns an error if the API key
// is missing.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "openai: missing api_key in config", dwellyerr.FieldProvider("openai"))
	}
	if cfg.Dimensions <= 0 {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "openai: embedder dimensions must be greater than 0")
	}

	return &Embedder{client: newClient(cfg), config: cfg}, nil
}

func (e *Embedder) Name() string    { return "openai" }
func (e *Embedder) Dimensions() int { return e.config.Dimensions }
func (e *Embedder) Close() error    { return nil }

// Embed converts one text into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into vectors, one per input, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := provider.CheckInputs(texts); err != nil {
		return nil, err
	}

	var vectors [][]float32
	call := func(ctx context.Context) error {
		res, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
			Input:      openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model:      openaisdk.EmbeddingModel(e.config.Model),
			Dimensions: param.NewOpt(int64(e.config.Dimensions)),
		})
		if err != nil {
			return classify(provider.OpEmbed, err)
		}
		if len(res.Data) != len(texts) {
			return dwellyerr.Errorf(dwellyerr.CodeProviderResponseInvalid,
				"openai: expected %d embeddings, got %d", len(texts), len(res.Data))
		}

		vectors = make([][]float32, len(texts))
		for _, item := range res.Data {
			vec := make([]float32, len(item.Embedding))
			for i, x := range item.Embedding {
				vec[i] = float32(x)
			}
			vectors[item.Index] = vec
		}
		return nil
	}

	if err := provider.WithRetry(ctx, e.config.MaxRetries, call); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Generator implements provider.Generator using the OpenAI Chat
// Completions API.
type Generator struct {
	client openaisdk.Client
	config Config
}

// NewGenerator creates an OpenAI generator. Returns an error if the API
// key is missing.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "openai: missing api_key in config", dwellyerr.FieldProvider("openai"))
	}

	return &Generator{client: newClient(cfg), config: cfg}, nil
}

func (g *Generator) Name() string { return "openai" }
func (g *Generator) Close() error { return nil }

// Generate produces a single non-streaming completion for the prompt.
func (g *Generator) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(provider.OpGenerate, err)
	}
	if len(completion.Choices) == 0 {
		return "", dwellyerr.New(dwellyerr.CodeProviderResponseInvalid, "openai: completion has no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", dwellyerr.New(dwellyerr.CodeProviderResponseInvalid, "openai: completion content is empty")
	}
	return content, nil
}

func newClient(cfg Config) openaisdk.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The SDK retries internally by default; retry policy lives in
		// provider.WithRetry instead.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openaisdk.NewClient(opts...)
}

// convertMessages transforms provider.Message slices into OpenAI SDK
// message param slices. The system prompt is prepended when present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case provider.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, dwellyerr.Errorf(dwellyerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func classify(op provider.Op, err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		return provider.Classify(op, "openai", apierr.StatusCode, err)
	}
	return provider.Classify(op, "openai", 0, err)
}
