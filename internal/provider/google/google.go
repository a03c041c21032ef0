// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/dwelly-dev/dwelly/internal/provider"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Config holds Google Gemini client configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int // embedder only
	MaxRetries int // embedder only; at most one transient retry
}

// Compile-time interface checks.
var (
	_ provider.Embedder  = (*Embedder)(nil)
	_ provider.Generator = (*Generator)(nil)
)

// Embedder implements provider.Embedder using the Gemini embedding API
// (text-embedding-004 by default).
type Embedder struct {
	client *genai.Client
	config Config
}

// NewEmbedder creates a Gemini embedder. Returns an error if the API key
// is missing.
func NewEmbedder(cfg Config) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "google: embedder dimensions must be greater than 0")
	}

	return &Embedder{client: client, config: cfg}, nil
}

func (e *Embedder) Name() string    { return "google" }
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

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var vectors [][]float32
	call := func(ctx context.Context) error {
		res, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(e.config.Dimensions)),
		})
		if err != nil {
			return classify(provider.OpEmbed, err)
		}
		if len(res.Embeddings) != len(texts) {
			return dwellyerr.Errorf(dwellyerr.CodeProviderResponseInvalid,
				"google: expected %d embeddings, got %d", len(texts), len(res.Embeddings))
		}

		vectors = make([][]float32, len(texts))
		for i, emb := range res.Embeddings {
			vectors[i] = emb.Values
		}
		return nil
	}

	if err := provider.WithRetry(ctx, e.config.MaxRetries, call); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Generator implements provider.Generator using the Gemini generation API.
type Generator struct {
	client *genai.Client
	config Config
}

// NewGenerator creates a Gemini generator. Returns an error if the API
// key is missing.
func NewGenerator(cfg Config) (*Generator, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Generator{client: client, config: cfg}, nil
}

func (g *Generator) Name() string { return "google" }
func (g *Generator) Close() error { return nil }

// Generate produces a single non-streaming reply for the prompt.
func (g *Generator) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
			},
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	res, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classify(provider.OpGenerate, err)
	}

	content := strings.TrimSpace(res.Text())
	if content == "" {
		return "", dwellyerr.New(dwellyerr.CodeProviderResponseInvalid, "google: response has no text content")
	}
	return content, nil
}

func newClient(cfg Config) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, dwellyerr.New(dwellyerr.CodeProviderRequestInvalid, "google: missing api_key in config", dwellyerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, dwellyerr.Wrapf(err, dwellyerr.CodeProviderEmbedUpstreamFailure, "google: creating client")
	}
	return client, nil
}

// convertMessages transforms provider.Message slices into genai.Content
// slices. System messages ride on SystemInstruction, not the contents.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case provider.MessageRoleAssistant:
			result = append(result, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, dwellyerr.Errorf(dwellyerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func classify(op provider.Op, err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return provider.Classify(op, "google", apierr.Code, err)
	}
	return provider.Classify(op, "google", 0, err)
}
