// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/dwelly-dev/dwelly/internal/chat"
	"github.com/dwelly-dev/dwelly/internal/config"
	"github.com/dwelly-dev/dwelly/internal/ingest"
	"github.com/dwelly-dev/dwelly/internal/locale"
	"github.com/dwelly-dev/dwelly/internal/provider"
	anthropicprov "github.com/dwelly-dev/dwelly/internal/provider/anthropic"
	googleprov "github.com/dwelly-dev/dwelly/internal/provider/google"
	openaiprov "github.com/dwelly-dev/dwelly/internal/provider/openai"
	"github.com/dwelly-dev/dwelly/internal/retrieval"
	"github.com/dwelly-dev/dwelly/internal/server"
	"github.com/dwelly-dev/dwelly/internal/store"
	_ "github.com/dwelly-dev/dwelly/internal/store/sqlite" // register sqlite backend
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server       *server.Server
	Orchestrator *chat.Orchestrator
	Planner      *retrieval.Planner
	Indexer      *ingest.Indexer
	Index        store.VectorIndex

	embedder  provider.Embedder
	generator provider.Generator
}

// WireApp creates all subsystems and wires them together.
func WireApp(cfg *config.Config) (*App, error) {
	// 1. Location dictionaries.
	resolver, err := locale.Load(cfg.Locales.Dir, cfg.Locales.Languages)
	if err != nil {
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeCLISetupFailure, "loading locales")
	}

	// 2. Vector index backend.
	index, err := store.OpenIndex(store.IndexConfig{
		Backend:    cfg.Index.Backend,
		Path:       cfg.Index.Path,
		Dimensions: cfg.Embedding.Dimensions,
		MinScore:   cfg.Retrieval.MinSimilarity,
	})
	if err != nil {
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeCLISetupFailure, "opening vector index")
	}

	// 3. Upstream providers, wrapped with health tracking.
	embedTracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	genTracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	rawEmbedder, err := newEmbedder(cfg)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	rawGenerator, err := newGenerator(cfg)
	if err != nil {
		_ = index.Close()
		_ = rawEmbedder.Close()
		return nil, err
	}
	var embedder provider.Embedder = provider.NewTrackedEmbedder(rawEmbedder, embedTracker)
	var generator provider.Generator = provider.NewTrackedGenerator(rawGenerator, genTracker)

	// 4. Retrieval planner.
	planner := retrieval.NewPlanner(embedder, index, resolver, retrieval.Config{
		TopK:             cfg.Retrieval.TopK,
		OversampleFactor: cfg.Retrieval.OversampleFactor,
		MinSimilarity:    cfg.Retrieval.MinSimilarity,
		EmbedTimeout:     cfg.Embedding.Timeout,
	})

	// 5. Chat orchestrator.
	orchestrator := chat.NewOrchestrator(planner, generator, chat.Config{
		Model:           cfg.Generation.Model,
		MaxTokens:       cfg.Generation.MaxTokens,
		TopK:            cfg.Retrieval.TopK,
		HistoryWindow:   cfg.Conversations.HistoryWindow,
		GenerateTimeout: cfg.Generation.Timeout,
		IdleTTL:         cfg.Conversations.IdleTTL,
		SweepInterval:   cfg.Conversations.SweepInterval,
	}, slog.Default())

	// 6. Listing indexer.
	indexer := ingest.NewIndexer(embedder, index, cfg.Embedding.MaxBatch, slog.Default())

	// 7. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	})
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		_ = generator.Close()
		return nil, err
	}
	srv.RegisterServices(&server.Services{
		Chat:   orchestrator,
		Index:  indexer,
		Search: planner,
		Status: &statusService{
			orchestrator: orchestrator,
			index:        index,
			embedTracker: embedTracker,
			genTracker:   genTracker,
		},
	})

	return &App{
		Server:       srv,
		Orchestrator: orchestrator,
		Planner:      planner,
		Indexer:      indexer,
		Index:        index,
		embedder:     embedder,
		generator:    generator,
	}, nil
}

// Close releases provider clients and the index backend.
func (a *App) Close() error {
	var errs []error
	if err := a.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.generator.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Index.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return dwellyerr.Join(errs...)
	}
	return nil
}

// statusService assembles the status endpoint body from live subsystems.
type statusService struct {
	orchestrator *chat.Orchestrator
	index        store.VectorIndex
	embedTracker *provider.HealthTracker
	genTracker   *provider.HealthTracker
}

func (s *statusService) Status(ctx context.Context) (*server.Status, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &server.Status{
		Conversations:   s.orchestrator.Conversations(),
		IndexedListings: count,
		Embedding:       s.embedTracker.Metrics(),
		Generation:      s.genTracker.Metrics(),
	}, nil
}

func newEmbedder(cfg *config.Config) (provider.Embedder, error) {
	creds := cfg.Providers[cfg.Embedding.Provider]

	switch cfg.Embedding.Provider {
	case "openai":
		return openaiprov.NewEmbedder(openaiprov.Config{
			APIKey:     creds.APIKey,
			BaseURL:    creds.Endpoint,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			MaxRetries: cfg.Embedding.MaxRetries,
		})
	case "google":
		return googleprov.NewEmbedder(googleprov.Config{
			APIKey:     creds.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			MaxRetries: cfg.Embedding.MaxRetries,
		})
	default:
		return nil, dwellyerr.Errorf(dwellyerr.CodeCLISetupFailure,
			"unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

func newGenerator(cfg *config.Config) (provider.Generator, error) {
	creds := cfg.Providers[cfg.Generation.Provider]

	switch cfg.Generation.Provider {
	case "openai":
		return openaiprov.NewGenerator(openaiprov.Config{
			APIKey:  creds.APIKey,
			BaseURL: creds.Endpoint,
			Model:   cfg.Generation.Model,
		})
	case "google":
		return googleprov.NewGenerator(googleprov.Config{
			APIKey: creds.APIKey,
			Model:  cfg.Generation.Model,
		})
	case "anthropic":
		return anthropicprov.NewGenerator(anthropicprov.Config{
			APIKey:  creds.APIKey,
			BaseURL: creds.Endpoint,
			Model:   cfg.Generation.Model,
		})
	default:
		return nil, dwellyerr.Errorf(dwellyerr.CodeCLISetupFailure,
			"unsupported generation provider %q", cfg.Generation.Provider)
	}
}
