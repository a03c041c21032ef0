// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dwelly-dev/dwelly/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8470", cfg.Networking.Listen)
	assert.Equal(t, "google", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 16, cfg.Embedding.MaxBatch)
	assert.Equal(t, 1, cfg.Embedding.MaxRetries)
	assert.Equal(t, "gemini-2.5-flash", cfg.Generation.Model)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.OversampleFactor)
	assert.InDelta(t, 0.25, cfg.Retrieval.MinSimilarity, 1e-9)
	assert.Equal(t, 6, cfg.Conversations.HistoryWindow)
	assert.Equal(t, 30*time.Minute, cfg.Conversations.IdleTTL)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, []string{"en", "fr", "ar", "es", "de", "ru"}, cfg.Locales.Languages)
	assert.Equal(t, "en", cfg.Locales.Default)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dwelly.yaml")
	content := `
networking:
  listen: "0.0.0.0:9000"
retrieval:
  top_k: 8
index:
  backend: sqlite
  path: /tmp/dwelly.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Networking.Listen)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, "/tmp/dwelly.db", cfg.Index.Path)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Networking.Listen = "not-an-address"
	cfg.Embedding.Dimensions = 0
	cfg.Retrieval.OversampleFactor = 0
	cfg.Conversations.HistoryWindow = -1

	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 4)
}

func TestValidateListen(t *testing.T) {
	tests := []struct {
		name   string
		listen string
		ok     bool
	}{
		{"valid", "127.0.0.1:8470", true},
		{"empty host", ":8080", true},
		{"empty", "", false},
		{"no port", "localhost", false},
		{"bad port", "localhost:banana", false},
		{"port out of range", "localhost:70000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			cfg.Networking.Listen = tt.listen

			errs := cfg.Validate()
			if tt.ok {
				assert.Empty(t, errs)
			} else {
				assert.NotEmpty(t, errs)
			}
		})
	}
}

func TestValidateProviders(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Embedding.Provider = "anthropic" // no embeddings product
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "embedding.provider")

	cfg.Embedding.Provider = "openai"
	cfg.Generation.Provider = "mystery"
	errs = cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "generation.provider")
}

func TestValidateSQLiteNeedsPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Index.Backend = "sqlite"
	cfg.Index.Path = ""
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "index.path")
}

func TestValidateDefaultLanguageMustBeSupported(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Locales.Default = "pt"
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "locales.default")
}
