// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dwelly-dev/dwelly/internal/secrets"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Dwelly configuration.
type Config struct {
	Networking    NetworkingConfig          `mapstructure:"networking"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
	Embedding     EmbeddingConfig           `mapstructure:"embedding"`
	Generation    GenerationConfig          `mapstructure:"generation"`
	Retrieval     RetrievalConfig           `mapstructure:"retrieval"`
	Conversations ConversationsConfig       `mapstructure:"conversations"`
	Index         IndexConfig               `mapstructure:"index"`
	Locales       LocalesConfig             `mapstructure:"locales"`
}

// NetworkingConfig controls how the gateway listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ProviderConfig holds credentials and endpoint for an upstream provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// EmbeddingConfig controls the text-embedding upstream.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	MaxBatch   int           `mapstructure:"max_batch"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// GenerationConfig controls the text-generation upstream.
type GenerationConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// RetrievalConfig controls candidate selection for grounding.
type RetrievalConfig struct {
	TopK             int     `mapstructure:"top_k"`
	OversampleFactor int     `mapstructure:"oversample_factor"`
	MinSimilarity    float64 `mapstructure:"min_similarity"`
}

// ConversationsConfig controls per-conversation state and eviction.
type ConversationsConfig struct {
	HistoryWindow int           `mapstructure:"history_window"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LocalesConfig points at the per-language location dictionaries.
type LocalesConfig struct {
	Dir       string   `mapstructure:"dir"`
	Languages []string `mapstructure:"languages"`
	Default   string   `mapstructure:"default"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix DWELLY_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("networking.listen", "127.0.0.1:8470")
	v.SetDefault("embedding.provider", "google")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.max_batch", 16)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.max_retries", 1)
	v.SetDefault("generation.provider", "google")
	v.SetDefault("generation.model", "gemini-2.5-flash")
	v.SetDefault("generation.timeout", 30*time.Second)
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.oversample_factor", 2)
	v.SetDefault("retrieval.min_similarity", 0.25)
	v.SetDefault("conversations.history_window", 6)
	v.SetDefault("conversations.idle_ttl", 30*time.Minute)
	v.SetDefault("conversations.sweep_interval", time.Minute)
	v.SetDefault("index.backend", "memory")
	v.SetDefault("locales.dir", "locales")
	v.SetDefault("locales.languages", []string{"en", "fr", "ar", "es", "de", "ru"})
	v.SetDefault("locales.default", "en")

	// Environment
	v.SetEnvPrefix("DWELLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	// Resolve keyring:// credential references before unmarshalling.
	secrets.ResolveViper(v, secrets.NewKeyringStore())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateConversations()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateLocales()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q",
			portStr,
		))
	} else if port < 1 || port > 65535 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d",
			port,
		))
	}

	return errs
}

var validEmbeddingProviders = map[string]bool{"openai": true, "google": true}
var validGenerationProviders = map[string]bool{"openai": true, "google": true, "anthropic": true}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if !validEmbeddingProviders[c.Embedding.Provider] {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [openai, google], got %q",
			c.Embedding.Provider,
		))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "config: embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d",
			c.Embedding.Dimensions,
		))
	}
	if c.Embedding.MaxBatch <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: embedding.max_batch must be greater than 0, got %d",
			c.Embedding.MaxBatch,
		))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: embedding.timeout must be greater than 0, got %s",
			c.Embedding.Timeout,
		))
	}
	if c.Embedding.MaxRetries < 0 || c.Embedding.MaxRetries > 1 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: embedding.max_retries must be 0 or 1, got %d",
			c.Embedding.MaxRetries,
		))
	}

	return errs
}

func (c *Config) validateGeneration() []error {
	var errs []error

	if !validGenerationProviders[c.Generation.Provider] {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: generation.provider must be one of [openai, google, anthropic], got %q",
			c.Generation.Provider,
		))
	}
	if c.Generation.Model == "" {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "config: generation.model must not be empty"))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: generation.timeout must be greater than 0, got %s",
			c.Generation.Timeout,
		))
	}
	if c.Generation.MaxTokens <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: generation.max_tokens must be greater than 0, got %d",
			c.Generation.MaxTokens,
		))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: retrieval.top_k must be greater than 0, got %d",
			c.Retrieval.TopK,
		))
	}
	if c.Retrieval.OversampleFactor < 1 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: retrieval.oversample_factor must be at least 1, got %d",
			c.Retrieval.OversampleFactor,
		))
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: retrieval.min_similarity must be within [-1, 1], got %g",
			c.Retrieval.MinSimilarity,
		))
	}

	return errs
}

func (c *Config) validateConversations() []error {
	var errs []error

	if c.Conversations.HistoryWindow <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: conversations.history_window must be greater than 0, got %d",
			c.Conversations.HistoryWindow,
		))
	}
	if c.Conversations.IdleTTL <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: conversations.idle_ttl must be greater than 0, got %s",
			c.Conversations.IdleTTL,
		))
	}
	if c.Conversations.SweepInterval <= 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: conversations.sweep_interval must be greater than 0, got %s",
			c.Conversations.SweepInterval,
		))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	validBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validBackends[c.Index.Backend] {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: index.backend must be one of [memory, sqlite], got %q",
			c.Index.Backend,
		))
	}
	if c.Index.Backend == "sqlite" && c.Index.Path == "" {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: index.path must be set when index.backend is sqlite"))
	}

	return errs
}

func (c *Config) validateLocales() []error {
	var errs []error

	if c.Locales.Dir == "" {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "config: locales.dir must not be empty"))
	}
	if len(c.Locales.Languages) == 0 {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue, "config: locales.languages must not be empty"))
	}

	defaultOK := false
	for _, lang := range c.Locales.Languages {
		if lang == c.Locales.Default {
			defaultOK = true
			break
		}
	}
	if !defaultOK {
		errs = append(errs, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"config: locales.default %q must be listed in locales.languages",
			c.Locales.Default,
		))
	}

	return errs
}
