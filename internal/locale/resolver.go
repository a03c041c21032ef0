// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package locale resolves canonical place keys to language-specific
// display names. Dictionaries are loaded once at startup and are
// immutable for the process lifetime.
package locale

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Resolver maps canonical place keys to localized display strings.
// Lookups are pure; a missing language or key falls back to the
// canonical key unchanged.
type Resolver struct {
	dicts map[string]map[string]string
}

// localeFile is the on-disk shape of one per-language dictionary.
type localeFile struct {
	Locations map[string]string `yaml:"locations"`
}

// Load reads one "<lang>.yaml" dictionary per configured language from dir.
// Every configured language must have a dictionary file; individual keys
// may be absent (the resolver falls back per key).
func Load(dir string, languages []string) (*Resolver, error) {
	dicts := make(map[string]map[string]string, len(languages))

	for _, lang := range languages {
		path := filepath.Join(dir, lang+".yaml")
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeLocaleLoadReadFailure,
				"reading locale file %s: %w", path, err)
		}

		var lf localeFile
		if err := yaml.Unmarshal(raw, &lf); err != nil {
			return nil, dwellyerr.Errorf(dwellyerr.CodeLocaleParseInvalidFormat,
				"parsing locale file %s: %w", path, err)
		}

		if lf.Locations == nil {
			lf.Locations = map[string]string{}
		}
		dicts[lang] = lf.Locations
	}

	return New(dicts), nil
}

// New builds a Resolver from already-parsed dictionaries. The maps are
// copied so later mutation by the caller cannot leak into the resolver.
func New(dicts map[string]map[string]string) *Resolver {
	copied := make(map[string]map[string]string, len(dicts))
	for lang, entries := range dicts {
		m := make(map[string]string, len(entries))
		for k, v := range entries {
			m[k] = v
		}
		copied[lang] = m
	}
	return &Resolver{dicts: copied}
}

// Resolve returns the display name for the canonical key in the given
// language. An unknown language or key is not an error: the canonical
// key is returned unchanged. Composing a full address (for example
// "<city> <zipcode>") is the caller's responsibility.
func (r *Resolver) Resolve(canonicalKey, language string) string {
	entries, ok := r.dicts[language]
	if !ok {
		return canonicalKey
	}

	display, ok := entries[canonicalKey]
	if !ok || display == "" {
		return canonicalKey
	}
	return display
}

// Languages returns the set of languages the resolver was loaded with.
func (r *Resolver) Languages() []string {
	langs := make([]string, 0, len(r.dicts))
	for lang := range r.dicts {
		langs = append(langs, lang)
	}
	return langs
}

// Has reports whether a dictionary exists for the given language.
func (r *Resolver) Has(language string) bool {
	_, ok := r.dicts[language]
	return ok
}

// String implements fmt.Stringer for log output.
func (r *Resolver) String() string {
	return fmt.Sprintf("locale.Resolver(%d languages)", len(r.dicts))
}
