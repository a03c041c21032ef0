// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

const uriScheme = "keyring://"

// IsURI reports whether value uses the keyring:// scheme.
func IsURI(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// ParseURI extracts the secret name from a keyring://<name> URI.
func ParseURI(uri string) (string, error) {
	if !IsURI(uri) {
		return "", dwellyerr.Errorf(dwellyerr.CodeSecretRequestInvalid, "not a keyring URI: %q", uri)
	}

	name := strings.TrimPrefix(uri, uriScheme)
	if name == "" || strings.Contains(name, "/") {
		return "", dwellyerr.Errorf(dwellyerr.CodeSecretRequestInvalid,
			"invalid keyring URI %q: expected keyring://<name>", uri)
	}
	return name, nil
}

// Resolve resolves a single keyring:// URI to its secret value. A value
// that is not a keyring URI is returned unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}

	name, err := ParseURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(name)
	if err != nil {
		return "", dwellyerr.Wrapf(err, dwellyerr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViper walks all keys in a Viper instance and resolves any
// string values that use the keyring:// scheme, so credentials never
// have to live in the config file itself.
//
// Resolution failures are logged and the URI value is kept, letting the
// error surface later when the credential is actually used.
func ResolveViper(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsURI(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			slog.Warn("failed to resolve keyring URI, keeping original value",
				"config_key", key,
				"error", err)
			continue
		}

		v.Set(key, resolved)
	}
}
