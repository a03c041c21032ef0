// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// DefaultService is the keyring service name under which Dwelly stores
// its secrets.
const DefaultService = "dwelly"

// namesIndexKey is the entry holding the JSON index of stored secret
// names. go-keyring cannot enumerate keys, so the index is maintained
// alongside the entries.
const namesIndexKey = "::names-index"

// KeyringStore implements Store using the OS keyring via
// zalando/go-keyring. On macOS it uses Keychain, on Linux
// secret-service (D-Bus), and on Windows the Credential Manager.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a KeyringStore scoped to the default service.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: DefaultService}
}

func (s *KeyringStore) Set(name, value string) error {
	if name == "" {
		return dwellyerr.New(dwellyerr.CodeSecretRequestInvalid, "secret name must not be empty")
	}

	if err := keyring.Set(s.service, name, value); err != nil {
		return dwellyerr.Wrapf(err, dwellyerr.CodeSecretStoreFailure, "storing secret %q", name)
	}

	return s.addToIndex(name)
}

func (s *KeyringStore) Get(name string) (string, error) {
	if name == "" {
		return "", dwellyerr.New(dwellyerr.CodeSecretRequestInvalid, "secret name must not be empty")
	}

	val, err := keyring.Get(s.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", dwellyerr.Errorf(dwellyerr.CodeSecretEntryNotFound, "secret %q not found", name)
		}
		return "", dwellyerr.Wrapf(err, dwellyerr.CodeSecretStoreFailure, "retrieving secret %q", name)
	}
	return val, nil
}

func (s *KeyringStore) Delete(name string) error {
	if name == "" {
		return dwellyerr.New(dwellyerr.CodeSecretRequestInvalid, "secret name must not be empty")
	}

	if err := keyring.Delete(s.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return dwellyerr.Errorf(dwellyerr.CodeSecretEntryNotFound, "secret %q not found", name)
		}
		return dwellyerr.Wrapf(err, dwellyerr.CodeSecretStoreFailure, "deleting secret %q", name)
	}

	return s.removeFromIndex(name)
}

func (s *KeyringStore) Names() ([]string, error) {
	return s.loadIndex()
}

func (s *KeyringStore) loadIndex() ([]string, error) {
	raw, err := keyring.Get(s.service, namesIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeSecretStoreFailure, "loading secret name index")
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeSecretStoreFailure, "decoding secret name index")
	}
	return names, nil
}

func (s *KeyringStore) saveIndex(names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(s.service, namesIndexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty secret name index", "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return dwellyerr.Wrap(err, dwellyerr.CodeSecretStoreFailure, "encoding secret name index")
	}
	if err := keyring.Set(s.service, namesIndexKey, string(data)); err != nil {
		return dwellyerr.Wrap(err, dwellyerr.CodeSecretStoreFailure, "saving secret name index")
	}
	return nil
}

func (s *KeyringStore) addToIndex(name string) error {
	names, err := s.loadIndex()
	if err != nil {
		return err
	}

	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return s.saveIndex(append(names, name))
}

func (s *KeyringStore) removeFromIndex(name string) error {
	names, err := s.loadIndex()
	if err != nil {
		return err
	}

	filtered := names[:0]
	for _, n := range names {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	return s.saveIndex(filtered)
}
