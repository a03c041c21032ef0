// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

// Package secrets stores provider credentials outside the config file,
// in the operating system keyring.
package secrets

// Store provides secure secret storage operations. Implementations may
// use OS keyrings, encrypted files, or other backends.
type Store interface {
	// Set saves a secret value under the given name.
	Set(name, value string) error

	// Get fetches the secret value for the given name. A missing entry
	// carries CodeSecretEntryNotFound.
	Get(name string) (string, error)

	// Delete removes the secret for the given name. A missing entry
	// carries CodeSecretEntryNotFound.
	Delete(name string) error

	// Names returns the names of all stored secrets.
	Names() ([]string, error)
}
