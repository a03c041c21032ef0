// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	// Use the mock keyring so secret commands never touch the real OS keyring.
	keyring.MockInit()
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dwelly dev")
	assert.Contains(t, out, "commit")
}

func TestRootHelpListsSubcommands(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "version")
}

func TestIndexCommandRequiresFileArg(t *testing.T) {
	_, err := executeCommand(t, "index")
	require.Error(t, err)
}

func TestSecretSetListDelete(t *testing.T) {
	out, err := executeCommand(t, "secret", "set", "openai", "sk-test")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored secret: openai")

	out, err = executeCommand(t, "secret", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "openai")

	out, err = executeCommand(t, "secret", "delete", "openai")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted secret: openai")

	_, err = executeCommand(t, "secret", "delete", "openai")
	require.Error(t, err)
}

func TestReadListings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "l1", "title": "Riad Dar Mimosa", "location": "essaouira", "updated_at": "2026-03-01T12:00:00Z"}
	]`), 0o644))

	listings, err := readListings(path)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Riad Dar Mimosa", listings[0].Title)
}

func TestReadListingsMissingFile(t *testing.T) {
	_, err := readListings(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestReadListingsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := readListings(path)
	require.Error(t, err)
}

func TestReadListingsEmptyArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	_, err := readListings(path)
	require.Error(t, err)
}
