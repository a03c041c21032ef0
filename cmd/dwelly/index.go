// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwelly-dev/dwelly/internal/store"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <listings.json>",
		Short: "Embed and index listings from a JSON file",
		Long:  "Read a JSON array of listings, embed each one, and load the vectors into the configured index backend.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	setupLogging(cmd)

	listings, err := readListings(args[0])
	if err != nil {
		return err
	}

	app, err := WireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	indexed, err := app.Indexer.IndexListings(cmd.Context(), listings)
	if err != nil {
		return dwellyerr.Wrap(err, dwellyerr.CodeCLISetupFailure, "indexing listings")
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d listings into %s index\n", len(indexed), cfg.Index.Backend)
	return err
}

func readListings(path string) ([]store.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dwellyerr.Wrapf(err, dwellyerr.CodeCLISetupFailure, "reading %s", path)
	}

	var listings []store.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, dwellyerr.Wrapf(err, dwellyerr.CodeCLISetupFailure, "parsing %s", path)
	}
	if len(listings) == 0 {
		return nil, dwellyerr.Errorf(dwellyerr.CodeCLISetupFailure, "%s contains no listings", path)
	}
	return listings, nil
}
