// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root dwelly command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dwelly",
		Short:         "Dwelly - conversational property-search gateway",
		Long:          "Dwelly answers natural-language questions about property listings, grounded in a vector index of the portfolio.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newStartCmd(),
		newIndexCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}
