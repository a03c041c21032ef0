// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwelly-dev/dwelly/internal/secrets"
)

// secretStoreFactory creates a secrets.Store. It is a package-level
// variable so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider credentials in the OS keyring",
		Long:  "Store provider API keys in the operating system keyring and reference them from the config file as keyring://<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secretStoreFactory().Set(args[0], args[1]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s\n", args[0])
			return err
		},
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := secretStoreFactory().Names()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				_, err := fmt.Fprintln(out, "No secrets stored.")
				return err
			}
			for _, n := range names {
				if _, err := fmt.Fprintln(out, n); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secretStoreFactory().Delete(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", args[0])
			return err
		},
	}
}
