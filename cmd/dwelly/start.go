// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwelly-dev/dwelly/internal/config"
	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dwelly gateway",
		Long:  "Load configuration, initialize all subsystems, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}

	setupLogging(cmd)

	app, err := WireApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Warn("shutdown cleanup error", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.Orchestrator.RunSweeper(ctx)

	slog.Info("starting dwelly",
		"listen", cfg.Networking.Listen,
		"index_backend", cfg.Index.Backend,
		"embedding_provider", cfg.Embedding.Provider,
		"generation_provider", cfg.Generation.Provider)

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Starting dwelly on %s\n", cfg.Networking.Listen); err != nil {
		return err
	}

	return app.Server.Start(ctx)
}

// loadConfig reads the config file named by the --config flag, or the
// defaults plus DWELLY_* environment overrides when the flag is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, dwellyerr.Wrap(err, dwellyerr.CodeCLISetupFailure, "loading config")
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
