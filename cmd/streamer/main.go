// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command streamer keeps one camera pipeline publishing to the relay and
// switches it as the control plane reports camera state changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/daemon"
	xglog "github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/version"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK                = 0
	exitFailure           = 1
	exitInvalidConfig     = 2
	exitEngineUnavailable = 3
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "streamer: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig):
		return exitInvalidConfig
	case errors.Is(err, model.ErrEngineUnavailable):
		return exitEngineUnavailable
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "streamer",
		Short:         "Publish one camera feed to the relay, switching on control events",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := daemon.WaitForShutdown()
			defer stop()
			return runDaemon(ctx, cmd, flags)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	})
	flags.bind(root.Flags())

	root.AddCommand(newVersionCmd(), newHealthcheckCmd(), newStatusCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig resolves the configuration with precedence flags > env > file > defaults.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.AppConfig, error) {
	loader := config.NewLoader(flags.configPath, version.Version)
	return loader.Load(flags.overrides(cmd.Flags())...)
}

func runDaemon(ctx context.Context, cmd *cobra.Command, flags *rootFlags) error {
	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "mtxstreamer",
		Version: version.Version,
	})
	logger := xglog.WithComponent("main")

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", flags.configPath).
			Msg("failed to load configuration")
		return err
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("main")

	source := "env+defaults"
	if flags.configPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", flags.configPath).
		Str(xglog.FieldPublishURL, cfg.Relay.PublishURL()).
		Str("live_source", maskURL(cfg.Live.SourceURL)).
		Str(xglog.FieldEngine, cfg.Engine.Kind).
		Msg("configuration loaded")

	app, err := daemon.Build(ctx, cfg, daemon.Options{})
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup failed, verify configuration and the media engine")
		return err
	}

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("streamer stopped with error")
		return err
	}
	logger.Info().Str("event", "daemon.stopped").Msg("streamer stopped")
	return nil
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
