// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the pipeline starts.
// Engine failures keep the engine's error chain (model.ErrEngineUnavailable).
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig, engine exec.Engine) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkListenAddr(logger, cfg.HTTP.Listen); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	if cfg.StatusFile != "" {
		if err := checkWritableDir(logger, filepath.Dir(cfg.StatusFile)); err != nil {
			return fmt.Errorf("%w: status file: %w", config.ErrInvalidConfig, err)
		}
	}

	if engine != nil {
		if err := engine.Check(ctx); err != nil {
			return fmt.Errorf("engine %s: %w", engine.Name(), err)
		}
		logger.Info().Str(log.FieldEngine, engine.Name()).Msg("✓ Media engine available")
	}

	if cfg.Live.SourceURL == "" {
		logger.Warn().
			Str(log.FieldEvent, "startup.no_live_source").
			Msg("no default live source configured, camera events without a source are ignored")
	}
	if !cfg.Static.Publish {
		logger.Info().
			Str("local_sink", cfg.Static.LocalSink).
			Msg("static states render locally; the relay path is only published while live")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid HTTP listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid HTTP listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ HTTP listen address is valid")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("✓ Status directory is writable")
	return nil
}
