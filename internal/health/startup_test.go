// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec/fake"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startupConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.StatusFile = filepath.Join(t.TempDir(), "status.json")
	return cfg
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })
	return &buf
}

func TestStartupChecksWarnWithoutLiveSource(t *testing.T) {
	buf := captureLogs(t)
	cfg := startupConfig(t)
	cfg.Live.SourceURL = ""

	require.NoError(t, PerformStartupChecks(context.Background(), cfg, fake.New()))
	assert.Contains(t, buf.String(), "startup.no_live_source")
}

func TestStartupChecksQuietWithLiveSource(t *testing.T) {
	buf := captureLogs(t)
	cfg := startupConfig(t)
	cfg.Live.SourceURL = "rtsp://camera.local/stream"

	require.NoError(t, PerformStartupChecks(context.Background(), cfg, fake.New()))
	assert.NotContains(t, buf.String(), "startup.no_live_source")
}

func TestStartupChecksFailures(t *testing.T) {
	t.Run("engine unavailable", func(t *testing.T) {
		eng := fake.New()
		eng.Unavailable = true
		err := PerformStartupChecks(context.Background(), startupConfig(t), eng)
		assert.True(t, errors.Is(err, model.ErrEngineUnavailable), "got %v", err)
	})
	t.Run("bad listen address", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.HTTP.Listen = "no-port"
		err := PerformStartupChecks(context.Background(), cfg, fake.New())
		assert.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
	})
	t.Run("missing status dir", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.StatusFile = filepath.Join(t.TempDir(), "absent", "status.json")
		err := PerformStartupChecks(context.Background(), cfg, fake.New())
		assert.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
	})
}
