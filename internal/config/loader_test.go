// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
relay:
  rtsp_port: 8554
  path: cam1
control:
  port: 4000
static:
  connecting_port: 9000
  no_such_camera_port: 9001
  camera_disabled_port: 9002
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, minimalYAML), "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, 8554, cfg.Relay.RTSPPort)
	assert.Equal(t, "rtsp://127.0.0.1:8554/cam1", cfg.Relay.PublishURL())
	assert.Equal(t, 9000, cfg.Static.ConnectingPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Control.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.Control.BackoffMax)
	assert.Equal(t, 3, cfg.Faults.MaxRetries)
	assert.Equal(t, DefaultMappings(), cfg.Control.Mappings)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
engine:
  stop_timeout: 2s
faults:
  fallback:
    network: camera_absent
`)
	t.Setenv("STREAMER_RELAY_PATH", "from-env")
	t.Setenv("STREAMER_STOP_TIMEOUT", "3s")

	cfg, err := NewLoader(path, "dev").Load(func(c *AppConfig) {
		c.Relay.Path = "from-flag"
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Relay.Path)
	assert.Equal(t, 3*time.Second, cfg.Engine.StopTimeout)
	// File entries merge into the default fallback table.
	assert.Equal(t, "camera_absent", cfg.Faults.Fallback["network"])
	assert.Equal(t, "camera_disabled", cfg.Faults.Fallback["auth"])
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := NewLoader(writeConfig(t, minimalYAML+"bogus: 1\n"), "dev").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestLoadMissingRequiredIsConfigurationError(t *testing.T) {
	_, err := NewLoader("", "dev").Load()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidConfig)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Subset(t, verr.Fields(), []string{
		"relay.rtsp_port",
		"relay.path",
		"control.port",
		"static.connecting_port",
		"static.no_such_camera_port",
		"static.camera_disabled_port",
	})
}

func TestLoadRecordsConsumedEnvKeys(t *testing.T) {
	l := NewLoader(writeConfig(t, minimalYAML), "dev")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.ConsumedEnvKeys, "STREAMER_RELAY_RTSP_PORT")
	assert.Contains(t, l.ConsumedEnvKeys, "STREAMER_CONNECTING_PORT")
}
