// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Override mutates a loaded configuration before validation.
// Command-line flags are applied this way.
type Override func(*AppConfig)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: Overrides > ENV > File > Defaults.
// Every returned error wraps ErrInvalidConfig.
func (l *Loader) Load(overrides ...Override) (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: load config file: %w", ErrInvalidConfig, err)
		}
	}

	l.mergeEnv(&cfg)

	for _, o := range overrides {
		if o != nil {
			o(&cfg)
		}
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file on top of cfg with STRICT parsing.
// Unknown fields are rejected to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overlays STREAMER_* environment variables.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.StatusFile = l.envString("STATUS_FILE", cfg.StatusFile)

	cfg.Relay.Host = l.envString("RELAY_HOST", cfg.Relay.Host)
	cfg.Relay.RTSPPort = l.envInt("RELAY_RTSP_PORT", cfg.Relay.RTSPPort)
	cfg.Relay.Path = l.envString("RELAY_PATH", cfg.Relay.Path)
	cfg.Relay.Transport = l.envString("RELAY_TRANSPORT", cfg.Relay.Transport)

	cfg.Control.Host = l.envString("CONTROL_HOST", cfg.Control.Host)
	cfg.Control.Port = l.envInt("CONTROL_PORT", cfg.Control.Port)
	cfg.Control.Path = l.envString("CONTROL_PATH", cfg.Control.Path)
	cfg.Control.Token = l.envInt("CONTROL_TOKEN", cfg.Control.Token)
	cfg.Control.ReportInterval = l.envDuration("CONTROL_REPORT_INTERVAL", cfg.Control.ReportInterval)
	cfg.Control.BackoffInitial = l.envDuration("CONTROL_BACKOFF_INITIAL", cfg.Control.BackoffInitial)
	cfg.Control.BackoffMax = l.envDuration("CONTROL_BACKOFF_MAX", cfg.Control.BackoffMax)

	cfg.Static.ConnectingPort = l.envInt("CONNECTING_PORT", cfg.Static.ConnectingPort)
	cfg.Static.NoSuchCameraPort = l.envInt("NO_SUCH_CAMERA_PORT", cfg.Static.NoSuchCameraPort)
	cfg.Static.CameraDisabledPort = l.envInt("CAMERA_DISABLED_PORT", cfg.Static.CameraDisabledPort)
	cfg.Static.Publish = l.envBool("STATIC_PUBLISH", cfg.Static.Publish)
	cfg.Static.LocalSink = l.envString("STATIC_LOCAL_SINK", cfg.Static.LocalSink)

	cfg.Live.SourceURL = l.envString("LIVE_SOURCE", cfg.Live.SourceURL)
	cfg.Live.BitrateKbps = l.envInt("LIVE_BITRATE_KBPS", cfg.Live.BitrateKbps)
	cfg.Live.Framerate = l.envInt("LIVE_FRAMERATE", cfg.Live.Framerate)

	cfg.Engine.Kind = l.envString("ENGINE", cfg.Engine.Kind)
	cfg.Engine.LaunchBin = l.envString("GST_LAUNCH_BIN", cfg.Engine.LaunchBin)
	cfg.Engine.StartTimeout = l.envDuration("START_TIMEOUT", cfg.Engine.StartTimeout)
	cfg.Engine.StopTimeout = l.envDuration("STOP_TIMEOUT", cfg.Engine.StopTimeout)
	cfg.Engine.HeartbeatInterval = l.envDuration("HEARTBEAT_INTERVAL", cfg.Engine.HeartbeatInterval)
	cfg.Engine.StallTimeout = l.envDuration("STALL_TIMEOUT", cfg.Engine.StallTimeout)

	cfg.Faults.MaxRetries = l.envInt("MAX_RETRIES", cfg.Faults.MaxRetries)
	cfg.Faults.RetryInitial = l.envDuration("RETRY_INITIAL", cfg.Faults.RetryInitial)
	cfg.Faults.RetryMax = l.envDuration("RETRY_MAX", cfg.Faults.RetryMax)
	cfg.Faults.StableAfter = l.envDuration("STABLE_AFTER", cfg.Faults.StableAfter)

	cfg.HTTP.Listen = l.envString("HTTP_LISTEN", cfg.HTTP.Listen)
	cfg.HTTP.RateLimit = l.envInt("HTTP_RATE_LIMIT", cfg.HTTP.RateLimit)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
