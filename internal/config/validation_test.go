// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() AppConfig {
	cfg := Defaults()
	cfg.Relay.RTSPPort = 8554
	cfg.Relay.Path = "cam1"
	cfg.Control.Port = 4000
	cfg.Static.ConnectingPort = 9000
	cfg.Static.NoSuchCameraPort = 9001
	cfg.Static.CameraDisabledPort = 9002
	return cfg
}

func failedFields(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr.Fields()
}

func TestValidateAcceptsDefaultsWithPorts(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"duplicate static ports", func(c *AppConfig) { c.Static.CameraDisabledPort = 9000 }, "static.camera_disabled_port"},
		{"relay path with slash", func(c *AppConfig) { c.Relay.Path = "/cam1" }, "relay.path"},
		{"unknown engine", func(c *AppConfig) { c.Engine.Kind = "vlc" }, "engine.kind"},
		{"zero stop timeout", func(c *AppConfig) { c.Engine.StopTimeout = 0 }, "engine.stop_timeout"},
		{"backoff inverted", func(c *AppConfig) { c.Control.BackoffMax = time.Millisecond }, "control.backoff_max"},
		{"bad live url", func(c *AppConfig) { c.Live.SourceURL = "ftp://cam" }, "live.source_url"},
		{"bad mapping state", func(c *AppConfig) {
			c.Control.Mappings = []MappingRule{{Event: "camera", Field: "camera", Value: "x", State: "paused"}}
		}, "control.mappings[0].state"},
		{"bad fallback state", func(c *AppConfig) { c.Faults.Fallback["auth"] = "nowhere" }, "faults.fallback.auth"},
		{"bad fallback class", func(c *AppConfig) { c.Faults.Fallback["cosmic"] = "connecting" }, "faults.fallback"},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "log_level"},
		{"stall shorter than heartbeat", func(c *AppConfig) { c.Engine.StallTimeout = time.Second }, "engine.stall_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Contains(t, failedFields(t, Validate(cfg)), tt.field)
		})
	}
}

func TestValidateLocalSinkOnlyWhenNotPublishing(t *testing.T) {
	cfg := validConfig()
	cfg.Static.LocalSink = ""
	assert.Contains(t, failedFields(t, Validate(cfg)), "static.local_sink")

	cfg.Static.Publish = true
	assert.NoError(t, Validate(cfg))
}
