// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/validate"
	"github.com/rs/zerolog"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	// Relay
	v.NotEmpty("relay.host", cfg.Relay.Host)
	v.Port("relay.rtsp_port", cfg.Relay.RTSPPort)
	v.RelayPath("relay.path", cfg.Relay.Path)
	v.OneOf("relay.transport", cfg.Relay.Transport, []string{"tcp", "udp"})

	// Control plane
	v.NotEmpty("control.host", cfg.Control.Host)
	v.Port("control.port", cfg.Control.Port)
	if !strings.HasPrefix(cfg.Control.Path, "/") {
		v.AddError("control.path", "must start with /", cfg.Control.Path)
	}
	v.NotEmpty("control.handshake_event", cfg.Control.HandshakeEvent)
	v.NotEmpty("control.status_event", cfg.Control.StatusEvent)
	v.PositiveDuration("control.report_interval", cfg.Control.ReportInterval)
	v.PositiveDuration("control.backoff_initial", cfg.Control.BackoffInitial)
	v.DurationOrder("control.backoff_max", cfg.Control.BackoffInitial, cfg.Control.BackoffMax)
	v.Positive("control.status_burst", cfg.Control.StatusBurst)
	if cfg.Control.StatusPerSecond <= 0 {
		v.AddError("control.status_per_second", "must be positive", cfg.Control.StatusPerSecond)
	}
	for i, m := range cfg.Control.Mappings {
		field := fmt.Sprintf("control.mappings[%d]", i)
		v.NotEmpty(field+".event", m.Event)
		v.NotEmpty(field+".field", m.Field)
		if m.State != "" {
			if _, err := model.ParseStateKind(m.State); err != nil {
				v.AddError(field+".state", err.Error(), m.State)
			}
		}
	}

	// Static feeds
	v.Port("static.connecting_port", cfg.Static.ConnectingPort)
	v.Port("static.no_such_camera_port", cfg.Static.NoSuchCameraPort)
	v.Port("static.camera_disabled_port", cfg.Static.CameraDisabledPort)
	v.DistinctPorts(map[string]int{
		"static.connecting_port":      cfg.Static.ConnectingPort,
		"static.no_such_camera_port":  cfg.Static.NoSuchCameraPort,
		"static.camera_disabled_port": cfg.Static.CameraDisabledPort,
	}, []string{"static.connecting_port", "static.no_such_camera_port", "static.camera_disabled_port"})
	v.NotEmpty("static.host", cfg.Static.Host)
	if !cfg.Static.Publish {
		v.NotEmpty("static.local_sink", cfg.Static.LocalSink)
	}

	// Live source (optional; control events may supply one)
	if cfg.Live.SourceURL != "" {
		v.URL("live.source_url", cfg.Live.SourceURL, []string{"rtsp", "rtsps", "http", "https"})
	}
	v.Range("live.bitrate_kbps", cfg.Live.BitrateKbps, 64, 50000)
	v.Range("live.framerate", cfg.Live.Framerate, 1, 120)
	v.Positive("live.width", cfg.Live.Width)
	v.Positive("live.height", cfg.Live.Height)

	// Engine
	v.OneOf("engine.kind", cfg.Engine.Kind, []string{EngineLaunch, EngineGst, EngineFake})
	if cfg.Engine.Kind == EngineLaunch {
		v.NotEmpty("engine.launch_bin", cfg.Engine.LaunchBin)
	}
	v.PositiveDuration("engine.start_timeout", cfg.Engine.StartTimeout)
	v.PositiveDuration("engine.stop_timeout", cfg.Engine.StopTimeout)
	if cfg.Engine.HeartbeatInterval < 0 {
		v.AddError("engine.heartbeat_interval", "cannot be negative", cfg.Engine.HeartbeatInterval)
	}
	if cfg.Engine.HeartbeatInterval > 0 {
		v.DurationOrder("engine.stall_timeout", cfg.Engine.HeartbeatInterval, cfg.Engine.StallTimeout)
	}

	// Fault policy
	v.Range("faults.max_retries", cfg.Faults.MaxRetries, 0, 100)
	v.PositiveDuration("faults.retry_initial", cfg.Faults.RetryInitial)
	v.DurationOrder("faults.retry_max", cfg.Faults.RetryInitial, cfg.Faults.RetryMax)
	for class, state := range cfg.Faults.Fallback {
		if !model.FaultClass(class).Valid() {
			v.AddError("faults.fallback", "unknown fault class", class)
		}
		if _, err := model.ParseStateKind(state); err != nil {
			v.AddError("faults.fallback."+class, err.Error(), state)
		}
	}

	// Ambient
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil || cfg.LogLevel == "" {
		v.AddError("log_level", "invalid log level", cfg.LogLevel)
	}
	if cfg.HTTP.Listen != "" {
		v.NonNegative("http.rate_limit", cfg.HTTP.RateLimit)
	}
	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}

	return v.Err()
}
