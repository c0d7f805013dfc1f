// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"time"
)

// Defaults returns a fresh configuration with every optional field set.
// Ports for the relay, control plane and static feeds have no default.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "mtxstreamer",
		Relay: RelayConfig{
			Host:      "127.0.0.1",
			Transport: "tcp",
		},
		Control: ControlConfig{
			Host:            "127.0.0.1",
			Path:            "/socket.io/",
			Token:           os.Getpid(),
			HandshakeEvent:  "register",
			StatusEvent:     "status",
			ReportInterval:  10 * time.Second,
			BackoffInitial:  500 * time.Millisecond,
			BackoffMax:      30 * time.Second,
			StatusBurst:     5,
			StatusPerSecond: 2,
			Mappings:        DefaultMappings(),
		},
		Static: StaticConfig{
			Host:      "127.0.0.1",
			LocalSink: "autovideosink",
		},
		Live: LiveConfig{
			BitrateKbps: 1000,
			Framerate:   10,
			Width:       640,
			Height:      480,
		},
		Engine: EngineConfig{
			Kind:              EngineLaunch,
			LaunchBin:         "gst-launch-1.0",
			StartTimeout:      10 * time.Second,
			StopTimeout:       5 * time.Second,
			HeartbeatInterval: 2 * time.Second,
			StallTimeout:      15 * time.Second,
		},
		Faults: FaultConfig{
			MaxRetries:   3,
			RetryInitial: time.Second,
			RetryMax:     10 * time.Second,
			StableAfter:  30 * time.Second,
			Fallback:     DefaultFallback(),
		},
		HTTP: HTTPConfig{
			Listen:          "127.0.0.1:9108",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       60,
		},
		Telemetry: TelemetryConfig{
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// DefaultMappings is the inbound table for the "camera" event.
func DefaultMappings() []MappingRule {
	return []MappingRule{
		{Event: "camera", Field: "camera", Value: "available", State: "live"},
		{Event: "camera", Field: "camera", Value: "live", State: "live"},
		{Event: "camera", Field: "camera", Value: "absent", State: "camera_absent"},
		{Event: "camera", Field: "camera", Value: "missing", State: "camera_absent"},
		{Event: "camera", Field: "camera", Value: "disabled", State: "camera_disabled"},
		{Event: "camera", Field: "camera", Value: "connecting", State: "connecting"},
		{Event: "camera", Field: "camera", Value: "unavailable", State: "connecting"},
		{Event: "state", Field: "state", State: ""},
	}
}

// DefaultFallback maps fault classes of a failing Live pipeline to safe states.
// Classes not listed fall back to connecting.
func DefaultFallback() map[string]string {
	return map[string]string{
		"auth":      "camera_disabled",
		"not_found": "camera_absent",
	}
}
