// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and validates the streamer configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// AppConfig is the immutable process configuration.
type AppConfig struct {
	Version    string `yaml:"-"`
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`
	StatusFile string `yaml:"status_file"`

	Relay     RelayConfig     `yaml:"relay"`
	Control   ControlConfig   `yaml:"control"`
	Static    StaticConfig    `yaml:"static"`
	Live      LiveConfig      `yaml:"live"`
	Engine    EngineConfig    `yaml:"engine"`
	Faults    FaultConfig     `yaml:"faults"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RelayConfig points at the media relay (MediaMTX) ingest path.
type RelayConfig struct {
	Host      string `yaml:"host"`
	RTSPPort  int    `yaml:"rtsp_port"`
	Path      string `yaml:"path"`
	Transport string `yaml:"transport"`
}

// PublishURL is the RTSP URL pipelines publish to.
func (r RelayConfig) PublishURL() string {
	return fmt.Sprintf("rtsp://%s/%s", net.JoinHostPort(r.Host, strconv.Itoa(r.RTSPPort)), r.Path)
}

// ControlConfig describes the control-plane event channel.
type ControlConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Path            string        `yaml:"path"`
	Token           int           `yaml:"token"`
	HandshakeEvent  string        `yaml:"handshake_event"`
	StatusEvent     string        `yaml:"status_event"`
	ReportInterval  time.Duration `yaml:"report_interval"`
	BackoffInitial  time.Duration `yaml:"backoff_initial"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	StatusBurst     int           `yaml:"status_burst"`
	StatusPerSecond float64       `yaml:"status_per_second"`
	Mappings        []MappingRule `yaml:"mappings"`
}

// MappingRule maps one inbound event payload value to a target state.
// An empty Value matches any value of Field. An empty State takes the
// state name from the field value itself.
type MappingRule struct {
	Event string `yaml:"event"`
	Field string `yaml:"field"`
	Value string `yaml:"value"`
	State string `yaml:"state"`
}

// StaticConfig holds the local placeholder feed ports.
type StaticConfig struct {
	ConnectingPort     int    `yaml:"connecting_port"`
	NoSuchCameraPort   int    `yaml:"no_such_camera_port"`
	CameraDisabledPort int    `yaml:"camera_disabled_port"`
	Host               string `yaml:"host"`
	Publish            bool   `yaml:"publish"`
	LocalSink          string `yaml:"local_sink"`
}

// LiveConfig describes the real camera source.
type LiveConfig struct {
	SourceURL   string `yaml:"source_url"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
	Framerate   int    `yaml:"framerate"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
}

// EngineConfig selects and tunes the media engine.
type EngineConfig struct {
	Kind              string        `yaml:"kind"`
	LaunchBin         string        `yaml:"launch_bin"`
	StartTimeout      time.Duration `yaml:"start_timeout"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StallTimeout      time.Duration `yaml:"stall_timeout"`
}

// FaultConfig tunes the supervisor retry and fallback policy.
type FaultConfig struct {
	MaxRetries   int               `yaml:"max_retries"`
	RetryInitial time.Duration     `yaml:"retry_initial"`
	RetryMax     time.Duration     `yaml:"retry_max"`
	StableAfter  time.Duration     `yaml:"stable_after"`
	Fallback     map[string]string `yaml:"fallback"`
}

// HTTPConfig configures the status/health/metrics listener.
type HTTPConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Engine kinds.
const (
	EngineLaunch = "launch"
	EngineGst    = "gst"
	EngineFake   = "fake"
)
