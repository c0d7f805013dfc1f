// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/spf13/pflag"
)

// rootFlags are the daemon flags. Only flags set on the command line
// override the loaded configuration.
type rootFlags struct {
	configPath string

	relayPort          int
	relayPath          string
	controlPort        int
	noSuchCameraPort   int
	cameraDisabledPort int
	connectingPort     int

	liveSource string
	engine     string
	logLevel   string
	httpListen string
	statusFile string
}

func (f *rootFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "path to config file (YAML)")

	fs.IntVar(&f.relayPort, "mediamtx-rtsp-port", 0, "RTSP port of the relay")
	fs.StringVar(&f.relayPath, "mediamtx-path", "", "relay path the camera is published under")
	fs.IntVar(&f.controlPort, "private-api-port", 0, "port of the control-plane Socket.IO server")
	fs.IntVar(&f.noSuchCameraPort, "no-such-camera-port", 0, "local feed port shown when the camera is absent")
	fs.IntVar(&f.cameraDisabledPort, "camera-disabled-port", 0, "local feed port shown when the camera is disabled")
	fs.IntVar(&f.connectingPort, "connecting-port", 0, "local feed port shown while connecting")

	fs.StringVar(&f.liveSource, "live-source", "", "default camera source URL for the live state")
	fs.StringVar(&f.engine, "engine", "", "media engine: launch, gst or fake")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.httpListen, "http-listen", "", "status/health/metrics listen address, empty string disables it")
	fs.StringVar(&f.statusFile, "status-file", "", "path of the JSON status file")
}

// overrides returns one config.Override per flag changed in fs.
func (f *rootFlags) overrides(fs *pflag.FlagSet) []config.Override {
	var out []config.Override
	set := func(name string, o config.Override) {
		if fs.Changed(name) {
			out = append(out, o)
		}
	}

	set("mediamtx-rtsp-port", func(c *config.AppConfig) { c.Relay.RTSPPort = f.relayPort })
	set("mediamtx-path", func(c *config.AppConfig) { c.Relay.Path = f.relayPath })
	set("private-api-port", func(c *config.AppConfig) { c.Control.Port = f.controlPort })
	set("no-such-camera-port", func(c *config.AppConfig) { c.Static.NoSuchCameraPort = f.noSuchCameraPort })
	set("camera-disabled-port", func(c *config.AppConfig) { c.Static.CameraDisabledPort = f.cameraDisabledPort })
	set("connecting-port", func(c *config.AppConfig) { c.Static.ConnectingPort = f.connectingPort })
	set("live-source", func(c *config.AppConfig) { c.Live.SourceURL = f.liveSource })
	set("engine", func(c *config.AppConfig) { c.Engine.Kind = f.engine })
	set("log-level", func(c *config.AppConfig) { c.LogLevel = f.logLevel })
	set("http-listen", func(c *config.AppConfig) { c.HTTP.Listen = f.httpListen })
	set("status-file", func(c *config.AppConfig) { c.StatusFile = f.statusFile })
	return out
}
