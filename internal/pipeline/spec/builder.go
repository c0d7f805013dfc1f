// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package spec turns a stream state into a declarative media pipeline description.
package spec

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
)

// Spec is the declarative description of one pipeline.
// It is built fresh for every transition and never mutated afterwards.
type Spec struct {
	State      model.StreamState
	Source     Stage
	Decode     []Stage
	Encode     []Stage
	Sink       Stage
	Publishes  bool
	PublishURL string
}

// Stages returns every stage in link order.
func (s Spec) Stages() []Stage {
	out := make([]Stage, 0, 2+len(s.Decode)+len(s.Encode))
	out = append(out, s.Source)
	out = append(out, s.Decode...)
	out = append(out, s.Encode...)
	out = append(out, s.Sink)
	return out
}

// Args renders the pipeline as gst-launch argv tokens.
func (s Spec) Args() []string {
	var out []string
	for i, st := range s.Stages() {
		if i > 0 {
			out = append(out, "!")
		}
		out = append(out, st.tokens()...)
	}
	return out
}

// Launch renders the pipeline as a single gst-launch description string.
func (s Spec) Launch() string {
	return strings.Join(s.Args(), " ")
}

// Options carries the configuration the builder reads.
type Options struct {
	RelayURL          string
	RelayTransport    string
	StaticHost        string
	StaticPorts       map[model.StateKind]int
	StaticPublish     bool
	LocalSink         string
	DefaultSource     string
	BitrateKbps       int
	Framerate         int
	Width             int
	Height            int
	HeartbeatInterval time.Duration
}

// OptionsFromConfig extracts builder options from the process configuration.
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		RelayURL:       cfg.Relay.PublishURL(),
		RelayTransport: cfg.Relay.Transport,
		StaticHost:     cfg.Static.Host,
		StaticPorts: map[model.StateKind]int{
			model.StateConnecting:     cfg.Static.ConnectingPort,
			model.StateCameraAbsent:   cfg.Static.NoSuchCameraPort,
			model.StateCameraDisabled: cfg.Static.CameraDisabledPort,
		},
		StaticPublish:     cfg.Static.Publish,
		LocalSink:         cfg.Static.LocalSink,
		DefaultSource:     cfg.Live.SourceURL,
		BitrateKbps:       cfg.Live.BitrateKbps,
		Framerate:         cfg.Live.Framerate,
		Width:             cfg.Live.Width,
		Height:            cfg.Live.Height,
		HeartbeatInterval: cfg.Engine.HeartbeatInterval,
	}
}

// State resolves a state kind to a fully parameterised StreamState.
// For Live an empty source falls back to the configured default; ok is false
// when no source is known at all.
func (o Options) State(kind model.StateKind, source string) (model.StreamState, bool) {
	if kind == model.StateLive {
		if source == "" {
			source = o.DefaultSource
		}
		return model.StreamState{Kind: model.StateLive, Source: source}, source != ""
	}
	port, ok := o.StaticPorts[kind]
	return model.StreamState{Kind: kind, Port: port}, ok && port > 0
}

// Build produces the pipeline description for state. It is total: any
// problem with the result is reported by the engine as a build error.
func Build(state model.StreamState, opts Options) Spec {
	if state.Kind == model.StateLive {
		return buildLive(state, opts)
	}
	return buildStatic(state, opts)
}

func buildStatic(state model.StreamState, opts Options) Spec {
	s := Spec{
		State: state,
		Source: Element("tcpclientsrc",
			"host", opts.StaticHost,
			"port", strconv.Itoa(state.Port),
		),
		Decode: []Stage{
			Element("multipartdemux"),
			Element("jpegdec"),
			Element("videoconvert"),
		},
	}
	if hb := progressStage(opts); hb != nil {
		s.Decode = append(s.Decode, *hb)
	}
	if !opts.StaticPublish {
		s.Sink = localSink(opts.LocalSink)
		return s
	}
	s.Encode = encodeChain(opts)
	s.Sink = publishSink(opts)
	s.Publishes = true
	s.PublishURL = opts.RelayURL
	return s
}

func buildLive(state model.StreamState, opts Options) Spec {
	s := Spec{State: state}
	if isRTSP(state.Source) {
		s.Source = Element("rtspsrc",
			"location", state.Source,
			"latency", "200",
			"protocols", transport(opts.RelayTransport),
		)
		s.Decode = []Stage{Element("decodebin"), Element("videoconvert")}
	} else {
		s.Source = Element("uridecodebin", "uri", state.Source)
		s.Decode = []Stage{Element("videoconvert")}
	}
	if hb := progressStage(opts); hb != nil {
		s.Decode = append(s.Decode, *hb)
	}
	s.Encode = encodeChain(opts)
	s.Sink = publishSink(opts)
	s.Publishes = true
	s.PublishURL = opts.RelayURL
	return s
}

func encodeChain(opts Options) []Stage {
	fps := opts.Framerate
	if fps <= 0 {
		fps = 10
	}
	return []Stage{
		Element("videoscale"),
		Element("videorate"),
		CapsFilter(fmt.Sprintf("video/x-raw,width=%d,height=%d,framerate=%d/1", opts.Width, opts.Height, fps)),
		Element("x264enc",
			"tune", "zerolatency",
			"speed-preset", "ultrafast",
			"bitrate", strconv.Itoa(opts.BitrateKbps),
			"key-int-max", strconv.Itoa(fps*2),
			"bframes", "0",
		),
		Element("h264parse"),
	}
}

func publishSink(opts Options) Stage {
	return Element("rtspclientsink",
		"location", opts.RelayURL,
		"protocols", transport(opts.RelayTransport),
	)
}

// localSink parses a configured sink such as "fakesink sync=true".
func localSink(desc string) Stage {
	fields := strings.Fields(desc)
	if len(fields) == 0 {
		return Element("autovideosink")
	}
	st := Stage{Factory: fields[0]}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		st.Props = append(st.Props, Property{Key: k, Value: strings.Trim(v, `"`)})
	}
	return st
}

func progressStage(opts Options) *Stage {
	if opts.HeartbeatInterval <= 0 {
		return nil
	}
	secs := int(math.Ceil(opts.HeartbeatInterval.Seconds()))
	st := Element("progressreport",
		"update-freq", strconv.Itoa(secs),
		"silent", "false",
	)
	return &st
}

func transport(t string) string {
	if t == "udp" {
		return "udp"
	}
	return "tcp"
}

func isRTSP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "rtsp" || u.Scheme == "rtsps"
}
