// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package spec

import (
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	cfg := config.Defaults()
	cfg.Relay.RTSPPort = 8554
	cfg.Relay.Path = "cam1"
	cfg.Static.ConnectingPort = 9000
	cfg.Static.NoSuchCameraPort = 9001
	cfg.Static.CameraDisabledPort = 9002
	cfg.Live.SourceURL = "rtsp://camera.local/stream"
	cfg.Engine.HeartbeatInterval = 0
	return OptionsFromConfig(cfg)
}

func TestBuildStaticRendersLocally(t *testing.T) {
	opts := testOptions()
	st, ok := opts.State(model.StateConnecting, "")
	require.True(t, ok)

	got := Build(st, opts)

	assert.False(t, got.Publishes)
	assert.Empty(t, got.PublishURL)
	want := "tcpclientsrc host=127.0.0.1 port=9000 ! multipartdemux ! jpegdec ! videoconvert ! autovideosink"
	if diff := cmp.Diff(want, got.Launch()); diff != "" {
		t.Fatalf("launch mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildStaticPorts(t *testing.T) {
	opts := testOptions()
	for kind, port := range map[model.StateKind]string{
		model.StateConnecting:     "9000",
		model.StateCameraAbsent:   "9001",
		model.StateCameraDisabled: "9002",
	} {
		st, ok := opts.State(kind, "")
		require.True(t, ok)
		v, _ := Build(st, opts).Source.Prop("port")
		assert.Equal(t, port, v, kind)
	}
}

func TestBuildStaticPublishing(t *testing.T) {
	opts := testOptions()
	opts.StaticPublish = true
	st, _ := opts.State(model.StateCameraDisabled, "")

	got := Build(st, opts)

	assert.True(t, got.Publishes)
	assert.Equal(t, "rtsp://127.0.0.1:8554/cam1", got.PublishURL)
	assert.Equal(t, "rtspclientsink", got.Sink.Factory)
}

func TestBuildLivePublishesToRelay(t *testing.T) {
	opts := testOptions()
	st, ok := opts.State(model.StateLive, "")
	require.True(t, ok)

	got := Build(st, opts)

	want := "rtspsrc location=rtsp://camera.local/stream latency=200 protocols=tcp" +
		" ! decodebin ! videoconvert ! videoscale ! videorate" +
		" ! video/x-raw,width=640,height=480,framerate=10/1" +
		" ! x264enc tune=zerolatency speed-preset=ultrafast bitrate=1000 key-int-max=20 bframes=0" +
		" ! h264parse ! rtspclientsink location=rtsp://127.0.0.1:8554/cam1 protocols=tcp"
	if diff := cmp.Diff(want, got.Launch()); diff != "" {
		t.Fatalf("launch mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Publishes)
	assert.Equal(t, "rtsp://127.0.0.1:8554/cam1", got.PublishURL)
}

func TestBuildLiveNonRTSPUsesURIDecodeBin(t *testing.T) {
	opts := testOptions()
	st, _ := opts.State(model.StateLive, "http://camera.local/mjpeg?x=1&y=2")

	got := Build(st, opts)

	assert.Equal(t, "uridecodebin", got.Source.Factory)
	assert.Contains(t, got.Launch(), `uri="http://camera.local/mjpeg?x=1&y=2"`)
}

func TestBuildInsertsProgressReport(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = 1500 * time.Millisecond
	st, _ := opts.State(model.StateCameraAbsent, "")

	got := Build(st, opts)

	assert.Contains(t, got.Launch(), "progressreport update-freq=2 silent=false")
}

func TestStateWithoutLiveSource(t *testing.T) {
	opts := testOptions()
	opts.DefaultSource = ""
	_, ok := opts.State(model.StateLive, "")
	assert.False(t, ok)

	st, ok := opts.State(model.StateLive, "rtsp://other/cam")
	assert.True(t, ok)
	assert.Equal(t, "rtsp://other/cam", st.Source)
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := testOptions()
	st, _ := opts.State(model.StateLive, "")
	assert.Equal(t, Build(st, opts).Args(), Build(st, opts).Args())
}

func TestLocalSinkParsesProperties(t *testing.T) {
	opts := testOptions()
	opts.LocalSink = "fakesink sync=true"
	st, _ := opts.State(model.StateConnecting, "")

	got := Build(st, opts)
	assert.Equal(t, "fakesink", got.Sink.Factory)
	v, ok := got.Sink.Prop("sync")
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}
