// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeLaunch mimics the gst-launch-1.0 -m output for the mode in FAKE_MODE.
const fakeLaunch = `#!/bin/sh
case "$1" in --version) echo "gst-launch-1.0 version 1.22.0"; exit 0;; esac
case "$FAKE_MODE" in
build)
  echo 'WARNING: erroneous pipeline: no element "bogussrc"'
  exit 1;;
error)
  echo "Setting pipeline to PLAYING ..."
  echo "New clock: GstSystemClock"
  sleep 0.2
  echo "ERROR: from element /GstPipeline:pipeline0/GstRTSPSrc:rtspsrc0: Unauthorized"
  echo "Additional debug info:"
  echo "gstrtspsrc.c(6795): 401 Unauthorized"
  exit 1;;
eos)
  echo "New clock: GstSystemClock"
  sleep 0.2
  echo 'Got EOS from element "pipeline0".'
  exit 0;;
hang)
  trap '' INT
  echo "New clock: GstSystemClock"
  sleep 30;;
never)
  sleep 30;;
*)
  trap 'echo "Got EOS from element \"pipeline0\"."; exit 0' INT
  echo "Setting pipeline to PLAYING ..."
  echo "New clock: GstSystemClock"
  while :; do
    echo "progressreport0 (00:00:01): 1 seconds"
    sleep 0.05
  done;;
esac
`

func newTestEngine(t *testing.T, mode string) *Engine {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "gst-launch-1.0")
	require.NoError(t, os.WriteFile(bin, []byte(fakeLaunch), 0o755))
	return New(Options{
		Bin:          bin,
		StartTimeout: time.Second,
		StopTimeout:  300 * time.Millisecond,
		KillWait:     2 * time.Second,
		Env:          []string{"FAKE_MODE=" + mode},
	})
}

func testSpec() spec.Spec {
	st := model.StreamState{Kind: model.StateConnecting, Port: 9000}
	return spec.Spec{
		State:  st,
		Source: spec.Element("tcpclientsrc", "port", "9000"),
		Sink:   spec.Element("fakesink"),
	}
}

func nextEvent(t *testing.T, h exec.Handle, kind model.LifecycleKind) model.LifecycleEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			require.True(t, ok, "events closed before %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, newTestEngine(t, "play").Check(context.Background()))

	err := New(Options{Bin: "/nonexistent/gst-launch-1.0"}).Check(context.Background())
	assert.ErrorIs(t, err, model.ErrEngineUnavailable)
}

func TestStartAndGracefulStop(t *testing.T) {
	h, err := newTestEngine(t, "play").Start(context.Background(), testSpec())
	require.NoError(t, err)

	nextEvent(t, h, model.EventHeartbeat)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
	require.NoError(t, h.Stop(ctx), "stop is idempotent")

	for ev := range h.Events() {
		assert.NotEqual(t, model.EventEndOfStream, ev.Kind, "no terminal event after stop")
	}
}

func TestStartBuildError(t *testing.T) {
	_, err := newTestEngine(t, "build").Start(context.Background(), testSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPipelineBuild)
	assert.Contains(t, err.Error(), "bogussrc")
}

func TestStartTimeout(t *testing.T) {
	_, err := newTestEngine(t, "never").Start(context.Background(), testSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPipelineStart)
}

func TestRuntimeErrorIsClassified(t *testing.T) {
	h, err := newTestEngine(t, "error").Start(context.Background(), testSpec())
	require.NoError(t, err)

	ev := nextEvent(t, h, model.EventFatalError)
	assert.Equal(t, model.FaultAuth, ev.Class)
	assert.Contains(t, ev.Detail, "Unauthorized")
	require.NoError(t, h.Stop(context.Background()))
}

func TestEndOfStream(t *testing.T) {
	h, err := newTestEngine(t, "eos").Start(context.Background(), testSpec())
	require.NoError(t, err)

	nextEvent(t, h, model.EventEndOfStream)
	_, open := <-h.Events()
	assert.False(t, open)
	require.NoError(t, h.Stop(context.Background()))
}

func TestStopForcedWhenProcessIgnoresInterrupt(t *testing.T) {
	h, err := newTestEngine(t, "hang").Start(context.Background(), testSpec())
	require.NoError(t, err)

	start := time.Now()
	err = h.Stop(context.Background())
	assert.True(t, errors.Is(err, exec.ErrStopForced))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, err, h.Stop(context.Background()))
}
