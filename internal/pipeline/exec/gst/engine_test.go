// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gst

package gst

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyzimmer/go-gst/gst"
)

func nextTerminal(t *testing.T, h *handle) model.LifecycleEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			require.True(t, ok, "event channel closed before a terminal event")
			if ev.Kind == model.EventEndOfStream || ev.Kind == model.EventFatalError {
				return ev
			}
		case <-timeout:
			t.Fatal("no terminal event")
		}
	}
}

func TestEndedPipelineIsReleased(t *testing.T) {
	e := New(Options{StartTimeout: 5 * time.Second})
	s := spec.Spec{
		State:  model.StreamState{Kind: model.StateConnecting, Port: 9000},
		Source: spec.Element("videotestsrc", "num-buffers", "30"),
		Sink:   spec.Element("fakesink"),
	}

	started, err := e.Start(context.Background(), s)
	require.NoError(t, err)
	h := started.(*handle)

	ev := nextTerminal(t, h)
	assert.Equal(t, model.EventEndOfStream, ev.Kind)
	assert.Equal(t, gst.StateNull, h.pipeline.GetState())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, h.Stop(ctx))
}

func TestBuildErrorForUnknownElement(t *testing.T) {
	e := New(Options{})
	_, err := e.Start(context.Background(), spec.Spec{
		State:  model.StreamState{Kind: model.StateConnecting, Port: 9000},
		Source: spec.Element("no-such-element-factory"),
		Sink:   spec.Element("fakesink"),
	})
	assert.ErrorIs(t, err, model.ErrPipelineBuild)
}
