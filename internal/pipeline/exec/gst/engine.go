// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gst

// Package gst runs pipelines in-process through the GStreamer bindings.
package gst

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
)

// Available reports whether this binary was built with GStreamer bindings.
const Available = true

var initOnce sync.Once

// Engine builds each pipeline with gst_parse_launch and watches its bus.
type Engine struct {
	opts   Options
	logger zerolog.Logger
}

var _ exec.Engine = (*Engine)(nil)

// New creates an in-process engine.
func New(opts Options) *Engine {
	initOnce.Do(func() { gst.Init(nil) })
	return &Engine{opts: opts.withDefaults(), logger: log.WithComponent("gst")}
}

func (e *Engine) Name() string { return EngineName }

// Check makes sure the core source element can be created.
func (e *Engine) Check(ctx context.Context) error {
	for _, factory := range []string{"tcpclientsrc", "videoconvert"} {
		el, err := gst.NewElement(factory)
		if err != nil {
			return fmt.Errorf("%w: element %s: %v", model.ErrEngineUnavailable, factory, err)
		}
		_ = el.SetState(gst.StateNull)
	}
	return nil
}

// Start parses and plays s, returning once the pipeline reports PLAYING.
func (e *Engine) Start(ctx context.Context, s spec.Spec) (exec.Handle, error) {
	started := time.Now()
	pipeline, err := gst.NewPipelineFromString(s.Launch())
	if err != nil {
		metrics.RecordPipelineStart(EngineName, string(s.State.Kind), false, 0)
		return nil, model.NewBuildError(s.State, err.Error())
	}

	id := uuid.NewString()
	h := &handle{
		id:       id,
		spec:     s,
		pipeline: pipeline,
		opts:     e.opts,
		events:   exec.NewEmitter(16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger: e.logger.With().
			Str(log.FieldHandle, id).
			Str(log.FieldTarget, s.State.String()).
			Logger(),
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		metrics.RecordPipelineStart(EngineName, string(s.State.Kind), false, 0)
		return nil, model.NewStartError(s.State, err.Error())
	}
	if err := h.awaitPlaying(ctx); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		metrics.RecordPipelineStart(EngineName, string(s.State.Kind), false, 0)
		return nil, err
	}

	metrics.RecordPipelineStart(EngineName, string(s.State.Kind), true, time.Since(started))
	metrics.AddHandles(1, publishCount(s))
	h.events.Emit(model.LifecycleEvent{Kind: model.EventStateChanged, Detail: "PLAYING"})
	go h.monitor()

	h.logger.Info().
		Str(log.FieldEvent, "pipeline.playing").
		Dur("startup", time.Since(started)).
		Msg("pipeline playing")
	return h, nil
}

type handle struct {
	id       string
	spec     spec.Spec
	pipeline *gst.Pipeline
	opts     Options
	events   *exec.Emitter
	logger   zerolog.Logger

	quit     chan struct{}
	done     chan struct{}
	stopping atomic.Bool
	sawEOS   atomic.Bool
	stopOnce sync.Once
	stopErr  error
	nullOnce sync.Once
	nullErr  error
}

func (h *handle) ID() string { return h.id }

func (h *handle) Spec() spec.Spec { return h.spec }

func (h *handle) Events() <-chan model.LifecycleEvent { return h.events.C() }

func (h *handle) awaitPlaying(ctx context.Context) error {
	bus := h.pipeline.GetPipelineBus()
	deadline := time.Now().Add(h.opts.StartTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return model.NewStartError(h.spec.State, err.Error())
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return model.NewStartError(h.spec.State, gerr.Error()+": "+gerr.DebugString())
		case gst.MessageEOS:
			return model.NewStartError(h.spec.State, "end of stream before PLAYING")
		case gst.MessageStateChanged:
			if msg.Source() == h.pipeline.GetName() {
				if _, next := msg.ParseStateChanged(); next == gst.StatePlaying {
					return nil
				}
			}
		}
	}
	return model.NewStartError(h.spec.State, fmt.Sprintf("not playing after %s", h.opts.StartTimeout))
}

// release moves the pipeline to NULL once, freeing its sockets and devices.
func (h *handle) release() error {
	h.nullOnce.Do(func() { h.nullErr = h.pipeline.SetState(gst.StateNull) })
	return h.nullErr
}

// monitor polls the bus until a terminal message arrives or Stop asks it to
// quit. A pipeline that ended on its own is released right away.
func (h *handle) monitor() {
	defer close(h.done)
	defer h.events.Close()
	defer metrics.AddHandles(-1, -publishCount(h.spec))

	bus := h.pipeline.GetPipelineBus()
	for {
		select {
		case <-h.quit:
			return
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			h.sawEOS.Store(true)
			if h.stopping.Load() {
				return
			}
			metrics.IncPipelineExit(EngineName, "eos")
			h.releaseAfterExit()
			h.events.Emit(model.LifecycleEvent{Kind: model.EventEndOfStream})
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			detail := gerr.Error()
			if dbg := gerr.DebugString(); dbg != "" {
				detail += " (" + dbg + ")"
			}
			h.logger.Warn().Str(log.FieldEvent, "pipeline.error").Str("debug", gerr.DebugString()).Msg(gerr.Error())
			metrics.IncPipelineExit(EngineName, "error")
			h.releaseAfterExit()
			h.events.Emit(model.LifecycleEvent{
				Kind:   model.EventFatalError,
				Class:  model.ClassifyDetail(detail),
				Detail: detail,
			})
			return
		case gst.MessageElement:
			if strings.HasPrefix(msg.Source(), "progressreport") {
				h.events.Emit(model.LifecycleEvent{Kind: model.EventHeartbeat})
			}
		}
	}
}

func (h *handle) releaseAfterExit() {
	if err := h.release(); err != nil {
		h.logger.Warn().Err(err).Str(log.FieldEvent, "pipeline.release_failed").Msg("failed to set pipeline to NULL")
	}
}

// Stop sends EOS, waits for it to drain within the bound, then sets the
// pipeline to NULL.
func (h *handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.stopping.Store(true)
		h.events.Mute()

		grace := h.opts.StopTimeout
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < grace {
				grace = max(left, 0)
			}
		}

		h.pipeline.SendEvent(gst.NewEOSEvent())
		timer := time.NewTimer(grace)
		defer timer.Stop()
		forced := false
		select {
		case <-h.done:
		case <-timer.C:
			forced = true
		}
		close(h.quit)
		<-h.done

		nullDone := make(chan error, 1)
		go func() { nullDone <- h.release() }()
		select {
		case err := <-nullDone:
			if err != nil {
				h.stopErr = fmt.Errorf("%w: set NULL: %v", exec.ErrStopForced, err)
			}
		case <-time.After(h.opts.KillWait):
			forced = true
		}
		if forced && h.stopErr == nil {
			h.stopErr = fmt.Errorf("%w: no EOS within %s", exec.ErrStopForced, grace)
		}
		metrics.IncPipelineStop(EngineName, forced)
		ev := h.logger.Info()
		if h.stopErr != nil {
			ev = h.logger.Warn().Err(h.stopErr)
		}
		ev.Str(log.FieldEvent, "pipeline.stopped").Bool("forced", forced).Msg("pipeline stopped")
	})
	return h.stopErr
}

func publishCount(s spec.Spec) int {
	if s.Publishes {
		return 1
	}
	return 0
}
