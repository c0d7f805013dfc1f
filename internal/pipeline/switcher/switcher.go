// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package switcher owns the active pipeline and serializes every state change.
//
// All requests go through Request, which never blocks. A single run loop
// applies them one at a time; a request that is superseded before the loop
// picks it up is dropped (last target wins). Recovery requests from the
// supervisor wait in their own slot and never supersede a target request;
// the target request is applied first. The run loop is the only
// code that touches the current state and handle.
//
// The relay path accepts one publisher. When both the running and the next
// pipeline publish, the running one is stopped before the next starts.
// Otherwise the next one is started first and the previous one is stopped
// after the swap; if the start fails the previous pipeline keeps running.
package switcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/ManuGH/mtxstreamer/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("switcher already running")

// BuildFunc renders the pipeline for a state.
type BuildFunc func(model.StreamState) spec.Spec

// FallbackFunc picks the safe state for a failing state and fault class.
type FallbackFunc func(failing model.StreamState, class model.FaultClass) model.StreamState

// Observer is told about every started handle and every failed start.
// Calls come from the run loop and must not block.
type Observer interface {
	HandleStarted(h exec.Handle, generation uint64, state model.StreamState)
	StartFailed(f StartFailure)
}

// StartFailure describes a transition whose pipeline did not start.
type StartFailure struct {
	Request model.TransitionRequest
	Target  model.StreamState
	// Generation is the generation still active after the failure.
	Generation uint64
	Err        error
}

// Options configures a Switcher.
type Options struct {
	Engine   exec.Engine
	Build    BuildFunc
	Fallback FallbackFunc
	Bus      bus.Bus
	// StopTimeout bounds the graceful part of stopping a handle.
	StopTimeout time.Duration
	// PublishTimeout bounds each bus publish.
	PublishTimeout time.Duration
}

// Snapshot is a point-in-time view of the switcher.
type Snapshot struct {
	State       model.StreamState `json:"state"`
	Generation  uint64            `json:"generation"`
	HandleID    string            `json:"handle_id,omitempty"`
	Running     bool              `json:"running"`
	Publishes   bool              `json:"publishes"`
	PublishURL  string            `json:"publish_url,omitempty"`
	Since       time.Time         `json:"since,omitempty"`
	Transitions uint64            `json:"transitions"`
	LastError   string            `json:"last_error,omitempty"`
}

// Switcher is the state machine.
type Switcher struct {
	opts     Options
	logger   zerolog.Logger
	tracer   trace.Tracer
	observer Observer

	mu       sync.Mutex
	pending  *model.TransitionRequest
	recovery *model.TransitionRequest
	wake     chan struct{}

	// Owned by the run loop.
	current model.StreamState
	handle  exec.Handle
	gen     uint64

	snapMu sync.RWMutex
	snap   Snapshot

	teardown  sync.WaitGroup
	running   atomic.Bool
	processed atomic.Uint64
	cancel    context.CancelFunc
	done      chan struct{}
	closeErr  error
}

// New creates a Switcher. Call SetObserver before Run if a supervisor is used.
func New(opts Options) *Switcher {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 250 * time.Millisecond
	}
	return &Switcher{
		opts:   opts,
		logger: log.WithComponent("switcher"),
		tracer: telemetry.Tracer("mtxstreamer/switcher"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// SetObserver registers the observer. It must be called before Run.
func (s *Switcher) SetObserver(o Observer) { s.observer = o }

// Request queues req, replacing any request of the same kind not yet picked
// up. Recovery requests only replace each other.
func (s *Switcher) Request(req model.TransitionRequest) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	s.mu.Lock()
	slot := &s.pending
	if req.Recovery() {
		slot = &s.recovery
	}
	if *slot != nil {
		metrics.IncRequestsCoalesced()
		s.logger.Debug().
			Str(log.FieldEvent, "request.coalesced").
			Str("dropped", (*slot).String()).
			Str(log.FieldRequest, req.String()).
			Msg("pending request superseded")
	}
	*slot = &req
	s.mu.Unlock()

	s.notify()
}

func (s *Switcher) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take returns the next request, target requests first.
func (s *Switcher) take() (model.TransitionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req model.TransitionRequest
	switch {
	case s.pending != nil:
		req = *s.pending
		s.pending = nil
	case s.recovery != nil:
		req = *s.recovery
		s.recovery = nil
	default:
		return model.TransitionRequest{}, false
	}
	if s.pending != nil || s.recovery != nil {
		defer s.notify()
	}
	return req, true
}

// Run applies requests until ctx is done, then stops the active handle.
func (s *Switcher) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			s.closeErr = s.shutdown()
			return s.closeErr
		case <-s.wake:
			if req, ok := s.take(); ok {
				s.apply(ctx, req)
				s.processed.Add(1)
			}
		}
	}
}

// Close stops the run loop and waits for the active handle to be stopped.
func (s *Switcher) Close(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run has returned.
func (s *Switcher) Done() <-chan struct{} { return s.done }

// Snapshot returns the current view.
func (s *Switcher) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Switcher) updateSnapshot(fn func(*Snapshot)) {
	s.snapMu.Lock()
	fn(&s.snap)
	s.snapMu.Unlock()
}

// resolve maps a request to its target. forced means the target is rebuilt
// even if it is the current state.
func (s *Switcher) resolve(req model.TransitionRequest) (model.StreamState, bool) {
	switch req.Kind {
	case model.RequestRetrySame:
		return s.current, true
	case model.RequestFallbackSafe:
		failing := req.Target
		if failing.IsZero() {
			failing = s.current
		}
		if failing.IsZero() || s.opts.Fallback == nil {
			return model.StreamState{}, true
		}
		safe := s.opts.Fallback(failing, req.Class)
		return safe, safe.Equal(failing)
	default:
		return req.Target, false
	}
}

func (s *Switcher) apply(ctx context.Context, req model.TransitionRequest) {
	ctx = log.ContextWithCorrelationID(ctx, req.CorrelationID)
	logger := log.WithContext(ctx, s.logger).With().
		Str(log.FieldRequest, req.String()).
		Str(log.FieldOrigin, req.Origin).
		Logger()

	if req.Recovery() && req.Generation != s.gen {
		metrics.IncRequestsStale()
		logger.Debug().
			Str(log.FieldEvent, "request.stale").
			Uint64(log.FieldGeneration, req.Generation).
			Uint64("current_generation", s.gen).
			Msg("dropping request for an outdated handle")
		return
	}

	target, forced := s.resolve(req)
	if target.IsZero() {
		logger.Warn().Str(log.FieldEvent, "request.unresolved").Msg("request has no target state")
		return
	}
	if !forced && s.handle != nil && target.Equal(s.current) {
		logger.Debug().Str(log.FieldEvent, "request.noop").Msg("already in requested state")
		return
	}

	ctx, span := s.tracer.Start(ctx, "switcher.transition",
		trace.WithAttributes(telemetry.TransitionAttributes(req.String(), req.Origin, s.current.String(), target.String())...))
	defer span.End()

	started := time.Now()
	err := s.swap(ctx, req, target, logger)
	metrics.RecordTransition(string(req.Kind), req.Origin, string(target.Kind), err == nil, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(err, string(model.ClassOf(err)))...)
	}
}

func (s *Switcher) swap(ctx context.Context, req model.TransitionRequest, target model.StreamState, logger zerolog.Logger) error {
	next := s.opts.Build(target)
	old := s.handle
	oldPublishes := old != nil && old.Spec().Publishes

	if oldPublishes && next.Publishes {
		logger.Info().
			Str(log.FieldEvent, "relay.handoff").
			Str(log.FieldHandle, old.ID()).
			Msg("stopping current publisher before starting the next")
		s.stop(old, logger)
		s.handle, old = nil, nil
		s.updateSnapshot(func(sn *Snapshot) {
			sn.HandleID, sn.Running, sn.Publishes = "", false, false
		})
	}

	h, err := s.opts.Engine.Start(ctx, next)
	if err != nil {
		s.updateSnapshot(func(sn *Snapshot) { sn.LastError = err.Error() })
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "transition.start_failed").
			Str(log.FieldTarget, target.String()).
			Str(log.FieldFaultClass, string(model.ClassOf(err))).
			Bool("kept_previous", s.handle != nil).
			Msg("pipeline start failed")
		if s.observer != nil {
			s.observer.StartFailed(StartFailure{Request: req, Target: target, Generation: s.gen, Err: err})
		}
		return err
	}

	prev := s.current
	s.gen++
	s.current = target
	s.handle = h
	now := time.Now()
	s.updateSnapshot(func(sn *Snapshot) {
		sn.State = target
		sn.Generation = s.gen
		sn.HandleID = h.ID()
		sn.Running = true
		sn.Publishes = next.Publishes
		sn.PublishURL = next.PublishURL
		sn.Since = now
		sn.Transitions++
		sn.LastError = ""
	})
	metrics.SetCurrentState(string(target.Kind))
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.PipelineAttributes(s.opts.Engine.Name(), h.ID(), s.gen, next.Publishes)...)

	logger.Info().
		Str(log.FieldEvent, "state.changed").
		Str(log.FieldOldState, prev.String()).
		Str(log.FieldNewState, target.String()).
		Uint64(log.FieldGeneration, s.gen).
		Str(log.FieldHandle, h.ID()).
		Bool("publishes", next.Publishes).
		Str(log.FieldPublishURL, next.PublishURL).
		Msg("state changed")

	if s.observer != nil {
		s.observer.HandleStarted(h, s.gen, target)
	}
	s.publish(ctx, model.StatusEvent{
		State:      target,
		Previous:   prev,
		Generation: s.gen,
		HandleID:   h.ID(),
		Publishes:  next.Publishes,
		At:         now,
	})

	if old != nil {
		if oldPublishes {
			s.stop(old, logger)
		} else {
			s.teardown.Add(1)
			go func() {
				defer s.teardown.Done()
				s.stop(old, logger)
			}()
		}
	}
	return nil
}

// stop stops h within the stop bound. Forced stops are logged, never fatal.
func (s *Switcher) stop(h exec.Handle, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()
	err := h.Stop(ctx)
	switch {
	case errors.Is(err, exec.ErrStopForced):
		logger.Warn().Err(err).Str(log.FieldEvent, "handle.stop_forced").Str(log.FieldHandle, h.ID()).Msg("pipeline force-finalized")
	case err != nil:
		logger.Warn().Err(err).Str(log.FieldEvent, "handle.stop_failed").Str(log.FieldHandle, h.ID()).Msg("pipeline stop failed")
	default:
		logger.Debug().Str(log.FieldEvent, "handle.stopped").Str(log.FieldHandle, h.ID()).Msg("pipeline stopped")
	}
	return err
}

func (s *Switcher) publish(ctx context.Context, ev model.StatusEvent) {
	if s.opts.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
	defer cancel()
	if err := s.opts.Bus.Publish(ctx, bus.TopicState, ev); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "bus.publish_failed").Msg("state event not delivered")
	}
}

func (s *Switcher) shutdown() error {
	var err error
	if s.handle != nil {
		err = s.stop(s.handle, s.logger)
		s.handle = nil
	}
	s.teardown.Wait()
	s.updateSnapshot(func(sn *Snapshot) { sn.Running, sn.HandleID, sn.Publishes = false, "", false })
	s.logger.Info().
		Str(log.FieldEvent, "switcher.stopped").
		Str(log.FieldNewState, s.current.String()).
		Msg("switcher stopped")
	return err
}
