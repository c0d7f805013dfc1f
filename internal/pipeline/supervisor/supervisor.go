// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor watches running pipelines and turns their faults into
// retry or fallback requests for the switcher.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
	"github.com/ManuGH/mtxstreamer/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Requester accepts transition requests. *switcher.Switcher implements it.
type Requester interface {
	Request(model.TransitionRequest)
}

// Options configures a Supervisor.
type Options struct {
	Policy    Policy
	Requester Requester
	Bus       bus.Bus
	// StallTimeout enables the heartbeat watchdog when positive.
	StallTimeout time.Duration
	// FirstBeatTimeout bounds the wait for the first heartbeat. Defaults to StallTimeout.
	FirstBeatTimeout time.Duration
	PublishTimeout   time.Duration
}

// Supervisor implements switcher.Observer.
type Supervisor struct {
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	gen     uint64
	budget  budget
	failSeq uint64
}

var _ switcher.Observer = (*Supervisor)(nil)

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.FirstBeatTimeout <= 0 {
		opts.FirstBeatTimeout = opts.StallTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 250 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:   opts,
		logger: log.WithComponent("supervisor"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run blocks until ctx is done, then stops every watcher and pending retry.
func (s *Supervisor) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	s.Close()
	return nil
}

// Close stops all watchers and waits for them.
func (s *Supervisor) Close() {
	s.cancel()
	s.wg.Wait()
}

// HandleStarted starts watching h.
func (s *Supervisor) HandleStarted(h exec.Handle, gen uint64, state model.StreamState) {
	s.mu.Lock()
	s.gen = gen
	if !s.budget.state.Equal(state) {
		s.budget = s.opts.Policy.newBudget(state)
	}
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go s.watch(h, gen, state)
}

// StartFailed applies the retry policy to a transition that did not start.
func (s *Supervisor) StartFailed(f switcher.StartFailure) {
	class := model.ClassOf(f.Err)

	s.mu.Lock()
	s.failSeq++
	seq := s.failSeq
	if !s.budget.state.Equal(f.Target) {
		s.budget = s.opts.Policy.newBudget(f.Target)
	}
	s.mu.Unlock()

	logger := s.logger.With().
		Str(log.FieldTarget, f.Target.String()).
		Uint64(log.FieldGeneration, f.Generation).
		Str(log.FieldFaultClass, string(class)).
		Logger()

	// Re-issue the original request so forced rebuilds stay forced.
	retry := f.Request
	retry.Generation = f.Generation
	retry.Origin = model.OriginSupervisor

	if class == model.FaultBuild {
		s.escalate(f.Target, f.Generation, class, f.Err.Error(), retry, seq, nil, logger)
		return
	}
	s.retryOrEscalate(f.Target, f.Generation, class, f.Err.Error(), 0, retry, seq, nil, logger)
}

func (s *Supervisor) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// superseded reports whether a newer handle or start failure made a
// scheduled request obsolete.
func (s *Supervisor) superseded(gen, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen || s.failSeq != seq
}

// retryOrEscalate consumes the retry budget for state and schedules retry,
// or escalates to the fallback once the budget is spent. sent runs when a
// retry request has been issued. It returns the action taken.
func (s *Supervisor) retryOrEscalate(state model.StreamState, gen uint64, class model.FaultClass, detail string,
	ranFor time.Duration, retry model.TransitionRequest, seq uint64, sent func(), logger zerolog.Logger) string {
	p := s.opts.Policy

	s.mu.Lock()
	if !s.budget.state.Equal(state) || (p.StableAfter > 0 && ranFor >= p.StableAfter) {
		s.budget = p.newBudget(state)
	}
	attempt, delay, ok := s.budget.next(p.MaxRetries)
	s.mu.Unlock()

	if !ok {
		return s.escalate(state, gen, class, detail, retry, seq, sent, logger)
	}
	s.report(state, gen, class, detail, model.ActionRetry, attempt)
	logger.Warn().
		Str(log.FieldEvent, "fault.retry").
		Int(log.FieldAttempt, attempt).
		Int("max_retries", p.MaxRetries).
		Dur(log.FieldDelay, delay).
		Str("detail", detail).
		Msg("retrying after fault")
	s.schedule(delay, gen, seq, retry, sent)
	return model.ActionRetry
}

// escalate requests the fallback state. If the fallback is the failing
// state itself the retry is repeated at the maximum delay.
func (s *Supervisor) escalate(state model.StreamState, gen uint64, class model.FaultClass, detail string,
	retry model.TransitionRequest, seq uint64, sent func(), logger zerolog.Logger) string {
	p := s.opts.Policy
	target := p.FallbackFor(state, class)

	if target.Equal(state) {
		s.mu.Lock()
		s.budget.attempts++
		attempt := s.budget.attempts
		s.mu.Unlock()

		s.report(state, gen, class, detail, model.ActionRetry, attempt)
		logger.Warn().
			Str(log.FieldEvent, "fault.retry_floor").
			Int(log.FieldAttempt, attempt).
			Dur(log.FieldDelay, p.RetryMax).
			Str("detail", detail).
			Msg("no safer state, retrying")
		s.schedule(p.RetryMax, gen, seq, retry, sent)
		return model.ActionRetry
	}

	s.report(state, gen, class, detail, model.ActionFallback, 0)
	logger.Error().
		Str(log.FieldEvent, "fault.fallback").
		Str(log.FieldNewState, target.String()).
		Str("detail", detail).
		Msg("falling back to safe state")

	req := model.FallbackSafe(gen, class)
	req.Target = state
	req.CorrelationID = retry.CorrelationID
	s.opts.Requester.Request(req)
	return model.ActionFallback
}

// schedule sends req after delay unless it was superseded.
func (s *Supervisor) schedule(delay time.Duration, gen, seq uint64, req model.TransitionRequest, sent func()) {
	send := func() {
		s.opts.Requester.Request(req)
		if sent != nil {
			sent()
		}
	}
	if delay <= 0 {
		send()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		if s.superseded(gen, seq) {
			s.logger.Debug().
				Str(log.FieldEvent, "fault.retry_superseded").
				Str(log.FieldRequest, req.String()).
				Msg("scheduled retry no longer applies")
			return
		}
		send()
	}()
}

func (s *Supervisor) report(state model.StreamState, gen uint64, class model.FaultClass, detail, action string, attempt int) {
	metrics.IncFault(string(state.Kind), string(class), action)
	_, span := telemetry.Tracer("supervisor").Start(s.ctx, "supervisor.fault",
		trace.WithAttributes(telemetry.FaultAttributes(string(class), action, attempt)...))
	span.End()
	if s.opts.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.PublishTimeout)
	defer cancel()
	err := s.opts.Bus.Publish(ctx, bus.TopicFault, model.FaultEvent{
		State:      state,
		Generation: gen,
		Class:      class,
		Detail:     detail,
		Action:     action,
		Attempt:    attempt,
		At:         time.Now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).Str(log.FieldEvent, "bus.publish_failed").Msg("fault event not delivered")
	}
}
