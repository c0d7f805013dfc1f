// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/fsm"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/watchdog"
	"github.com/rs/zerolog"
)

type watchState string

const (
	stateWatching          watchState = "watching"
	stateRetryPending      watchState = "retry_pending"
	stateFallbackRequested watchState = "fallback_requested"
)

type watchEvent string

const (
	eventRetry    watchEvent = "retry"
	eventRetried  watchEvent = "retried"
	eventFallback watchEvent = "fallback"
)

var watchTransitions = []fsm.Transition[watchState, watchEvent]{
	{From: stateWatching, Event: eventRetry, To: stateRetryPending},
	{From: stateRetryPending, Event: eventRetried, To: stateWatching},
	{From: stateWatching, Event: eventFallback, To: stateFallbackRequested},
	{From: stateRetryPending, Event: eventFallback, To: stateFallbackRequested},
}

func newWatchMachine(logger zerolog.Logger) *fsm.Machine[watchState, watchEvent] {
	return fsm.MustNew(stateWatching, watchTransitions,
		fsm.WithTerminal[watchState, watchEvent](stateFallbackRequested),
		fsm.WithObserver(func(from, to watchState, ev watchEvent) {
			logger.Debug().
				Str(log.FieldOldState, string(from)).
				Str(log.FieldNewState, string(to)).
				Str(log.FieldEvent, string(ev)).
				Msg("watcher transition")
		}),
	)
}

// watch drains the events of one handle until it terminates or is replaced.
func (s *Supervisor) watch(h exec.Handle, gen uint64, state model.StreamState) {
	defer s.wg.Done()

	ctx := log.ContextWithHandleID(s.ctx, h.ID())
	started := time.Now()
	logger := log.WithContext(ctx, s.logger).With().
		Uint64(log.FieldGeneration, gen).
		Str(log.FieldTarget, state.String()).
		Logger()
	m := newWatchMachine(logger)

	var (
		wd      *watchdog.Watchdog
		stallCh chan error
	)
	if s.opts.StallTimeout > 0 {
		wd = watchdog.New(s.opts.FirstBeatTimeout, s.opts.StallTimeout)
		wdCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stallCh = make(chan error, 1)
		go func() { stallCh <- wd.Run(wdCtx) }()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-stallCh:
			if err == nil || !s.isCurrent(gen) {
				return
			}
			metrics.IncStall()
			s.onFatal(ctx, m, gen, state, model.FaultStall, err.Error(), time.Since(started), logger)
			return
		case ev, ok := <-h.Events():
			if !ok {
				logger.Debug().Str(log.FieldEvent, "watch.closed").Msg("handle finalized")
				return
			}
			switch ev.Kind {
			case model.EventHeartbeat:
				if wd != nil {
					wd.Beat()
				}
			case model.EventStateChanged:
				logger.Debug().Str(log.FieldEvent, "pipeline.state").Str("detail", ev.Detail).Msg("pipeline state changed")
			case model.EventEndOfStream:
				if s.isCurrent(gen) {
					s.onEndOfStream(ctx, m, gen, state, logger)
				}
				return
			case model.EventFatalError:
				if s.isCurrent(gen) {
					s.onFatal(ctx, m, gen, state, ev.Class, ev.Detail, time.Since(started), logger)
				}
				return
			}
		}
	}
}

// onEndOfStream restarts static feeds and leaves Live for the safe state.
func (s *Supervisor) onEndOfStream(ctx context.Context, m *fsm.Machine[watchState, watchEvent],
	gen uint64, state model.StreamState, logger zerolog.Logger) {
	if state.Kind.Static() {
		_, _ = m.Fire(ctx, eventRetry)
		s.report(state, gen, model.FaultEndOfStream, "", model.ActionRestart, 0)
		logger.Info().Str(log.FieldEvent, "fault.restart").Msg("placeholder feed ended, restarting")
		s.opts.Requester.Request(model.RetrySame(gen))
		_, _ = m.Fire(ctx, eventRetried)
		return
	}

	_, _ = m.Fire(ctx, eventFallback)
	target := s.opts.Policy.FallbackFor(state, model.FaultEndOfStream)
	s.report(state, gen, model.FaultEndOfStream, "", model.ActionFallback, 0)
	logger.Warn().
		Str(log.FieldEvent, "fault.fallback").
		Str(log.FieldNewState, target.String()).
		Msg("live stream ended")
	req := model.FallbackSafe(gen, model.FaultEndOfStream)
	req.Target = state
	s.opts.Requester.Request(req)
}

func (s *Supervisor) onFatal(ctx context.Context, m *fsm.Machine[watchState, watchEvent],
	gen uint64, state model.StreamState, class model.FaultClass, detail string, ranFor time.Duration, logger zerolog.Logger) {
	if class == "" {
		class = model.ClassifyDetail(detail)
	}
	s.mu.Lock()
	seq := s.failSeq
	s.mu.Unlock()

	logger = logger.With().Str(log.FieldFaultClass, string(class)).Dur("ran_for", ranFor).Logger()
	_, _ = m.Fire(ctx, eventRetry)
	sent := func() { _, _ = m.Fire(ctx, eventRetried) }
	if s.retryOrEscalate(state, gen, class, detail, ranFor, model.RetrySame(gen), seq, sent, logger) == model.ActionFallback {
		_, _ = m.Fire(ctx, eventFallback)
	}
}
