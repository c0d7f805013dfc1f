// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watchdog detects pipelines that stopped reporting heartbeats.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
)

// ErrStalled is returned by Run when no heartbeat arrived in time.
// It wraps context.DeadlineExceeded.
var ErrStalled = fmt.Errorf("pipeline stalled: %w", context.DeadlineExceeded)

type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStalled:
		return "stalled"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Watchdog tracks heartbeats of one pipeline handle.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration
	tick         time.Duration

	lastBeat time.Time
	beats    uint64
	state    State

	clock clock
	// checked runs after every tick's check.
	checked func()
}

// New creates a watchdog. The first heartbeat must arrive within
// startTimeout, later ones within stallTimeout of each other.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	tick := time.Second
	if q := stallTimeout / 4; q > 0 && q < tick {
		tick = q
	}
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		tick:         tick,
		clock:        realClock{},
	}
}

// Run checks for stalls until ctx is done (returns nil) or a stall is
// detected (returns ErrStalled).
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastBeat = w.clock.Now()
	w.state = StateStarting
	w.mu.Unlock()

	t := w.clock.NewTicker(w.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.state != StateStalled {
				w.state = StateStopped
			}
			w.mu.Unlock()
			return nil
		case <-t.C():
			err := w.check()
			if w.checked != nil {
				w.checked()
			}
			if err != nil {
				return err
			}
		}
	}
}

// Beat records a heartbeat.
func (w *Watchdog) Beat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastBeat = w.clock.Now()
	w.beats++
	if w.state == StateStarting {
		w.state = StateRunning
		log.L().Debug().Msg("watchdog: first heartbeat received")
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastBeat)
	switch w.state {
	case StateStarting:
		if elapsed > w.startTimeout {
			w.state = StateStalled
			return fmt.Errorf("%w: no heartbeat within %s", ErrStalled, w.startTimeout)
		}
	case StateRunning:
		if elapsed > w.stallTimeout {
			w.state = StateStalled
			return fmt.Errorf("%w: last heartbeat %s ago", ErrStalled, elapsed.Round(time.Millisecond))
		}
	}
	return nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Beats returns how many heartbeats were recorded.
func (w *Watchdog) Beats() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.beats
}

// IsStall reports whether err came from a watchdog.
func IsStall(err error) bool { return errors.Is(err, ErrStalled) }
