// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package exec

import (
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
)

const defaultEmitterBuffer = 16

// Emitter is the event channel shared by engine handles.
// Sends never block. One slot is reserved for the terminal event so a
// backlog of heartbeats cannot push it out.
type Emitter struct {
	mu       sync.Mutex
	ch       chan model.LifecycleEvent
	closed   bool
	terminal bool
	muted    bool
	now      func() time.Time
}

// NewEmitter creates an Emitter with the given buffer (minimum 2).
func NewEmitter(buffer int) *Emitter {
	if buffer < 2 {
		buffer = defaultEmitterBuffer
	}
	return &Emitter{ch: make(chan model.LifecycleEvent, buffer), now: time.Now}
}

// C returns the receive side.
func (e *Emitter) C() <-chan model.LifecycleEvent { return e.ch }

// Emit sends ev and reports whether it was delivered.
// Non-terminal events are dropped when the buffer is nearly full; terminal
// events are delivered once and then further events are discarded.
func (e *Emitter) Emit(ev model.LifecycleEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.terminal || e.muted {
		return false
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	if isTerminal(ev.Kind) {
		e.terminal = true
		select {
		case e.ch <- ev:
			return true
		default:
			return false
		}
	}
	if len(e.ch) >= cap(e.ch)-1 {
		return false
	}
	e.ch <- ev
	return true
}

// Mute discards every later event. Handles call it when Stop begins.
func (e *Emitter) Mute() {
	e.mu.Lock()
	e.muted = true
	e.mu.Unlock()
}

// Close closes the channel once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

func isTerminal(k model.LifecycleKind) bool {
	return k == model.EventEndOfStream || k == model.EventFatalError
}
