// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fake provides a scriptable in-memory engine for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
)

// EngineName is the value of engine.kind selecting this engine.
const EngineName = "fake"

// Engine records every start and tracks how many handles run and publish
// at once.
type Engine struct {
	mu sync.Mutex

	// StartFunc, when set, decides the outcome of each Start.
	StartFunc func(spec.Spec) error
	// StartDelay and StopDelay simulate engine latency.
	StartDelay time.Duration
	StopDelay  time.Duration
	// Unavailable makes Check fail.
	Unavailable bool

	seq           int
	started       []spec.Spec
	handles       []*Handle
	running       int
	publishing    int
	maxRunning    int
	maxPublishing int
	startedCh     chan *Handle
}

var _ exec.Engine = (*Engine)(nil)

// New creates a fake engine.
func New() *Engine {
	return &Engine{startedCh: make(chan *Handle, 64)}
}

func (e *Engine) Name() string { return EngineName }

func (e *Engine) Check(context.Context) error {
	if e.Unavailable {
		return fmt.Errorf("%w: fake engine disabled", model.ErrEngineUnavailable)
	}
	return nil
}

// Start simulates a pipeline start.
func (e *Engine) Start(ctx context.Context, s spec.Spec) (exec.Handle, error) {
	if e.StartDelay > 0 {
		select {
		case <-time.After(e.StartDelay):
		case <-ctx.Done():
			return nil, model.NewStartError(s.State, ctx.Err().Error())
		}
	}

	e.mu.Lock()
	startFunc := e.StartFunc
	e.started = append(e.started, s)
	e.mu.Unlock()

	if startFunc != nil {
		if err := startFunc(s); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.seq++
	h := &Handle{
		id:     fmt.Sprintf("fake-%d", e.seq),
		spec:   s,
		engine: e,
		events: exec.NewEmitter(16),
	}
	e.handles = append(e.handles, h)
	e.running++
	e.maxRunning = max(e.maxRunning, e.running)
	if s.Publishes {
		e.publishing++
		e.maxPublishing = max(e.maxPublishing, e.publishing)
	}
	e.mu.Unlock()

	h.events.Emit(model.LifecycleEvent{Kind: model.EventStateChanged, Detail: "PLAYING"})
	select {
	case e.startedCh <- h:
	default:
	}
	return h, nil
}

// Started returns every spec passed to Start, including failed ones.
func (e *Engine) Started() []spec.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]spec.Spec(nil), e.started...)
}

// Handles returns every handle created so far.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.handles...)
}

// Last returns the most recent handle, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// StartedC delivers each handle as it is started.
func (e *Engine) StartedC() <-chan *Handle { return e.startedCh }

// Running returns the number of handles not yet stopped.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Publishing returns the number of live publishing handles.
func (e *Engine) Publishing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publishing
}

// MaxPublishing returns the high-water mark of concurrent publishers.
func (e *Engine) MaxPublishing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxPublishing
}

// MaxRunning returns the high-water mark of concurrent handles.
func (e *Engine) MaxRunning() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxRunning
}

func (e *Engine) release(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	if h.spec.Publishes {
		e.publishing--
	}
}

// Handle is a fake running pipeline. Tests drive it with EndOfStream,
// Fail and Heartbeat.
type Handle struct {
	id     string
	spec   spec.Spec
	engine *Engine
	events *exec.Emitter

	mu       sync.Mutex
	stopped  bool
	exited   bool
	stops    int
	stopOnce sync.Once
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Spec() spec.Spec { return h.spec }

func (h *Handle) Events() <-chan model.LifecycleEvent { return h.events.C() }

// Stop releases the handle. Idempotent.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()

	h.stopOnce.Do(func() {
		h.events.Mute()
		if d := h.engine.StopDelay; d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
		h.mu.Lock()
		h.stopped = true
		wasExited := h.exited
		h.exited = true
		h.mu.Unlock()
		if !wasExited {
			h.engine.release(h)
		}
		h.events.Close()
	})
	return nil
}

// Stopped reports whether Stop was called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// StopCalls returns how many times Stop was called.
func (h *Handle) StopCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// Heartbeat emits a heartbeat.
func (h *Handle) Heartbeat() {
	h.events.Emit(model.LifecycleEvent{Kind: model.EventHeartbeat})
}

// EndOfStream simulates the pipeline finishing on its own.
func (h *Handle) EndOfStream() {
	h.terminate(model.LifecycleEvent{Kind: model.EventEndOfStream})
}

// Fail simulates a fatal runtime error of the given class.
func (h *Handle) Fail(class model.FaultClass, detail string) {
	h.terminate(model.LifecycleEvent{Kind: model.EventFatalError, Class: class, Detail: detail})
}

func (h *Handle) terminate(ev model.LifecycleEvent) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.mu.Unlock()

	h.engine.release(h)
	h.events.Emit(ev)
	h.events.Close()
}
