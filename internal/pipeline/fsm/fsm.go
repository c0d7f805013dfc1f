// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small table driven state machine.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned by Fire for an event with no edge from the
// current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge.
// Guard may reject the transition; Action runs before the state is committed.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Machine runs a transition table. Unknown transitions are errors and
// terminal states accept no events at all.
type Machine[S ~string, E ~string] struct {
	mu       sync.Mutex
	state    S
	index    map[string]Transition[S, E]
	terminal map[S]bool
	observer func(from, to S, event E)
}

// Option configures a Machine.
type Option[S ~string, E ~string] func(*Machine[S, E])

// WithTerminal marks states that end the machine.
func WithTerminal[S ~string, E ~string](states ...S) Option[S, E] {
	return func(m *Machine[S, E]) {
		for _, s := range states {
			m.terminal[s] = true
		}
	}
}

// WithObserver registers a callback invoked after every committed transition.
func WithObserver[S ~string, E ~string](fn func(from, to S, event E)) Option[S, E] {
	return func(m *Machine[S, E]) { m.observer = fn }
}

func New[S ~string, E ~string](initial S, transitions []Transition[S, E], opts ...Option[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
	}
	m := &Machine[S, E]{state: initial, index: idx, terminal: make(map[S]bool)}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MustNew is New for static tables.
func MustNew[S ~string, E ~string](initial S, transitions []Transition[S, E], opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, transitions, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done reports whether the machine reached a terminal state.
func (m *Machine[S, E]) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal[m.state]
}

// Can reports whether event has an edge from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key(m.state, event)]
	return ok && !m.terminal[m.state]
}

// Fire applies event. Guard and Action run outside the lock; if the state
// moved meanwhile the transition is rejected.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.index[key(from, event)]
	if !ok || m.terminal[from] {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	to := t.To
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = to
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(from, to, event)
	}
	return to, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
