// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package status keeps the latest view of the streamer and publishes it to
// the status endpoint, the status file and the control plane.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// FaultReport is the last fault the supervisor handled.
type FaultReport struct {
	State      model.StreamState `json:"state"`
	Generation uint64            `json:"generation"`
	Class      model.FaultClass  `json:"class"`
	Detail     string            `json:"detail,omitempty"`
	Action     string            `json:"action"`
	Attempt    int               `json:"attempt,omitempty"`
	At         time.Time         `json:"at"`
}

// ControlReport describes the control-plane session.
type ControlReport struct {
	Connected bool   `json:"connected"`
	Sessions  uint64 `json:"sessions"`
}

// Report is the status payload.
type Report struct {
	State       model.StreamState `json:"state"`
	Since       time.Time         `json:"since,omitempty"`
	Generation  uint64            `json:"generation"`
	Running     bool              `json:"running"`
	Publishes   bool              `json:"publishes"`
	PublishURL  string            `json:"publish_url,omitempty"`
	Transitions uint64            `json:"transitions"`
	LastError   string            `json:"last_error,omitempty"`
	LastFault   *FaultReport      `json:"last_fault,omitempty"`
	Control     ControlReport     `json:"control"`
	Version     string            `json:"version,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Options configures a Tracker.
type Options struct {
	Bus      bus.Bus
	Snapshot func() switcher.Snapshot
	Control  func() ControlReport
	// File, when set, is rewritten atomically after every state or fault event.
	File    string
	Version string
}

// Tracker assembles Reports from the switcher, the control client and the
// fault events seen on the bus.
type Tracker struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.RWMutex
	fault *FaultReport
}

func New(opts Options) *Tracker {
	return &Tracker{opts: opts, logger: log.WithComponent("status")}
}

// Report returns the current status.
func (t *Tracker) Report() Report {
	r := Report{Version: t.opts.Version, UpdatedAt: time.Now().UTC()}
	if t.opts.Snapshot != nil {
		s := t.opts.Snapshot()
		r.State = s.State
		r.Since = s.Since
		r.Generation = s.Generation
		r.Running = s.Running
		r.Publishes = s.Publishes
		r.PublishURL = s.PublishURL
		r.Transitions = s.Transitions
		r.LastError = s.LastError
	}
	if t.opts.Control != nil {
		r.Control = t.opts.Control()
	}
	t.mu.RLock()
	if t.fault != nil {
		f := *t.fault
		r.LastFault = &f
	}
	t.mu.RUnlock()
	return r
}

// Run follows the bus until ctx is done. Without a bus it only writes the
// initial status file.
func (t *Tracker) Run(ctx context.Context) error {
	t.persist()
	if t.opts.Bus == nil {
		<-ctx.Done()
		return nil
	}

	states, err := t.opts.Bus.Subscribe(ctx, bus.TopicState)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.TopicState, err)
	}
	defer func() { _ = states.Close() }()
	faults, err := t.opts.Bus.Subscribe(ctx, bus.TopicFault)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.TopicFault, err)
	}
	defer func() { _ = faults.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-states.C():
			if !ok {
				return nil
			}
			if ev, ok := msg.(model.StatusEvent); ok {
				t.logger.Debug().
					Str(log.FieldEvent, "status.state").
					Str(log.FieldNewState, ev.State.String()).
					Uint64(log.FieldGeneration, ev.Generation).
					Msg("state recorded")
			}
			t.persist()
		case msg, ok := <-faults.C():
			if !ok {
				return nil
			}
			if ev, ok := msg.(model.FaultEvent); ok {
				t.recordFault(ev)
			}
			t.persist()
		}
	}
}

func (t *Tracker) recordFault(ev model.FaultEvent) {
	t.mu.Lock()
	t.fault = &FaultReport{
		State:      ev.State,
		Generation: ev.Generation,
		Class:      ev.Class,
		Detail:     ev.Detail,
		Action:     ev.Action,
		Attempt:    ev.Attempt,
		At:         ev.At,
	}
	t.mu.Unlock()
}

func (t *Tracker) persist() {
	if t.opts.File == "" {
		return
	}
	if err := t.WriteFile(t.opts.File); err != nil {
		t.logger.Warn().Err(err).Str(log.FieldPath, t.opts.File).Msg("status file not written")
	}
}

// WriteFile writes the current report to path atomically.
func (t *Tracker) WriteFile(path string) error {
	data, err := json.MarshalIndent(t.Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending status file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// ServeHTTP serves the report as JSON.
func (t *Tracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(t.Report()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "status")
		logger.Error().Err(err).Str(log.FieldEvent, "status.encode_error").Msg("failed to encode status")
	}
}
