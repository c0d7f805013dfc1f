// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mtxstreamer/internal/control"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/supervisor"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
	"github.com/ManuGH/mtxstreamer/internal/status"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime: the switcher and its supervisor, the
// control client, the status tracker and the HTTP manager.
type App struct {
	logger     zerolog.Logger
	switcher   *switcher.Switcher
	supervisor *supervisor.Supervisor
	control    *control.Client
	tracker    *status.Tracker
	handler    http.Handler
	manager    Manager
	initial    model.StreamState
}

// Run requests the initial state and blocks until ctx is cancelled or a
// component fails. Shutdown runs through the manager's hooks.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	a.switcher.Request(model.ToState(a.initial, model.OriginStartup))

	g.Go(func() error {
		// Stop errors surface through the pipeline shutdown hook.
		if err := a.switcher.Run(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("switcher stopped with error")
		}
		return nil
	})
	g.Go(func() error { return a.supervisor.Run(ctx) })
	g.Go(func() error { return a.tracker.Run(ctx) })
	g.Go(func() error {
		err := a.control.Run(ctx)
		if err != nil {
			a.logger.Error().Err(err).Str(log.FieldEvent, "control.failed").Msg("control client failed")
		}
		return err
	})

	// Main server lifecycle; Start runs the shutdown hooks on exit.
	g.Go(func() error { return a.manager.Start(ctx) })

	return g.Wait()
}

// Snapshot returns the switcher view.
func (a *App) Snapshot() switcher.Snapshot { return a.switcher.Snapshot() }

// Status returns the full status report.
func (a *App) Status() status.Report { return a.tracker.Report() }

// Handler returns the HTTP surface without binding a listener.
func (a *App) Handler() http.Handler { return a.handler }

// Addr is the bound HTTP address, empty until the listener is up.
func (a *App) Addr() string { return a.manager.Addr() }
