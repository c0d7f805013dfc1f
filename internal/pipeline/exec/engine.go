// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package exec defines the boundary between the state machine and the media
// engine that actually runs pipelines.
package exec

import (
	"context"
	"errors"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
)

// ErrStopForced is returned by Handle.Stop when the pipeline did not finish
// within the stop bound and had to be torn down forcibly.
var ErrStopForced = errors.New("pipeline stop forced")

// Engine starts pipelines from specs.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	// Check reports whether the engine can run pipelines at all.
	// Failures wrap model.ErrEngineUnavailable.
	Check(ctx context.Context) error
	// Start builds and starts s, returning once the pipeline is playing.
	// Errors wrap model.ErrPipelineBuild or model.ErrPipelineStart; on error
	// nothing is left running.
	Start(ctx context.Context, s spec.Spec) (Handle, error)
}

// Handle is one running pipeline.
type Handle interface {
	ID() string
	Spec() spec.Spec
	// Events delivers lifecycle events. At most one terminal event
	// (EndOfStream or FatalError) is sent, and none after Stop was called.
	// The channel is closed once the handle is finalized.
	Events() <-chan model.LifecycleEvent
	// Stop tears the pipeline down within a bounded time. It is idempotent:
	// later calls wait for the first one and return the same result.
	Stop(ctx context.Context) error
}
