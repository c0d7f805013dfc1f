// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !gst

package gst

import (
	"context"
	"fmt"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
)

// Available reports whether this binary was built with GStreamer bindings.
const Available = false

var errNotBuilt = fmt.Errorf("%w: built without the gst tag", model.ErrEngineUnavailable)

// Engine is a placeholder that reports the engine as unavailable.
type Engine struct{ opts Options }

var _ exec.Engine = (*Engine)(nil)

// New returns an engine whose Check and Start always fail.
func New(opts Options) *Engine { return &Engine{opts: opts.withDefaults()} }

func (e *Engine) Name() string { return EngineName }

func (e *Engine) Check(context.Context) error { return errNotBuilt }

func (e *Engine) Start(context.Context, spec.Spec) (exec.Handle, error) { return nil, errNotBuilt }
