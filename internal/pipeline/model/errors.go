// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrPipelineBuild means the engine rejected the pipeline description.
	ErrPipelineBuild = errors.New("pipeline build failed")
	// ErrPipelineStart means the pipeline could not reach a running state.
	ErrPipelineStart = errors.New("pipeline start failed")
	// ErrPipelineRuntime covers faults reported by a running pipeline.
	ErrPipelineRuntime = errors.New("pipeline runtime fault")
	// ErrControlChannel covers control-plane connectivity and protocol failures.
	ErrControlChannel = errors.New("control channel error")
	// ErrEngineUnavailable means the media engine cannot be used at all.
	ErrEngineUnavailable = errors.New("media engine unavailable")
)

// PipelineError carries the state and fault class of a pipeline failure.
// It unwraps to one of the sentinels above.
type PipelineError struct {
	Op     string
	State  StreamState
	Class  FaultClass
	Detail string
	Err    error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.State)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Class != "" {
		msg += " [" + string(e.Class) + "]"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewBuildError wraps ErrPipelineBuild.
func NewBuildError(state StreamState, detail string) *PipelineError {
	return &PipelineError{Op: "build", State: state, Class: FaultBuild, Detail: detail, Err: ErrPipelineBuild}
}

// NewStartError wraps ErrPipelineStart with a class derived from detail.
func NewStartError(state StreamState, detail string) *PipelineError {
	return &PipelineError{Op: "start", State: state, Class: ClassifyDetail(detail), Detail: detail, Err: ErrPipelineStart}
}

// ClassOf returns the fault class carried by err, or FaultUnknown.
func ClassOf(err error) FaultClass {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Class != "" {
		return pe.Class
	}
	if errors.Is(err, ErrPipelineBuild) {
		return FaultBuild
	}
	return FaultUnknown
}
