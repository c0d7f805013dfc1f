// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
)

// FuncChecker adapts a probe function. A returned error is unhealthy.
type FuncChecker struct {
	name  string
	probe func(ctx context.Context) error
}

func NewChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if c.probe == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.probe(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

type informational struct{ Checker }

// Informational reports failures of c as degraded so they never fail readiness.
func Informational(c Checker) Checker { return informational{c} }

func (i informational) Check(ctx context.Context) CheckResult {
	res := i.Checker.Check(ctx)
	if res.Status == StatusUnhealthy {
		res.Status = StatusDegraded
	}
	return res
}

// NewEngineChecker probes the media engine.
func NewEngineChecker(engine exec.Engine) Checker {
	return &engineChecker{engine: engine}
}

type engineChecker struct{ engine exec.Engine }

func (c *engineChecker) Name() string { return "engine" }

func (c *engineChecker) Check(ctx context.Context) CheckResult {
	if err := c.engine.Check(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: c.engine.Name(), Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: c.engine.Name()}
}

// PipelineChecker is unhealthy until the switcher runs a pipeline.
type PipelineChecker struct {
	snapshot func() switcher.Snapshot
}

func NewPipelineChecker(snapshot func() switcher.Snapshot) *PipelineChecker {
	return &PipelineChecker{snapshot: snapshot}
}

func (c *PipelineChecker) Name() string { return "pipeline" }

func (c *PipelineChecker) Check(context.Context) CheckResult {
	s := c.snapshot()
	if !s.Running || s.State.IsZero() {
		res := CheckResult{Status: StatusUnhealthy, Message: "no pipeline running"}
		if s.LastError != "" {
			res.Error = s.LastError
		}
		return res
	}
	msg := fmt.Sprintf("%s (generation %d)", s.State, s.Generation)
	if s.LastError != "" {
		return CheckResult{Status: StatusDegraded, Message: msg, Error: s.LastError}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// ControlChecker is degraded while the control channel is down. Losing the
// control plane never affects readiness.
type ControlChecker struct {
	connected func() bool
}

func NewControlChecker(connected func() bool) *ControlChecker {
	return &ControlChecker{connected: connected}
}

func (c *ControlChecker) Name() string { return "control" }

func (c *ControlChecker) Check(context.Context) CheckResult {
	if c.connected() {
		return CheckResult{Status: StatusHealthy, Message: "connected"}
	}
	return CheckResult{Status: StatusDegraded, Message: "reconnecting"}
}
