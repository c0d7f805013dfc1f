// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package launch runs pipelines as gst-launch-1.0 child processes.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"time"

	child_process_manager "github.com/AgustinSRG/go-child-process-manager"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/ManuGH/mtxstreamer/internal/procgroup"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EngineName is the value of engine.kind selecting this engine.
const EngineName = "launch"

// Options configures the launch engine.
type Options struct {
	Bin          string
	StartTimeout time.Duration
	StopTimeout  time.Duration
	// KillWait bounds the wait for reaping after SIGKILL.
	KillWait time.Duration
	RingSize int
	Env      []string
}

// Engine spawns one gst-launch process per pipeline.
type Engine struct {
	opts   Options
	logger zerolog.Logger
}

var _ exec.Engine = (*Engine)(nil)

// New creates a launch engine, filling unset options with defaults.
func New(opts Options) *Engine {
	if opts.Bin == "" {
		opts.Bin = "gst-launch-1.0"
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 10 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.KillWait <= 0 {
		opts.KillWait = 2 * time.Second
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 50
	}
	return &Engine{opts: opts, logger: log.WithComponent("launch")}
}

func (e *Engine) Name() string { return EngineName }

// Check verifies the launch binary exists and runs.
func (e *Engine) Check(ctx context.Context) error {
	path, err := osexec.LookPath(e.opts.Bin)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEngineUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := osexec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s --version: %v", model.ErrEngineUnavailable, path, err)
	}
	e.logger.Debug().
		Str(log.FieldEvent, "engine.check").
		Str("version", firstLine(string(out))).
		Msg("launch binary available")
	return nil
}

// Start spawns gst-launch for s and waits until the pipeline is PLAYING.
func (e *Engine) Start(ctx context.Context, s spec.Spec) (exec.Handle, error) {
	args := append([]string{"-m", "-e"}, s.Args()...)
	cmd := osexec.Command(e.opts.Bin, args...)
	cmd.Env = append(os.Environ(), e.opts.Env...)

	if err := child_process_manager.ConfigureCommand(cmd); err != nil {
		return nil, model.NewStartError(s.State, "configure command: "+err.Error())
	}
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, model.NewStartError(s.State, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, model.NewStartError(s.State, err.Error())
	}

	id := uuid.NewString()
	logger := e.logger.With().
		Str(log.FieldHandle, id).
		Str(log.FieldTarget, s.State.String()).
		Logger()

	started := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.RecordPipelineStart(EngineName, string(s.State.Kind), false, 0)
		if errors.Is(err, osexec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", model.ErrEngineUnavailable, err)
		}
		return nil, model.NewStartError(s.State, err.Error())
	}
	if err := child_process_manager.AddChildProcess(cmd.Process); err != nil {
		logger.Warn().Err(err).Msg("could not register child process")
	}

	h := newHandle(id, s, cmd, e.opts, logger)
	h.run(stdout, stderr)

	logger.Info().
		Str(log.FieldEvent, "pipeline.spawned").
		Int(log.FieldPID, cmd.Process.Pid).
		Str("launch", s.Launch()).
		Msg("pipeline process started")

	timer := time.NewTimer(e.opts.StartTimeout)
	defer timer.Stop()

	var startErr error
	select {
	case <-h.playing:
	case <-h.exited:
		select {
		case <-h.playing:
		default:
			startErr = h.startFailure()
		}
	case <-timer.C:
		startErr = model.NewStartError(s.State,
			fmt.Sprintf("not playing after %s: %s", e.opts.StartTimeout, h.ring.Tail(5)))
	case <-ctx.Done():
		startErr = model.NewStartError(s.State, ctx.Err().Error())
	}

	if startErr != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.StopTimeout+e.opts.KillWait)
		_ = h.Stop(stopCtx)
		cancel()
		metrics.RecordPipelineStart(EngineName, string(s.State.Kind), false, 0)
		logger.Warn().
			Err(startErr).
			Str(log.FieldEvent, "pipeline.start_failed").
			Msg("pipeline did not reach PLAYING")
		return nil, startErr
	}

	metrics.RecordPipelineStart(EngineName, string(s.State.Kind), true, time.Since(started))
	logger.Info().
		Str(log.FieldEvent, "pipeline.playing").
		Dur("startup", time.Since(started)).
		Msg("pipeline playing")
	return h, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
