// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	osexec "os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/metrics"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/ManuGH/mtxstreamer/internal/procgroup"
	"github.com/rs/zerolog"
)

type handle struct {
	id     string
	spec   spec.Spec
	cmd    *osexec.Cmd
	opts   Options
	logger zerolog.Logger

	ring   *LineRing
	events *exec.Emitter

	playing     chan struct{}
	playingOnce sync.Once
	exited      chan struct{}
	waitCh      chan error

	mu          sync.Mutex
	errDetail   string
	buildDetail string
	wantDebug   bool
	exitErr     error

	running  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func newHandle(id string, s spec.Spec, cmd *osexec.Cmd, opts Options, logger zerolog.Logger) *handle {
	return &handle{
		id:      id,
		spec:    s,
		cmd:     cmd,
		opts:    opts,
		logger:  logger,
		ring:    NewLineRing(opts.RingSize),
		events:  exec.NewEmitter(16),
		playing: make(chan struct{}),
		exited:  make(chan struct{}),
		waitCh:  make(chan error, 1),
	}
}

func (h *handle) ID() string { return h.id }

func (h *handle) Spec() spec.Spec { return h.spec }

func (h *handle) Events() <-chan model.LifecycleEvent { return h.events.C() }

// run starts the output readers and the reaper.
func (h *handle) run(stdout, stderr io.Reader) {
	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); h.scan(stdout) }()
	go func() { defer readers.Done(); h.scan(stderr) }()

	go func() {
		readers.Wait()
		err := h.cmd.Wait()
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		h.waitCh <- err
		h.finalize(err)
	}()
}

func (h *handle) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		h.onLine(sc.Text())
	}
}

func (h *handle) onLine(line string) {
	h.ring.Add(line)

	switch classifyLine(line) {
	case lineBuildError:
		h.mu.Lock()
		if h.buildDetail == "" {
			h.buildDetail = errorDetail(line)
		}
		h.mu.Unlock()
	case lineError:
		h.mu.Lock()
		if h.errDetail == "" {
			h.errDetail = errorDetail(line)
		}
		h.mu.Unlock()
		h.logger.Warn().Str(log.FieldEvent, "pipeline.error_line").Msg(line)
	case lineErrorDebug:
		h.mu.Lock()
		h.wantDebug = true
		h.mu.Unlock()
	case linePlaying:
		h.playingOnce.Do(func() {
			h.running.Store(true)
			metrics.AddHandles(1, publishCount(h.spec))
			close(h.playing)
			h.events.Emit(model.LifecycleEvent{Kind: model.EventStateChanged, Detail: "PLAYING"})
		})
	case lineEOS:
		h.logger.Debug().Str(log.FieldEvent, "pipeline.eos_line").Msg(line)
	case lineProgress:
		if h.running.Load() {
			h.events.Emit(model.LifecycleEvent{Kind: model.EventHeartbeat})
		}
	default:
		h.mu.Lock()
		if h.wantDebug && h.errDetail != "" {
			h.errDetail += " (" + line + ")"
			h.wantDebug = false
		}
		h.mu.Unlock()
	}
}

func (h *handle) finalize(waitErr error) {
	defer close(h.exited)
	defer h.events.Close()

	if h.running.Load() {
		metrics.AddHandles(-1, -publishCount(h.spec))
	}
	if h.stopping.Load() {
		metrics.IncPipelineExit(EngineName, "stopped")
		return
	}
	if !h.running.Load() {
		return
	}

	h.mu.Lock()
	detail := h.errDetail
	h.mu.Unlock()

	switch {
	case detail != "":
		metrics.IncPipelineExit(EngineName, "error")
		h.events.Emit(model.LifecycleEvent{
			Kind:   model.EventFatalError,
			Class:  model.ClassifyDetail(detail),
			Detail: detail,
		})
	case waitErr == nil:
		metrics.IncPipelineExit(EngineName, "eos")
		h.events.Emit(model.LifecycleEvent{Kind: model.EventEndOfStream})
	default:
		metrics.IncPipelineExit(EngineName, "exit")
		detail = fmt.Sprintf("process exited: %v: %s", waitErr, h.ring.Tail(5))
		h.events.Emit(model.LifecycleEvent{
			Kind:   model.EventFatalError,
			Class:  model.ClassifyDetail(detail),
			Detail: detail,
		})
	}
	h.logger.Info().
		Str(log.FieldEvent, "pipeline.exited").
		AnErr("wait_err", waitErr).
		Msg("pipeline process ended")
}

// startFailure builds the error for a process that died before PLAYING.
func (h *handle) startFailure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buildDetail != "" {
		return model.NewBuildError(h.spec.State, h.buildDetail)
	}
	if h.errDetail != "" {
		return model.NewStartError(h.spec.State, h.errDetail)
	}
	return model.NewStartError(h.spec.State,
		fmt.Sprintf("process exited: %v: %s", h.exitErr, h.ring.Tail(5)))
}

// Stop sends SIGINT (gst-launch -e turns it into an EOS), waits up to the
// stop timeout or the context deadline, then kills the process group.
func (h *handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.stopping.Store(true)
		h.events.Mute()

		grace := h.opts.StopTimeout
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < grace {
				grace = max(left, 0)
			}
		}

		res, err := procgroup.Terminate(h.cmd, h.waitCh, syscall.SIGINT, grace, h.opts.KillWait)
		metrics.IncPipelineStop(EngineName, res.Forced)

		switch {
		case err != nil:
			h.stopErr = errors.Join(exec.ErrStopForced, err)
		case res.Forced:
			h.stopErr = fmt.Errorf("%w: no exit within %s", exec.ErrStopForced, grace)
		}
		if err == nil {
			<-h.exited
		}

		ev := h.logger.Info()
		if h.stopErr != nil {
			ev = h.logger.Warn().Err(h.stopErr)
		}
		ev.Str(log.FieldEvent, "pipeline.stopped").Bool("forced", res.Forced).Msg("pipeline stopped")
	})
	return h.stopErr
}

func publishCount(s spec.Spec) int {
	if s.Publishes {
		return 1
	}
	return 0
}
