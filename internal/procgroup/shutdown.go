// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/metrics"
)

// Result describes how Terminate ended the process.
type Result struct {
	// WaitErr is the error the process was reaped with.
	WaitErr error
	// Forced is true when SIGKILL was needed.
	Forced bool
}

// Terminate stops the process group of cmd. It sends first (SIGINT for
// gst-launch, which turns it into an EOS), waits up to grace for waitCh, then
// sends SIGKILL and waits up to killWait more.
// waitCh must deliver the result of cmd.Wait exactly once.
// ErrKillFailed is returned only if the process survives SIGKILL.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, first syscall.Signal, grace, killWait time.Duration) (Result, error) {
	if cmd == nil || cmd.Process == nil {
		return Result{}, nil
	}

	metrics.IncProcTerminate(signalName(first), killOutcome(Kill(cmd, first)))

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()
	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return Result{WaitErr: err}, nil
	case <-graceTimer.C:
	}

	metrics.IncProcTerminate("SIGKILL", killOutcome(Kill(cmd, syscall.SIGKILL)))

	killTimer := time.NewTimer(killWait)
	defer killTimer.Stop()
	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return Result{WaitErr: err, Forced: true}, nil
	case <-killTimer.C:
		metrics.IncProcWait("kill_failed")
		return Result{Forced: true}, ErrKillFailed
	}
}
