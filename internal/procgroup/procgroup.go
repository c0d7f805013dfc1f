// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns pipeline processes in their own process group
// and tears the whole group down.
package procgroup

import (
	"errors"
	"syscall"
)

// ErrKillFailed means the process did not exit even after SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	}
	return sig.String()
}

func killOutcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, syscall.ESRCH), errors.Is(err, errProcessDone):
		return "esrch"
	}
	return "error"
}
