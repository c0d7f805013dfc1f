// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// StateKind names one of the visual states the streamer can expose.
type StateKind string

const (
	StateConnecting     StateKind = "connecting"
	StateCameraAbsent   StateKind = "camera_absent"
	StateCameraDisabled StateKind = "camera_disabled"
	StateLive           StateKind = "live"
)

// Valid reports whether k is one of the known state kinds.
func (k StateKind) Valid() bool {
	switch k {
	case StateConnecting, StateCameraAbsent, StateCameraDisabled, StateLive:
		return true
	}
	return false
}

// Static reports whether the state is backed by a local placeholder feed.
func (k StateKind) Static() bool {
	return k != StateLive && k.Valid()
}

// ParseStateKind accepts the canonical names plus a few spellings used by
// control planes ("CameraAbsent", "camera-absent", "LIVE").
func ParseStateKind(s string) (StateKind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "connecting":
		return StateConnecting, nil
	case "camera_absent", "cameraabsent", "no_such_camera":
		return StateCameraAbsent, nil
	case "camera_disabled", "cameradisabled":
		return StateCameraDisabled, nil
	case "live":
		return StateLive, nil
	}
	return "", fmt.Errorf("unknown stream state %q", s)
}

// StreamState is the tagged state value held by the switcher.
// Static kinds carry the local feed port, Live carries the camera source.
type StreamState struct {
	Kind   StateKind `json:"kind"`
	Port   int       `json:"port,omitempty"`
	Source string    `json:"source,omitempty"`
}

// Equal compares kind and parameters.
func (s StreamState) Equal(o StreamState) bool {
	return s == o
}

// IsZero reports whether no state has been set.
func (s StreamState) IsZero() bool {
	return s.Kind == ""
}

func (s StreamState) String() string {
	switch {
	case s.Kind == StateLive:
		return string(s.Kind)
	case s.Port > 0:
		return fmt.Sprintf("%s:%d", s.Kind, s.Port)
	default:
		return string(s.Kind)
	}
}

// LifecycleKind classifies events emitted by a running pipeline handle.
type LifecycleKind string

const (
	EventEndOfStream  LifecycleKind = "end_of_stream"
	EventFatalError   LifecycleKind = "fatal_error"
	EventHeartbeat    LifecycleKind = "heartbeat"
	EventStateChanged LifecycleKind = "state_changed"
)

// RequestKind selects how a TransitionRequest resolves its target.
type RequestKind string

const (
	RequestToState      RequestKind = "to_state"
	RequestRetrySame    RequestKind = "retry_same"
	RequestFallbackSafe RequestKind = "fallback_safe"
)

// FaultClass is a compact, typed failure signal.
// Keep these stable: metrics and fallback tables depend on them.
type FaultClass string

const (
	FaultNetwork     FaultClass = "network"
	FaultCodec       FaultClass = "codec"
	FaultAuth        FaultClass = "auth"
	FaultNotFound    FaultClass = "not_found"
	FaultResource    FaultClass = "resource"
	FaultStall       FaultClass = "stall"
	FaultEndOfStream FaultClass = "end_of_stream"
	FaultBuild       FaultClass = "build"
	FaultUnknown     FaultClass = "unknown"
)

// AllFaultClasses lists every fault class in a stable order.
func AllFaultClasses() []FaultClass {
	return []FaultClass{
		FaultNetwork, FaultCodec, FaultAuth, FaultNotFound, FaultResource,
		FaultStall, FaultEndOfStream, FaultBuild, FaultUnknown,
	}
}

// Valid reports whether c is a known fault class.
func (c FaultClass) Valid() bool {
	for _, k := range AllFaultClasses() {
		if k == c {
			return true
		}
	}
	return false
}

// Origin values identify who asked for a transition.
const (
	OriginStartup    = "startup"
	OriginControl    = "control"
	OriginSupervisor = "supervisor"
)
