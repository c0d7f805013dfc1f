// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LifecycleEvent is a notification from a running pipeline handle.
type LifecycleEvent struct {
	Kind   LifecycleKind `json:"kind"`
	Class  FaultClass    `json:"class,omitempty"`
	Detail string        `json:"detail,omitempty"`
	At     time.Time     `json:"at"`
}

func (e LifecycleEvent) String() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// TransitionRequest asks the switcher to move to a state.
// Generation is set by the supervisor to the handle generation the request
// refers to; zero means "whatever is current" for control requests and "no
// handle yet" for supervisor requests.
type TransitionRequest struct {
	Kind          RequestKind `json:"kind"`
	Target        StreamState `json:"target,omitempty"`
	Class         FaultClass  `json:"class,omitempty"`
	Generation    uint64      `json:"generation,omitempty"`
	Origin        string      `json:"origin,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ToState builds an explicit transition request.
func ToState(s StreamState, origin string) TransitionRequest {
	return TransitionRequest{Kind: RequestToState, Target: s, Origin: origin}
}

// RetrySame asks for a forced rebuild of the current state.
func RetrySame(gen uint64) TransitionRequest {
	return TransitionRequest{Kind: RequestRetrySame, Generation: gen, Origin: OriginSupervisor}
}

// FallbackSafe asks for the safe state chosen for class.
func FallbackSafe(gen uint64, class FaultClass) TransitionRequest {
	return TransitionRequest{Kind: RequestFallbackSafe, Class: class, Generation: gen, Origin: OriginSupervisor}
}

// Recovery reports whether r was issued by the supervisor for a specific
// handle generation. Recovery requests go stale once that generation is gone.
func (r TransitionRequest) Recovery() bool {
	return r.Generation != 0 || r.Origin == OriginSupervisor
}

func (r TransitionRequest) String() string {
	switch r.Kind {
	case RequestToState:
		return fmt.Sprintf("to_state(%s)", r.Target)
	case RequestFallbackSafe:
		return fmt.Sprintf("fallback_safe(%s)", r.Class)
	default:
		return string(r.Kind)
	}
}

// ControlEvent is a named message on the control channel.
type ControlEvent struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusEvent is published on the bus whenever the active state changes.
type StatusEvent struct {
	State      StreamState `json:"state"`
	Previous   StreamState `json:"previous"`
	Generation uint64      `json:"generation"`
	HandleID   string      `json:"handle_id"`
	Publishes  bool        `json:"publishes"`
	At         time.Time   `json:"at"`
}

// FaultEvent is published on the bus for every fault the supervisor handles.
type FaultEvent struct {
	State      StreamState `json:"state"`
	Generation uint64      `json:"generation"`
	Class      FaultClass  `json:"class"`
	Detail     string      `json:"detail"`
	Action     string      `json:"action"`
	Attempt    int         `json:"attempt,omitempty"`
	At         time.Time   `json:"at"`
}

// Fault actions recorded on FaultEvent.
const (
	ActionRetry    = "retry"
	ActionRestart  = "restart"
	ActionFallback = "fallback"
)
