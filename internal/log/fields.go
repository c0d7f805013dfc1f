// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldHandle        = "handle"
	FieldGeneration    = "generation"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldEngine    = "engine"
	FieldPID       = "pid"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldTarget   = "target"
	FieldRequest  = "request"
	FieldOrigin   = "origin"

	// Fault fields
	FieldFaultClass = "fault_class"
	FieldAttempt    = "attempt"
	FieldDelay      = "delay"

	// Path / URL fields
	FieldPublishURL = "publish_url"
	FieldSourceURL  = "source_url"
	FieldPath       = "path"

	// Network fields
	FieldStreamPort = "stream_port"
	FieldControlURL = "control_url"
)
