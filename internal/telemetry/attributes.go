// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the streamer.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// State machine attributes
	StreamStateKey      = "stream.state"
	StreamTargetKey     = "stream.target"
	StreamGenerationKey = "stream.generation"
	StreamRequestKey    = "stream.request"
	StreamOriginKey     = "stream.origin"

	// Pipeline attributes
	PipelineEngineKey    = "pipeline.engine"
	PipelineHandleKey    = "pipeline.handle"
	PipelinePublishesKey = "pipeline.publishes"

	// Fault attributes
	FaultClassKey   = "fault.class"
	FaultActionKey  = "fault.action"
	FaultAttemptKey = "fault.attempt"

	// Control channel attributes
	ControlEventKey = "control.event"

	// Resource attributes
	RelayPathKey = "relay.path"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TransitionAttributes describes one state machine request.
// Empty values are omitted.
func TransitionAttributes(request, origin, from, target string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	for _, kv := range []struct{ key, val string }{
		{StreamRequestKey, request},
		{StreamOriginKey, origin},
		{StreamStateKey, from},
		{StreamTargetKey, target},
	} {
		if kv.val != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.val))
		}
	}
	return attrs
}

// PipelineAttributes describes a started pipeline handle.
func PipelineAttributes(engine, handle string, generation uint64, publishes bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PipelineEngineKey, engine),
		attribute.String(PipelineHandleKey, handle),
		attribute.Int64(StreamGenerationKey, int64(generation)),
		attribute.Bool(PipelinePublishesKey, publishes),
	}
}

// FaultAttributes describes a handled fault.
func FaultAttributes(class, action string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FaultClassKey, class),
		attribute.String(FaultActionKey, action),
		attribute.Int(FaultAttemptKey, attempt),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
