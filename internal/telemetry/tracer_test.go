// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var testIdentity = Identity{Service: "mtxstreamer", Version: "test", RelayPath: "cam1"}

func TestSetup_Disabled(t *testing.T) {
	provider, err := Setup(context.Background(), config.TelemetryConfig{ExporterType: "grpc"}, testIdentity)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if provider.Enabled() {
		t.Error("Expected noop provider")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("Expected noop tracer span to be non-recording")
	}
	span.End()
}

func TestSetup_UnsupportedExporter(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, ExporterType: "zipkin", Endpoint: "collector:9411"}

	_, err := Setup(context.Background(), cfg, testIdentity)
	if !errors.Is(err, ErrUnsupportedExporter) {
		t.Fatalf("Expected ErrUnsupportedExporter, got %v", err)
	}
}

func TestSetup_HTTPExporter(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, ExporterType: "http", Endpoint: "127.0.0.1:1", SamplingRate: 1}

	provider, err := Setup(context.Background(), cfg, testIdentity)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = provider.Shutdown(ctx)
		otel.SetTracerProvider(noop.NewTracerProvider())
	})
	if !provider.Enabled() {
		t.Fatal("Expected exporting provider")
	}

	_, span := Tracer("switcher").Start(context.Background(), "switcher.transition")
	defer span.End()
	if !span.IsRecording() {
		t.Error("Expected a recording span at sampling rate 1")
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: sdktrace.AlwaysSample().Description()},
		{rate: 2, want: sdktrace.AlwaysSample().Description()},
		{rate: 0, want: sdktrace.NeverSample().Description()},
		{rate: -1, want: sdktrace.NeverSample().Description()},
		{rate: 0.25, want: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestProvider_ShutdownNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var nilProvider *Provider
	if err := nilProvider.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on nil shutdown, got: %v", err)
	}
	if err := (&Provider{}).Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on noop shutdown, got: %v", err)
	}
}

func TestTracer(t *testing.T) {
	if _, err := Setup(context.Background(), config.TelemetryConfig{}, testIdentity); err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	ctx, span := Tracer("test-tracer").Start(context.Background(), "test-span")
	span.End()
	if trace.SpanFromContext(ctx) == nil {
		t.Error("Expected span in context")
	}
}
