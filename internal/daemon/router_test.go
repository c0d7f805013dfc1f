// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/mtxstreamer/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(ready bool, rateLimit int) http.Handler {
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewChecker("pipeline", func(context.Context) error {
		if ready {
			return nil
		}
		return assert.AnError
	}))
	return NewRouter(RouterDeps{
		Health: hm,
		Status: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"state":"connecting:9000"}`))
		}),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		RateLimit: rateLimit,
		Service:   "mtxstreamer-test",
	})
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouterHealthz(t *testing.T) {
	rec := serve(testRouter(false, 0), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestRouterReadyz(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		status int
	}{
		{name: "ready", ready: true, status: http.StatusOK},
		{name: "not ready", ready: false, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(testRouter(tt.ready, 0), "/readyz?verbose=1")
			assert.Equal(t, tt.status, rec.Code)

			var body health.ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.ready, body.Ready)
			assert.Contains(t, body.Checks, "pipeline")
		})
	}
}

func TestRouterStatusAndMetrics(t *testing.T) {
	r := testRouter(true, 0)

	rec := serve(r, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"connecting:9000"}`, rec.Body.String())

	rec = serve(r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())

	rec = serve(r, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterRateLimitsStatus(t *testing.T) {
	r := testRouter(true, 1)

	first := serve(r, "/status")
	assert.Equal(t, http.StatusOK, first.Code)

	second := serve(r, "/status")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"rate_limit_exceeded"}`, second.Body.String())
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	// Health probes are not rate limited.
	for range 3 {
		assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
	}
}

func TestRouterRecoversPanics(t *testing.T) {
	r := NewRouter(RouterDeps{
		Status: http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	})
	rec := serve(r, "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
