// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KnownStates is the label set used for the one-hot state gauge.
var KnownStates = []string{"connecting", "camera_absent", "camera_disabled", "live"}

var (
	currentState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Active stream state (1 for the current state, 0 otherwise)",
	}, []string{"state"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "State transitions by request kind, origin and result",
	}, []string{"kind", "origin", "result"})

	transitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transition_duration_seconds",
		Help:      "Time to apply a transition request",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"target"})

	requestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_coalesced_total",
		Help:      "Transition requests superseded before they were applied",
	})

	requestsStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_stale_total",
		Help:      "Supervisor requests dropped because their handle generation was outdated",
	})

	handlesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "handles_running",
		Help:      "Pipeline handles currently running",
	})

	handlesPublishing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "handles_publishing",
		Help:      "Pipeline handles currently publishing to the relay path",
	})
)

// SetCurrentState marks state as the active one.
func SetCurrentState(state string) {
	for _, s := range KnownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

// RecordTransition records the outcome of one applied request.
func RecordTransition(kind, origin, target string, ok bool, took time.Duration) {
	transitionsTotal.WithLabelValues(kind, orUnknown(origin), result(ok)).Inc()
	transitionDuration.WithLabelValues(target).Observe(took.Seconds())
}

// IncRequestsCoalesced counts a request replaced by a newer one.
func IncRequestsCoalesced() { requestsCoalesced.Inc() }

// IncRequestsStale counts a request dropped for an outdated generation.
func IncRequestsStale() { requestsStale.Inc() }

// AddHandles adjusts the running and publishing handle gauges.
func AddHandles(running, publishing int) {
	handlesRunning.Add(float64(running))
	handlesPublishing.Add(float64(publishing))
}
