// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	controlConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "control_connected",
		Help:      "Whether the control channel is connected (1) or not (0)",
	})

	controlConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_connects_total",
		Help:      "Control channel connection attempts by result",
	}, []string{"result"})

	controlEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_events_total",
		Help:      "Control channel events received by name and outcome (mapped, ignored, invalid)",
	}, []string{"event", "outcome"})

	controlEmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_emits_total",
		Help:      "Control channel events sent by name and result",
	}, []string{"event", "result"})
)

// SetControlConnected flips the connection gauge.
func SetControlConnected(up bool) {
	v := 0.0
	if up {
		v = 1
	}
	controlConnected.Set(v)
}

// IncControlConnect records a connection attempt.
func IncControlConnect(ok bool) {
	controlConnectsTotal.WithLabelValues(result(ok)).Inc()
}

// IncControlEvent records an inbound event.
func IncControlEvent(event, outcome string) {
	controlEventsTotal.WithLabelValues(orUnknown(event), outcome).Inc()
}

// IncControlEmit records an outbound event.
func IncControlEmit(event string, ok bool) {
	controlEmitsTotal.WithLabelValues(event, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
