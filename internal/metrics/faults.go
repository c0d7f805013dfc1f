// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	faultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faults_total",
		Help:      "Pipeline faults handled by the supervisor, by state, class and action",
	}, []string{"state", "class", "action"})

	stallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stalls_total",
		Help:      "Pipelines declared stalled after missing heartbeats",
	})
)

// IncFault records a handled fault.
func IncFault(state, class, action string) {
	faultsTotal.WithLabelValues(state, orUnknown(class), action).Inc()
}

// IncStall records a stall detection.
func IncStall() { stallsTotal.Inc() }
