// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proc_terminate_total",
		Help:      "Signals sent to pipeline process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proc_wait_total",
		Help:      "Pipeline process reaps by outcome",
	}, []string{"outcome"})

	pipelineStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_start_total",
		Help:      "Pipeline start attempts by engine, state and result",
	}, []string{"engine", "state", "result"})

	pipelineStartDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_start_duration_seconds",
		Help:      "Time from spawn until the pipeline reports PLAYING",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	}, []string{"engine"})

	pipelineExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_exit_total",
		Help:      "Pipeline terminations by engine and reason",
	}, []string{"engine", "reason"})

	pipelineStopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_stop_total",
		Help:      "Pipeline stops by engine and outcome (graceful, forced)",
	}, []string{"engine", "outcome"})
)

// IncProcTerminate records a signal sent to a process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a terminated process was reaped.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}

// RecordPipelineStart records a start attempt and, on success, its latency.
func RecordPipelineStart(engine, state string, ok bool, took time.Duration) {
	if ok {
		pipelineStartDuration.WithLabelValues(engine).Observe(took.Seconds())
	}
	pipelineStartTotal.WithLabelValues(engine, state, result(ok)).Inc()
}

// IncPipelineExit records why a running pipeline ended.
func IncPipelineExit(engine, reason string) {
	pipelineExitTotal.WithLabelValues(engine, orUnknown(reason)).Inc()
}

// IncPipelineStop records a requested stop.
func IncPipelineStop(engine string, forced bool) {
	outcome := "graceful"
	if forced {
		outcome = "forced"
	}
	pipelineStopTotal.WithLabelValues(engine, outcome).Inc()
}
