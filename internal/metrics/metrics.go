// Package metrics defines the Prometheus collectors for pulseguard.
//
// Metric naming follows Prometheus conventions:
//   - pulseguard_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeartbeatsTotal counts ingested heartbeats by service name.
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_heartbeats_total",
			Help: "Total heartbeats received by service.",
		},
		[]string{"service"},
	)

	// AlertsTotal counts alert transitions by service and action
	// (opened / resolved).
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_alerts_total",
			Help: "Total alert transitions by service and action.",
		},
		[]string{"service", "action"},
	)

	// ApprovalsTotal counts approval-gate outcomes
	// (approved / rejected / expired).
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_approvals_total",
			Help: "Total approval request outcomes.",
		},
		[]string{"outcome"},
	)

	// ExecutionsTotal counts playbook executions reaching a terminal
	// status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_executions_total",
			Help: "Total playbook executions by terminal status.",
		},
		[]string{"status"},
	)

	// ExecutionDurationSeconds is a histogram of playbook run duration.
	ExecutionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseguard_execution_duration_seconds",
			Help:    "Duration of playbook executions in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"playbook"},
	)

	// SweepRunsTotal counts expiry sweep passes.
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseguard_expiry_sweep_runs_total",
			Help: "Total approval expiry sweep passes.",
		},
	)
)
