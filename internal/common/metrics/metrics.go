// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Funnel metrics.
var (
	// StepTransitions counts Continue/Back outcomes per step. Outcome is one
	// of advanced, invalid, gate_pending, denied, back.
	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_step_transitions_total",
			Help: "Step transitions attempted per flow, step and outcome",
		},
		[]string{"flow", "step", "outcome"},
	)

	FlowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_flows_completed_total",
			Help: "Sessions that reached the terminal step",
		},
		[]string{"flow"},
	)

	DraftOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_draft_operations_total",
			Help: "Draft store operations by kind and result",
		},
		[]string{"op", "result"},
	)

	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_otp_verifications_total",
			Help: "OTP submissions by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_permission_checks_total",
			Help: "Permission gate evaluations by folded status",
		},
		[]string{"status"},
	)

	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "funnel_http_request_duration_seconds",
			Help: "HTTP API latency by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
