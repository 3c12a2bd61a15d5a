// Package observability provides Prometheus metrics and HTTP middleware
// for the dispatcher, the executor host and the pod management client.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets covers short scripts up to the longest budgets a
// dispatcher is usually configured with, from 10ms to 120s.
var ExecutionBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// HTTPRequestsTotal counts executor host requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podexec_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration records executor host request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podexec_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method", "route"},
	)

	// JobsInProgress tracks executions currently holding a slot.
	JobsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podexec_jobs_in_progress",
			Help: "Jobs currently executing",
		},
	)

	// ExecutionsTotal counts executions by runner and outcome
	// (completed, timed_out, failed).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podexec_executions_total",
			Help: "Code executions",
		},
		[]string{"runner", "outcome"},
	)

	// ExecutionDuration records wall-clock execution time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podexec_execution_duration_seconds",
			Help:    "Code execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"runner"},
	)

	// DispatchTotal counts dispatcher round trips by operation
	// (execute, health) and kind ("ok" or an error kind).
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podexec_dispatch_total",
			Help: "Dispatcher round trips",
		},
		[]string{"operation", "kind"},
	)

	// DispatchDuration records dispatcher round-trip latency in seconds.
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podexec_dispatch_duration_seconds",
			Help:    "Dispatcher round-trip latency",
			Buckets: ExecutionBuckets,
		},
		[]string{"operation"},
	)

	// PodOperationsTotal counts management API calls by operation and HTTP status.
	PodOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podexec_pod_operations_total",
			Help: "Pod management API calls",
		},
		[]string{"operation", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podexec_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JobsInProgress,
		ExecutionsTotal,
		ExecutionDuration,
		DispatchTotal,
		DispatchDuration,
		PodOperationsTotal,
		RateLimitRejectedTotal,
	)
}
