// ================================
// internal/metrics/metrics.go - Self-monitoring for sourcekit
// ================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task execution metrics
	TaskExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcekit_task_executions_total",
			Help: "Total number of playbook task executions dispatched",
		},
		[]string{"source", "task_type", "status"},
	)

	TaskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcekit_task_execution_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "task_type"},
	)

	// HTTP serving metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcekit_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcekit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Upstream vendor API metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcekit_upstream_requests_total",
			Help: "Total number of HTTP requests to vendor APIs",
		},
		[]string{"source", "status_code"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcekit_upstream_request_duration_seconds",
			Help:    "Vendor API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Asset/dashboard metadata cache metrics
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcekit_cache_requests_total",
			Help: "Total number of asset cache requests",
		},
		[]string{"operation", "result"}, // get/set, hit/miss/error
	)

	// Partial failure visibility for fan-out executors
	SubQueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcekit_subquery_failures_total",
			Help: "Sub-query failures converted into text results during fan-out",
		},
		[]string{"source", "task_type"},
	)
)

// RecordTaskExecution tracks one dispatch through the registry.
func RecordTaskExecution(source, taskType, status string, seconds float64) {
	TaskExecutionsTotal.WithLabelValues(source, taskType, status).Inc()
	TaskExecutionDuration.WithLabelValues(source, taskType).Observe(seconds)
}

// RecordUpstreamRequest tracks one vendor API call.
func RecordUpstreamRequest(source, statusCode string, seconds float64) {
	UpstreamRequestsTotal.WithLabelValues(source, statusCode).Inc()
	UpstreamRequestDuration.WithLabelValues(source).Observe(seconds)
}
