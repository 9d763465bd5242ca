// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_queries_total",
			Help: "Total number of queries answered, by persona and model label",
		},
		[]string{"persona", "model"},
	)

	QueriesBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_queries_blocked_total",
			Help: "Total number of queries refused by the safety filter",
		},
		[]string{"category"},
	)

	QueriesRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_queries_rate_limited_total",
			Help: "Total number of queries rejected by the rate limiter",
		},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_query_duration_seconds",
			Help:    "End-to-end duration of query handling in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"persona"},
	)

	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_attempts_total",
			Help: "Total number of provider calls, by payload shape and outcome",
		},
		[]string{"shape", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_lookups_total",
			Help: "Total number of answer cache lookups, by result",
		},
		[]string{"result"},
	)

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
)
