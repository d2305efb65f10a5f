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

	SolvencyOverallRating = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solvency_overall_rating",
			Help:    "Distribution of computed overall solvency ratings",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// result is one of hit, miss, error
	SolvencyCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvency_cache_requests_total",
			Help: "Rating cache lookups by result",
		},
		[]string{"result"},
	)

	RatingNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvency_rating_notifications_total",
			Help: "Rating notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)
