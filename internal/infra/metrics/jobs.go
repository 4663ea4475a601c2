package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobRunsTotal,
		jobDuration,
		jobItemsTotal,
	)
}

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Scheduled job runs by job and result.",
		},
		[]string{"job", "result"}, // 'ok', 'error', 'skipped'
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Scheduled job run duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	jobItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_items_total",
			Help: "Items handled by scheduled jobs, labeled by outcome.",
		},
		[]string{"job", "outcome"}, // e.g. job="deactivation", outcome="deactivated"
	)
)

func ObserveJob(job, result string, took time.Duration) {
	jobRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
	jobDuration.WithLabelValues(norm(job)).Observe(took.Seconds())
}

func AddJobItems(job, outcome string, n int) {
	if n <= 0 {
		return
	}
	jobItemsTotal.WithLabelValues(norm(job), norm(outcome)).Add(float64(n))
}
