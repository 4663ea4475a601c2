package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(lockAcquisitionsTotal, rateLimitedTotal) }

var (
	lockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_acquisitions_total",
			Help: "Distributed lock attempts by lock family and result.",
		},
		[]string{"lock", "result"}, // result: 'acquired', 'busy', 'error'
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter, by scope.",
		},
		[]string{"scope"},
	)
)

func IncLock(lock, result string) {
	lockAcquisitionsTotal.WithLabelValues(norm(lock), norm(result)).Inc()
}

func IncRateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(norm(scope)).Inc()
}
