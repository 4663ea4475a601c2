package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentInitiationsTotal,
		lateChargesTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Gateway transactions settled, by final status (success/failed/expired).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// result: created|reused|rejected|error
	paymentInitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Initiate-payment calls by plan and result.",
		},
		[]string{"plan", "result"},
	)

	lateChargesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_late_charges_total",
			Help: "Successful charges reported for transactions already closed as failed or expired.",
		},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPayments(status string, n int) {
	if n <= 0 {
		return
	}
	paymentsTotal.WithLabelValues(norm(status)).Add(float64(n))
}

func IncLateCharge() {
	lateChargesTotal.Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncInitiation(plan, result string) {
	paymentInitiationsTotal.WithLabelValues(norm(plan), norm(result)).Inc()
}
