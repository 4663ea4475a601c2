package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		statusTransitionsTotal,
		deactivationsTotal,
		auditFlagsTotal,
		notificationsTotal,
	)
}

var (
	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_transitions_total",
			Help: "Payment status transitions by source and target state.",
		},
		[]string{"from", "to"},
	)

	deactivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_deactivations_total",
			Help: "Enrollments expired for non-payment, by plan and installment position.",
		},
		[]string{"plan", "position"},
	)

	auditFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deactivation_audit_flags_total",
			Help: "Suspicious deactivations found by the weekly audit, by reason.",
		},
		[]string{"reason"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by template and delivery status.",
		},
		[]string{"template", "status"}, // status: 'sent', 'error'
	)
)

func IncTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	statusTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncDeactivation(plan, position string) {
	deactivationsTotal.WithLabelValues(norm(plan), norm(position)).Inc()
}

func IncAuditFlag(reason string) {
	auditFlagsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncNotification(template, status string) {
	notificationsTotal.WithLabelValues(norm(template), norm(status)).Inc()
}
