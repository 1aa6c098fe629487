package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutsTotal,
		webhookEventsTotal,
		paymentsRevenueTotal,
	)
}

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout sessions by mode and status (created/completed/failed/expired).",
		},
		[]string{"mode", "status"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Billing webhook events by type and result (handled/ignored/rejected/failed).",
		},
		[]string{"type", "result"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed checkouts in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncCheckout(mode, status string) {
	checkoutsTotal.WithLabelValues(norm(mode), norm(status)).Inc()
}

// AddCheckoutsExpired counts pending sessions closed by the sweeper. The mode is not tracked
// at that point.
func AddCheckoutsExpired(n int) {
	checkoutsTotal.WithLabelValues("unknown", "expired").Add(float64(n))
}

func IncWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
