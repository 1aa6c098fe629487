package metrics

import (
	"formative-compliance/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsLapsedTotal,
		subscriptionsTotal,
	)
}

var (
	subscriptionsLapsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_lapsed_total",
			Help: "Subscriptions canceled by the sweeper after their cancel-at-period-end date.",
		},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)
)

func IncSubscriptionsLapsed(count int) {
	subscriptionsLapsedTotal.Add(float64(count))
}

// SetSubscriptionsTotal zeroes statuses missing from counts so a drained status does not linger.
func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for _, status := range model.AllSubscriptionStatuses {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
