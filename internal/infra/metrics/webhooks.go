package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookEventsTotal,
		webhookProcessingSeconds,
		ordersReconciledTotal,
		membershipTransitionsTotal,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries by event type and outcome.",
		},
		[]string{"type", "result"}, // processed, duplicate, invalid_signature, error
	)

	webhookProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_seconds",
			Help:    "Time spent handling a webhook delivery.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	ordersReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_reconciled_total",
			Help: "Orders written by webhook reconciliation, by resulting status.",
		},
		[]string{"status"},
	)

	membershipTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberships_transitions_total",
			Help: "Membership status changes, by target status.",
		},
		[]string{"status"},
	)
)

func IncWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

func ObserveWebhook(eventType string, d time.Duration) {
	webhookProcessingSeconds.WithLabelValues(norm(eventType)).Observe(d.Seconds())
}

func IncOrderReconciled(status string) {
	ordersReconciledTotal.WithLabelValues(norm(status)).Inc()
}

func IncMembershipTransition(status string) {
	membershipTransitionsTotal.WithLabelValues(norm(status)).Inc()
}
