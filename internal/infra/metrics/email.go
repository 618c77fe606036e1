package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		emailsTotal,
		emailQueueProcessedTotal,
		emailQueueDepth,
	)
}

var (
	emailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_total",
			Help: "Emails handed to a delivery method, by outcome (sent, failed, queued).",
		},
		[]string{"method", "result"},
	)

	emailQueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_queue_processed_total",
			Help: "Queue rows processed by the background runner.",
		},
		[]string{"result"}, // sent, retry, failed
	)

	emailQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_queue_depth",
			Help: "Rows waiting in the email queue after the last run.",
		},
	)
)

func IncEmail(method, result string) {
	emailsTotal.WithLabelValues(norm(method), norm(result)).Inc()
}

func IncQueueProcessed(result string) {
	emailQueueProcessedTotal.WithLabelValues(norm(result)).Inc()
}

func SetQueueDepth(n int) {
	emailQueueDepth.Set(float64(n))
}
