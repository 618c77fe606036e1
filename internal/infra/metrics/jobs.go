package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, gatewayCallsTotal) }

var jobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_runs_total",
		Help: "Scheduled job runs, labeled by job and result.",
	},
	[]string{"job", "result"}, // result: 'ok', 'error', 'skipped'
)

var gatewayCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Calls made to the payment gateway API.",
	},
	[]string{"op", "result"},
)

func IncJobRun(job, result string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}

func IncGatewayCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayCallsTotal.WithLabelValues(norm(op), result).Inc()
}
