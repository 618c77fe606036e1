package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

// Cache names in use.
const (
	CacheWebhookEvent = "webhook_event"
)

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Redis fast-path lookups in front of Postgres, by cache and outcome.",
	},
	[]string{"cache", "result"}, // result: hit | miss
)

func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(norm(cache), result).Inc()
}
