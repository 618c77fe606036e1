package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolEmptyAcquires) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total, idle, in_use, max
	)

	dbPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_empty_acquires",
		Help: "Cumulative acquires that had to wait for a free connection.",
	})
)

// PoolStat is the subset of *pgxpool.Stat that is exported.
type PoolStat interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
	MaxConns() int32
	EmptyAcquireCount() int64
}

func SetDBPoolStats(st PoolStat) {
	dbPoolConns.WithLabelValues("total").Set(float64(st.TotalConns()))
	dbPoolConns.WithLabelValues("idle").Set(float64(st.IdleConns()))
	dbPoolConns.WithLabelValues("in_use").Set(float64(st.AcquiredConns()))
	dbPoolConns.WithLabelValues("max").Set(float64(st.MaxConns()))
	dbPoolEmptyAcquires.Set(float64(st.EmptyAcquireCount()))
}
