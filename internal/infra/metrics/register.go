package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultOnce sync.Once
	collectors  []prometheus.Collector
)

// register is called from each file's init() to queue its collectors.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers every queued collector. With no argument the
// process-wide default registry is used, at most once; a caller-supplied
// registry (tests, a private /metrics mux) gets its own registration.
func MustRegister(regs ...prometheus.Registerer) {
	if len(regs) == 0 {
		defaultOnce.Do(func() { prometheus.MustRegister(collectors...) })
		return
	}
	for _, r := range regs {
		r.MustRegister(collectors...)
	}
}
