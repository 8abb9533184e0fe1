package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warrant",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of market data gateway and model service calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warrant",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Errors by upstream endpoint",
		},
		[]string{"endpoint"},
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warrant",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Market data cache lookups by result",
		},
		[]string{"result"},
	)
)

// Register adds the upstream collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamLatency, UpstreamErrors, CacheRequests)
	})
}
