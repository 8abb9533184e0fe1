package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	evaluations  *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	edge         *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	tradesStored *prometheus.CounterVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder's collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		evaluations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "warrant",
				Name:      "evaluation_duration_seconds",
				Help:      "Per-instrument evaluation time by outcome",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warrant",
				Name:      "errors_total",
				Help:      "Total number of errors by kind",
			},
			[]string{"kind"},
		),
		edge: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "warrant",
				Name:      "edge_ratio",
				Help:      "Latest relative mispricing per symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "warrant",
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		tradesStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warrant",
				Name:      "trades_stored_total",
				Help:      "Trades written to a backend",
			},
			[]string{"backend"},
		),
	}
}

// RecordEvaluation observes one per-instrument evaluation.
func (r *Recorder) RecordEvaluation(status string, seconds float64) {
	r.evaluations.WithLabelValues(status).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordEdge sets the latest edge for a symbol.
func (r *Recorder) RecordEdge(symbol string, edge float64) {
	r.edge.WithLabelValues(symbol).Set(edge)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordTradeStored counts a trade written to backend. The symbol is not a label
// to keep cardinality bounded.
func (r *Recorder) RecordTradeStored(backend, _ string) {
	r.tradesStored.WithLabelValues(backend).Inc()
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordEvaluation(string, float64) {}
func (Noop) RecordError(string)               {}
func (Noop) RecordEdge(string, float64)       {}
func (Noop) RecordLatency(string, float64)    {}
func (Noop) RecordTradeStored(string, string) {}
