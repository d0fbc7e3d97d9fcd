package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the sweep's Prometheus collectors.
type Metrics struct {
	Runs         prometheus.Counter
	Connections  *prometheus.CounterVec
	StatesPurged prometheus.Counter
	Duration     prometheus.Histogram
}

// NewMetrics registers the sweep collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "integrations",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Completed refresh sweeps.",
		}),
		Connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrations",
			Subsystem: "sweep",
			Name:      "connections_total",
			Help:      "Connections examined by the refresh sweep, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		StatesPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "integrations",
			Subsystem: "sweep",
			Name:      "states_purged_total",
			Help:      "Expired OAuth states removed by the sweep.",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "integrations",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall time of a refresh sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}),
	}
}
