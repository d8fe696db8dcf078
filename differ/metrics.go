package differ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

const (
	resultAlreadyRegistered = "already_registered"
	resultNeedsRegistration = "needs_registration"
	resultLookupFailed      = "lookup_failed"
	resultEncodeFailed      = "encode_failed"
	resultInvalidPair       = "invalid_pair"
)

// Metrics holds all the Prometheus metrics for the pair differ.
type Metrics struct {
	lookupDuration prometheus.Histogram
	pairsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the pair differ.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "differ_best_pools_lookup_duration_seconds",
			Help:    "Time taken to read the registered pools for a single pair.",
			Buckets: prometheus.DefBuckets,
		}),
		pairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "differ_pairs_total",
			Help: "Total number of pool pairs examined, labeled by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.lookupDuration, m.pairsTotal)
	return m
}
