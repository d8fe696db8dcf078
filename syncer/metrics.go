package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

const (
	resultDispatched = "dispatched"
	resultFailed     = "failed"
	resultDryRun     = "dry_run"
)

// Metrics holds all the Prometheus metrics for a sync run.
type Metrics struct {
	runDuration    prometheus.Gauge
	poolsTotal     prometheus.Counter
	mutationsTotal *prometheus.CounterVec
	universeSize   prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the orchestrator.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_sync_run_duration_seconds",
			Help: "Wall time of the last sync run.",
		}),
		poolsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_sync_pools_total",
			Help: "Total number of pools processed.",
		}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_sync_mutations_total",
			Help: "Total number of registry mutations, labeled by kind and result.",
		}, []string{"kind", "result"}),
		universeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_sync_token_universe_size",
			Help: "Number of distinct tokens seen in the last run.",
		}),
	}
	reg.MustRegister(m.runDuration, m.poolsTotal, m.mutationsTotal, m.universeSize)
	return m
}
