package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registry is private so a textfile export carries only shipway series,
// not the default Go runtime collectors.
var registry = prometheus.NewRegistry()

var (
	// Deployment metrics
	DeploysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipway_deploys_total",
			Help: "Total number of deployment runs by outcome",
		},
		[]string{"outcome"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shipway_phase_duration_seconds",
			Help:    "Duration of each deployment phase in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	TransferRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipway_transfer_retries_total",
			Help: "Total number of artifact transfer retries",
		},
	)

	// Verification metrics
	ProbeAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipway_probe_attempts_total",
			Help: "Total number of health probe attempts",
		},
	)

	Rollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipway_rollbacks_total",
			Help: "Total number of rollbacks performed",
		},
	)

	// Retention metrics
	ArtifactsPruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipway_artifacts_pruned_total",
			Help: "Total number of artifact versions pruned by store",
		},
		[]string{"store"},
	)
)

func init() {
	registry.MustRegister(DeploysTotal)
	registry.MustRegister(PhaseDuration)
	registry.MustRegister(TransferRetries)
	registry.MustRegister(ProbeAttempts)
	registry.MustRegister(Rollbacks)
	registry.MustRegister(ArtifactsPruned)
}

// ObservePhase records the duration of a completed phase.
func ObservePhase(phase string, start time.Time) {
	PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// Export writes all registered series to a textfile in the Prometheus
// exposition format, for pickup by node_exporter's textfile collector.
// A shipway run is one-shot, so there is no /metrics endpoint to scrape;
// the textfile is the scrape surface. No-op when path is empty.
func Export(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}
