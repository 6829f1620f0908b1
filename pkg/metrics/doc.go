/*
Package metrics defines and exports Prometheus metrics for shipway runs.

Shipway is a one-shot CLI, not a long-lived server, so there is no /metrics
endpoint. Instead a run records its observations against a private registry
and, when a metrics file is configured, writes them out in the Prometheus
text exposition format on exit. A node_exporter textfile collector picks the
file up on its next scrape.

# Metrics Catalog

shipway_deploys_total{outcome}:
  - Type: Counter
  - Description: Deployment runs by outcome (succeeded/rolled-back/failed)

shipway_phase_duration_seconds{phase}:
  - Type: Histogram
  - Description: Wall-clock duration of each deployment phase
  - Buckets: 1s to 10m, tuned for build and transfer times

shipway_transfer_retries_total:
  - Type: Counter
  - Description: Artifact transfer attempts beyond the first

shipway_probe_attempts_total:
  - Type: Counter
  - Description: Health probe attempts across verification

shipway_rollbacks_total:
  - Type: Counter
  - Description: Rollbacks performed, automatic or operator-requested

shipway_artifacts_pruned_total{store}:
  - Type: Counter
  - Description: Artifact versions removed by retention, per store

# Usage

	metrics.DeploysTotal.WithLabelValues("succeeded").Inc()

	start := time.Now()
	// ... build ...
	metrics.ObservePhase("build", start)

	// At the end of the run:
	if err := metrics.Export(cfg.MetricsFile); err != nil {
		logger.Warn().Err(err).Msg("metrics export failed")
	}

The registry is private to this package so the exported file contains only
shipway series. Export with an empty path is a no-op, which keeps the
metrics wiring unconditional in the orchestrator.
*/
package metrics
