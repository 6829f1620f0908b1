/*
Package log provides structured logging for Shipway built on zerolog.

A single global logger is initialized once at CLI startup via Init and
consumed through child loggers scoped with contextual fields:

	logger := log.WithComponent("orchestrator")
	logger.Info().Str("phase", "built").Msg("artifact built")

Console output (human-readable, RFC3339 timestamps) is the default; JSON
output is selected with Config.JSONOutput for automation that scrapes the
deploy log. Log level is global and set from the --log-level flag.

Field conventions:

  - component: the package emitting the entry (orchestrator, executor, ...)
  - target:    deployment target name
  - run_id:    deployment run UUID
  - ref:       artifact ref (name:revision)
  - phase:     state machine phase
*/
package log
