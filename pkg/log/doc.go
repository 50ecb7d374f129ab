/*
Package log provides structured logging for Ballast using zerolog.

All components log through child loggers created with WithComponent, which
tags every entry with the component name (store, integrity, syncer,
admission, backup, audit, monitor). Recurring fields (resource, actor,
archive) are attached per event.

# Usage

Initialize once at process start, before any component is constructed:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	logger := log.WithComponent("store")
	logger.Info().Str("resource", "events").Msg("saved")

Console output (human-readable, RFC3339 timestamps) is the default;
JSONOutput switches to newline-delimited JSON for log shippers.

# Levels

Levels map directly onto zerolog levels. Debug is reserved for per-call
tracing (individual loads/saves, queue movement); Info for state changes
(fixes applied, archives written, sync pushes); Warn for absorbed errors
(quarantines, retries, denied admissions worth noticing); Error for
exhausted retries and failed persistence.
*/
package log
