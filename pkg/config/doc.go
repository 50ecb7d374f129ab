/*
Package config loads and validates Ballast's configuration.

Configuration is layered: compiled defaults, then an optional YAML file,
then BALLAST_* environment variables. The environment always wins, and
credentials (the mirror API key) are accepted from the environment only;
they are never read from, or written to, the config file.

# Environment variables

	BALLAST_DATA_DIR          data directory (resource files, audit.db)
	BALLAST_BACKUP_DIR        archive directory (default <data_dir>/backups)
	BALLAST_METRICS_ADDR      listen address for /metrics
	BALLAST_LOG_LEVEL         debug | info | warn | error
	BALLAST_LOG_JSON          "true" for JSON log output
	BALLAST_MIRROR_ENDPOINT   remote mirror base URL (enables sync)
	BALLAST_MIRROR_API_KEY    bearer token for the mirror
	BALLAST_BACKUP_KEEP       archive retention count

Validate distinguishes fatal configuration from everything else: a missing
data directory or inconsistent admission thresholds abort startup, because
the process must not serve with a non-functional store. Mirror settings
are deliberately not fatal when absent: the core runs local-only and the
sync engine simply stays idle.
*/
package config
