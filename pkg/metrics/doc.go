/*
Package metrics exposes Ballast's Prometheus collectors.

All metrics are package-level variables registered in init() and shared by
every component; Handler() returns the promhttp handler the serve command
mounts at /metrics.

# Metric groups

Store:
  - ballast_store_saves_total / save_failures_total
  - ballast_store_load_failures_total (loads that fell back to defaults)
  - ballast_store_quarantines_total (corrupt files renamed aside)

Integrity:
  - ballast_integrity_fixes_total{kind} (created, reset, coerced, ...)

Sync engine:
  - ballast_sync_queue_depth
  - ballast_sync_pushes_total{status} (ok, dropped)
  - ballast_sync_retries_total
  - ballast_sync_push_duration_seconds

Admission:
  - ballast_admission_allowed_total
  - ballast_admission_denials_total{reason} (rate, cooldown, burst)

Backup:
  - ballast_backups_total{trigger} (manual, automatic, pre-restore)
  - ballast_backup_duration_seconds
  - ballast_restores_total

Timer is a small helper for histogram observations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncPushDuration)
*/
package metrics
