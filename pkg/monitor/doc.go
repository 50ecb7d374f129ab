// Package monitor watches the data directory for writes that bypass
// the store.
//
// The store announces every write it performs; the monitor correlates
// filesystem events against those announcements within a short grace
// window. Events on resource files with no matching announcement are
// reported as out-of-band edits: someone or something modified the
// JSON files directly, skipping per-resource locking and atomic
// replacement.
//
// Detection is best-effort and advisory: the monitor warns and emits an
// event, it does not revert anything. Damaged files are repaired by the
// next startup validation. The monitor also tracks the last activity
// time in the data directory, which the backup scheduler uses to skip
// idle intervals.
package monitor
