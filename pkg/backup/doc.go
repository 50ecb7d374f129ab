// Package backup snapshots the resource store into zip archives and
// restores them on demand.
//
// Each archive holds one entry per resource file plus a metadata.json
// describing the snapshot (ID, timestamp, trigger, file sizes).
// Archives are named backup_<trigger>_<timestamp>.zip and built in a
// temp file that is renamed into place, so a crash never leaves a
// truncated archive that rotation or restore could trip over.
//
// Retention is count- and age-based: after every backup, archives past
// the configured keep count, or older than the maximum age, are
// removed. The newest archive always survives rotation.
//
// Restore requires explicit confirmation and takes a pre_restore
// snapshot of the live state first, making the operation reversible.
// Restored values are written through the store rather than copied over
// the files directly, so locks, atomic replacement and mirror sync all
// apply as usual.
//
// The scheduled loop skips ticks where nothing changed since the last
// backup, keeping the archive set free of identical snapshots.
package backup
