// Package audit keeps a bounded, append-only ledger of administrative
// actions (restores, repairs, dropped sync tasks, rate-limit denials)
// in a local bolt database.
//
// Entries are keyed by a monotonic sequence number, so iteration order
// is insertion order and the newest entries are cheap to read back. The
// ledger is capped: once it exceeds its maximum size the oldest entries
// are trimmed in the same transaction that appends the new one.
//
// The ledger is intentionally separate from the JSON resource store:
// it records what happened to the data, so it must survive the data
// being reset or restored.
package audit
