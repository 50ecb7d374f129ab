// Package syncer mirrors local resource state to the remote tabular
// backend. The local store is always the source of truth; the mirror is
// an eventually consistent replica used for dashboards and disaster
// recovery.
//
// Architecture:
//
//	┌─────────┐  save hook   ┌──────────────────┐
//	│  Store  │ ───────────► │  Coalescing queue │
//	└─────────┘              │  (one task/key)   │
//	                         └────────┬─────────┘
//	                                  │ FIFO
//	                                  ▼
//	                         ┌──────────────────┐
//	                         │  Worker goroutine │
//	                         │  pace + retry     │
//	                         └────────┬─────────┘
//	                                  │ Push / PushBatch
//	                                  ▼
//	                         ┌──────────────────┐
//	                         │ mirror.Connector  │
//	                         └──────────────────┘
//
// Each save enqueues a snapshot of the resource. Multiple saves of the
// same key before the worker reaches it coalesce into one task carrying
// the latest snapshot, so a burst of edits costs one remote write. The
// worker makes at most one remote call per MinInterval and retries
// throttled pushes with exponential backoff and jitter. A task that
// exhausts its retries is dropped and logged; a newer save of the same
// resource re-enqueues it with fresh data. Losing the mirror connection
// is different from throttling: the queue holds its tasks and drains
// once connectivity returns, so an offline mirror costs nothing but
// staleness.
//
// Large list resources are pushed in chunks when the connector
// implements mirror.BatchPusher, keeping individual request bodies
// bounded.
//
// At startup Bootstrap pulls mirror rows for resources with no local
// file, writing them through the store with sync suppressed. Local data
// is never overwritten by the mirror.
package syncer
