/*
Package mirror defines the connector surface between Ballast and the
remote tabular backend that mirrors local resources.

The mirror is a secondary, eventually-consistent replica: the resource
store is the single source of truth for writes, and the connector is only
consulted (a) for full-resource replace pushes driven by the sync engine
and (b) as a best-effort read source at startup for resources whose local
file is missing. A connector failure is always transient from the core's
point of view and never fails the caller's original mutation.

Two error classes matter to callers:

  - ErrThrottled: the remote asked us to slow down, or a call timed out
    (treated identically); the sync engine retries with backoff.
  - ErrDisconnected: no connection; local writes keep succeeding and the
    queue backs up until connectivity returns.

HTTPConnector implements the contract over JSON REST with bounded
per-request timeouts, and additionally implements BatchPusher so large
list resources can be pushed as chunked row batches rather than one call
per record. MemoryConnector is the in-process double used by tests.
*/
package mirror
