/*
Package store implements Ballast's per-resource locked document store with
atomic replace-on-write persistence.

Each declared resource key owns exactly one canonical JSON file under the
data directory. Readers and writers for a given key are serialized by that
key's lock; different keys never block each other. No lock is ever held
across a remote call; the sync engine snapshots values at save time and
does its network work independently.

# Write path

	┌───────────────────────── SAVE ─────────────────────────┐
	│  marshal value (indented JSON)                          │
	│  write to <key>.json.tmp-* in the same directory        │
	│  fsync + close the temp file                            │
	│  copy existing <key>.json to <key>.json.bak (if any)    │
	│  rename temp file over <key>.json  (atomic)             │
	│  on any failure: remove temp, prior file is untouched   │
	└─────────────────────────────────────────────────────────┘

The rename is the commit point. A crash at any earlier step leaves the
previous document intact; the .bak sibling always holds the
immediately-prior good version after a successful save.

# Read path and quarantine

Load returns the caller's default when the file is absent or fails to
parse. An unparseable file is quarantined (renamed to
<key>.json.corrupt-<timestamp>) so the bad bytes are preserved for
forensic recovery and can never be silently overwritten by a later save.
Recovery to a valid document is the integrity validator's job.

# Save hooks

Successful saves are announced to registered SaveHooks (the sync engine
enqueues a mirror push from its hook). Hooks run after the key's lock is
released. SuppressSync skips the hooks for saves that must not re-enter
the sync queue, such as mirror bootstrap and backup restore.
*/
package store
