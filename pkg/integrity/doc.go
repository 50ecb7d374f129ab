// Package integrity validates and repairs the resource store at
// startup, before any other component reads it.
//
// The validator walks the resource registry and applies, per resource:
//
//   - Missing file         → created with the schema default
//   - Undecodable file     → quarantined by the store, reset to default
//   - Wrong container type → reset to default
//   - Missing map member   → filled with the member default
//   - Wrong member type    → member reset to its default
//   - Roster entries       → coerced to identifier strings (numeric IDs
//     resolved through the alias map, falling back to Member_<id>),
//     blanks and duplicates dropped
//
// Every repair is recorded as a resource.Fix in the returned report and
// counted in metrics. The pass is idempotent: a second run over the
// repaired store applies nothing.
//
// Repairs are deliberately conservative. The validator only rewrites
// what it can prove wrong against the declared schema; unknown extra
// members are left untouched, and unreadable originals survive on disk
// under a timestamped quarantine name.
package integrity
