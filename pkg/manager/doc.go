// Package manager wires the durability components into one Core and
// owns their lifecycle.
//
// Construction order is deliberate: the store opens first, the
// integrity validator repairs it, and only then do the audit ledger,
// admission controller, sync engine, backup manager and filesystem
// monitor come up. Nothing reads resource data before the validator
// has passed over it.
//
// Start brings the background loops up (bootstrapping from the mirror
// first when one is configured); Stop tears them down in reverse order
// and takes a final shutdown backup.
//
// Core.Mutate is the write path for callers: it checks admission for
// the acting user, applies the caller's read-modify-write function
// under the resource's lock discipline, and records the action in the
// audit ledger.
package manager
