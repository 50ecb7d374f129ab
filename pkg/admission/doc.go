/*
Package admission is Ballast's admission controller: it decides whether an
actor's requested mutation may proceed, before the mutation ever reaches
the resource store.

Three independent mechanisms gate each actor:

  - Sliding windows: at most N actions per rolling minute and M per
    rolling hour, tracked as a pruned timestamp slice per actor.
  - Cooldowns: higher-impact action classes (start-event, record-win,
    block, ...) each carry a fixed interval that must elapse between uses,
    independent of the general budget.
  - Burst detection: rapid repeated triggering of the same interactive
    control (more than K triggers within a few seconds) is denied even
    when the per-minute budget still has room, catching automated or
    accidental double-activation.

Denials are Decision values with a reason and a retry-after duration.
They are normal outcomes, never errors, and they consume no budget (only
allowed actions are recorded).

State is in-memory only, keyed by actor, pruned lazily on each check, and
lost on restart. Check is pure with respect to storage. Reset
clears one actor's counters (privileged); Stats and GlobalStats expose
window counts and active cooldowns for observability.
*/
package admission
