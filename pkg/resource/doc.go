/*
Package resource defines the resource registry that is the foundation of
Ballast's data model: the declared resource keys, their documented default
values, and the declarative schemas the integrity validator repairs
against.

A resource is a named whole-document value (map, list, or scalar)
identified by a stable logical key. Documents are dynamic JSON (the bot's
state mixes rosters, counters, and lookup tables), so values are modeled
as decoded JSON (map[string]any, []any, scalars) rather than fixed
structs, and Schema carries the shape constraints explicitly.

# Declared resources

	events              team rosters (map of team key -> identifier list)
	blocked             blocked actors (map keyed by actor ID)
	alias-map           actor ID -> display alias lookup
	absent              actors marked absent
	results             win/loss totals plus history list
	history             archived event records
	member-stats        per-actor statistics
	match-stats         recorded match details
	event-times         schedule strings per team
	signup-lock         boolean scalar gating signups
	notification-prefs  per-actor notification settings

Each key maps to exactly one canonical file, <key>.json, in the data
directory. Documents are mutated by whole-document replace and never
deleted, only reset to their default.

# Schemas

Schema is consulted only by pkg/integrity at startup. It expresses the
container kind, required top-level members and their kinds, whether map
keys must be (string) actor IDs, and which members are identifier lists
whose numeric entries get resolved through the alias map.

Fix and Report record every repair a validator run applies; a second run
over repaired data must produce an empty report.
*/
package resource
