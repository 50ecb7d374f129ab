package integrity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/metrics"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

// Validator walks the resource registry at startup, creating missing
// documents and repairing damaged ones so every later read sees a
// document of the declared shape. Running it twice in a row applies no
// fixes on the second run.
type Validator struct {
	store  *store.Store
	broker *events.Broker
	logger zerolog.Logger
}

// New creates a validator over the given store. The broker is optional.
func New(st *store.Store, broker *events.Broker) *Validator {
	return &Validator{
		store:  st,
		broker: broker,
		logger: log.WithComponent("integrity"),
	}
}

// Run validates every declared resource and returns the repair report
func (v *Validator) Run() *resource.Report {
	report := &resource.Report{Started: time.Now().UTC()}

	for _, schema := range resource.Registry {
		v.validate(schema, report)
	}

	for _, fix := range report.Fixes {
		metrics.FixesApplied.WithLabelValues(string(fix.Kind)).Inc()
	}

	if report.Empty() {
		v.logger.Info().Int("resources", len(resource.Registry)).Msg("all resources valid")
	} else {
		v.logger.Warn().Int("fixes", len(report.Fixes)).Msg("startup repairs applied")
	}
	return report
}

func (v *Validator) validate(schema *resource.Schema, report *resource.Report) {
	key := schema.Key
	existed := v.store.Exists(key)

	if !existed {
		if err := v.store.Save(key, schema.Default()); err != nil {
			v.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to create missing resource")
			return
		}
		report.Add(key, resource.FixCreated, "created with default value")
		v.repaired(key, "created missing resource file")
		return
	}

	sentinel := &struct{}{}
	value := v.store.Load(key, sentinel)
	if value == any(sentinel) {
		// The file existed but could not be decoded; the store has already
		// quarantined the bad bytes.
		report.Add(key, resource.FixQuarantined, "unreadable file moved aside")
		if err := v.store.Save(key, schema.Default()); err != nil {
			v.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to reset quarantined resource")
			return
		}
		report.Add(key, resource.FixReset, "reset to default after quarantine")
		v.repaired(key, "quarantined and reset unreadable resource")
		return
	}

	if wrongKind(schema.Kind, value) {
		detail := fmt.Sprintf("expected %s, found %s", schema.Kind, resource.KindOf(value))
		if err := v.store.Save(key, schema.Default()); err != nil {
			v.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to reset malformed resource")
			return
		}
		report.Add(key, resource.FixReset, detail)
		v.repaired(key, "reset resource with wrong container type")
		return
	}

	if schema.Kind != resource.KindMap {
		return
	}
	doc := value.(map[string]any)

	changed := false
	if v.fillRequired(schema, doc, report) {
		changed = true
	}
	if schema.StringKeys && v.normalizeKeys(schema, doc, report) {
		changed = true
	}
	if len(schema.IdentifierLists) > 0 && v.repairRosters(schema, doc, report) {
		changed = true
	}

	if changed {
		if err := v.store.Save(key, doc); err != nil {
			v.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to save repaired resource")
			return
		}
		v.repaired(key, "repaired resource members")
	}
}

// wrongKind reports whether value violates the declared container kind.
// Scalar schemas accept any non-container value.
func wrongKind(declared resource.Kind, value any) bool {
	actual := resource.KindOf(value)
	if declared == resource.KindScalar {
		return actual == resource.KindMap || actual == resource.KindList
	}
	return actual != declared
}

// fillRequired adds absent required members and resets members of the
// wrong kind
func (v *Validator) fillRequired(schema *resource.Schema, doc map[string]any, report *resource.Report) bool {
	changed := false
	for _, member := range schema.Required {
		current, ok := doc[member]
		if !ok {
			doc[member] = schema.DefaultFor(member)
			report.Add(schema.Key, resource.FixCreated, fmt.Sprintf("added missing member %q", member))
			changed = true
			continue
		}
		if want := schema.Members[member]; want != "" && memberKindOf(current) != want {
			doc[member] = schema.DefaultFor(member)
			report.Add(schema.Key, resource.FixReset, fmt.Sprintf("member %q had kind %s, expected %s", member, memberKindOf(current), want))
			changed = true
		}
	}
	return changed
}

func memberKindOf(v any) resource.Kind {
	switch v.(type) {
	case map[string]any:
		return resource.KindMap
	case []any:
		return resource.KindList
	case float64:
		return resource.KindNumber
	case bool:
		return resource.KindBool
	case string:
		return resource.KindString
	default:
		return resource.KindScalar
	}
}

// normalizeKeys trims whitespace from map keys and drops keys that are
// empty after trimming
func (v *Validator) normalizeKeys(schema *resource.Schema, doc map[string]any, report *resource.Report) bool {
	changed := false
	for key, val := range doc {
		trimmed := strings.TrimSpace(key)
		if trimmed == key {
			continue
		}
		delete(doc, key)
		if trimmed == "" {
			report.Add(schema.Key, resource.FixDropped, "dropped entry with blank key")
			changed = true
			continue
		}
		if _, exists := doc[trimmed]; !exists {
			doc[trimmed] = val
		}
		report.Add(schema.Key, resource.FixCoerced, fmt.Sprintf("normalized key %q", trimmed))
		changed = true
	}
	return changed
}

// repairRosters coerces roster entries into non-empty identifier
// strings. Numeric entries are resolved through the alias map, falling
// back to a stable placeholder; anything else unusable is dropped.
func (v *Validator) repairRosters(schema *resource.Schema, doc map[string]any, report *resource.Report) bool {
	aliases, _ := v.store.Load(resource.KeyAliasMap, map[string]any{}).(map[string]any)

	changed := false
	for _, member := range schema.IdentifierLists {
		roster, ok := doc[member].([]any)
		if !ok {
			continue
		}

		fixed := make([]any, 0, len(roster))
		seen := make(map[string]bool, len(roster))
		dirty := false
		for _, entry := range roster {
			name, ok := coerceIdentifier(entry, aliases)
			if !ok {
				report.Add(schema.Key, resource.FixDropped, fmt.Sprintf("dropped unusable entry in %q", member))
				dirty = true
				continue
			}
			if seen[name] {
				report.Add(schema.Key, resource.FixDropped, fmt.Sprintf("dropped duplicate %q in %q", name, member))
				dirty = true
				continue
			}
			if s, wasString := entry.(string); !wasString || s != name {
				report.Add(schema.Key, resource.FixCoerced, fmt.Sprintf("rewrote entry as %q in %q", name, member))
				dirty = true
			}
			seen[name] = true
			fixed = append(fixed, name)
		}
		if dirty {
			doc[member] = fixed
			changed = true
		}
	}
	return changed
}

// coerceIdentifier turns a roster entry into a usable identifier string
func coerceIdentifier(entry any, aliases map[string]any) (string, bool) {
	switch e := entry.(type) {
	case string:
		trimmed := strings.TrimSpace(e)
		return trimmed, trimmed != ""
	case float64:
		id := formatID(e)
		if name, ok := aliases[id].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name), true
		}
		return "Member_" + id, true
	default:
		return "", false
	}
}

func formatID(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (v *Validator) repaired(key resource.Key, msg string) {
	if v.broker != nil {
		v.broker.Publish(events.New(events.EventResourceRepaired, key, msg))
	}
}
