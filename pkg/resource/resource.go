package resource

import "time"

// Key identifies a named resource document
type Key string

const (
	KeyEvents            Key = "events"
	KeyBlocked           Key = "blocked"
	KeyAliasMap          Key = "alias-map"
	KeyAbsent            Key = "absent"
	KeyResults           Key = "results"
	KeyHistory           Key = "history"
	KeyMemberStats       Key = "member-stats"
	KeyMatchStats        Key = "match-stats"
	KeyEventTimes        Key = "event-times"
	KeySignupLock        Key = "signup-lock"
	KeyNotificationPrefs Key = "notification-prefs"
)

// Teams are the roster keys inside the events resource
var Teams = []string{"main_team", "team_2", "team_3"}

// DefaultEventTimes is the documented default schedule
var DefaultEventTimes = map[string]any{
	"main_team": "20:00 UTC Sunday",
	"team_2":    "20:00 UTC Saturday",
	"team_3":    "14:00 UTC Sunday",
}

// Filename returns the on-disk file name for a key
func (k Key) Filename() string {
	return string(k) + ".json"
}

func (k Key) String() string {
	return string(k)
}

// Kind classifies the expected container type of a document or member
type Kind string

const (
	KindMap    Kind = "map"
	KindList   Kind = "list"
	KindScalar Kind = "scalar"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
)

// Schema declares the expected shape of a resource document. It is
// consulted by the integrity validator at startup, not on every write.
type Schema struct {
	Key     Key
	Kind    Kind
	Default func() any

	// Required lists top-level keys a map document must contain; missing
	// keys are filled from DefaultFor during repair.
	Required []string

	// Members maps required keys to the kind their value must have.
	Members map[string]Kind

	// StringKeys requires all map keys to be strings that stay stable
	// under normalization (numeric actor IDs are rewritten in place).
	StringKeys bool

	// IdentifierLists names map keys whose values are lists of non-empty
	// identifier strings (team rosters). Numeric members are resolved
	// through the alias map before falling back to a placeholder.
	IdentifierLists []string
}

// DefaultFor returns the default value for a required member key
func (s *Schema) DefaultFor(member string) any {
	switch s.Members[member] {
	case KindMap:
		return map[string]any{}
	case KindList:
		return []any{}
	case KindNumber:
		return float64(0)
	case KindBool:
		return false
	case KindString:
		return ""
	default:
		return nil
	}
}

// Registry is the declared resource set, in stable order
var Registry = []*Schema{
	{
		Key:  KeyEvents,
		Kind: KindMap,
		Default: func() any {
			return map[string]any{"main_team": []any{}, "team_2": []any{}, "team_3": []any{}}
		},
		Required:        Teams,
		Members:         map[string]Kind{"main_team": KindList, "team_2": KindList, "team_3": KindList},
		IdentifierLists: Teams,
	},
	{
		Key:        KeyBlocked,
		Kind:       KindMap,
		Default:    func() any { return map[string]any{} },
		StringKeys: true,
	},
	{
		Key:        KeyAliasMap,
		Kind:       KindMap,
		Default:    func() any { return map[string]any{} },
		StringKeys: true,
	},
	{
		Key:        KeyAbsent,
		Kind:       KindMap,
		Default:    func() any { return map[string]any{} },
		StringKeys: true,
	},
	{
		Key:  KeyResults,
		Kind: KindMap,
		Default: func() any {
			return map[string]any{"total_wins": float64(0), "total_losses": float64(0), "history": []any{}}
		},
		Required: []string{"total_wins", "total_losses", "history"},
		Members:  map[string]Kind{"total_wins": KindNumber, "total_losses": KindNumber, "history": KindList},
	},
	{
		Key:     KeyHistory,
		Kind:    KindList,
		Default: func() any { return []any{} },
	},
	{
		Key:        KeyMemberStats,
		Kind:       KindMap,
		Default:    func() any { return map[string]any{} },
		StringKeys: true,
	},
	{
		Key:      KeyMatchStats,
		Kind:     KindMap,
		Default:  func() any { return map[string]any{"matches": []any{}} },
		Required: []string{"matches"},
		Members:  map[string]Kind{"matches": KindList},
	},
	{
		Key:  KeyEventTimes,
		Kind: KindMap,
		Default: func() any {
			times := make(map[string]any, len(DefaultEventTimes))
			for k, v := range DefaultEventTimes {
				times[k] = v
			}
			return times
		},
	},
	{
		Key:     KeySignupLock,
		Kind:    KindScalar,
		Default: func() any { return false },
	},
	{
		Key:  KeyNotificationPrefs,
		Kind: KindMap,
		Default: func() any {
			return map[string]any{"users": map[string]any{}, "default_settings": map[string]any{}}
		},
		Required: []string{"users", "default_settings"},
		Members:  map[string]Kind{"users": KindMap, "default_settings": KindMap},
	},
}

// Lookup returns the schema for key, or nil if the key is not declared
func Lookup(key Key) *Schema {
	for _, s := range Registry {
		if s.Key == key {
			return s
		}
	}
	return nil
}

// Keys returns all declared resource keys in registry order
func Keys() []Key {
	keys := make([]Key, 0, len(Registry))
	for _, s := range Registry {
		keys = append(keys, s.Key)
	}
	return keys
}

// KindOf classifies a decoded JSON value
func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindMap
	case []any:
		return KindList
	default:
		return KindScalar
	}
}

// FixKind categorizes a repair applied by the integrity validator
type FixKind string

const (
	FixCreated     FixKind = "created"
	FixReset       FixKind = "reset"
	FixQuarantined FixKind = "quarantined"
	FixCoerced     FixKind = "coerced"
	FixDropped     FixKind = "dropped"
)

// Fix records a single repair applied to a resource
type Fix struct {
	Key    Key       `json:"key"`
	Kind   FixKind   `json:"kind"`
	Detail string    `json:"detail"`
	Time   time.Time `json:"time"`
}

// Report collects the fixes applied during one validator run
type Report struct {
	Fixes   []Fix     `json:"fixes"`
	Started time.Time `json:"started"`
}

// Add appends a fix to the report
func (r *Report) Add(key Key, kind FixKind, detail string) {
	r.Fixes = append(r.Fixes, Fix{Key: key, Kind: kind, Detail: detail, Time: time.Now().UTC()})
}

// Empty reports whether no fixes were applied
func (r *Report) Empty() bool {
	return len(r.Fixes) == 0
}
