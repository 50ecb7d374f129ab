package integrity

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestRunCreatesAllMissingResources(t *testing.T) {
	st := newStore(t)

	report := New(st, nil).Run()

	assert.Len(t, report.Fixes, len(resource.Registry))
	for _, fix := range report.Fixes {
		assert.Equal(t, resource.FixCreated, fix.Kind)
	}
	for _, key := range resource.Keys() {
		assert.True(t, st.Exists(key), "missing %s", key)
	}

	events := st.Load(resource.KeyEvents, nil).(map[string]any)
	for _, team := range resource.Teams {
		assert.Equal(t, []any{}, events[team])
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := newStore(t)
	v := New(st, nil)

	first := v.Run()
	assert.False(t, first.Empty())

	second := v.Run()
	assert.True(t, second.Empty(), "second run applied fixes: %+v", second.Fixes)
}

func TestRunQuarantinesAndResetsCorruptFile(t *testing.T) {
	st := newStore(t)
	require.NoError(t, os.WriteFile(st.Path(resource.KeyResults), []byte("garbage"), 0644))

	report := New(st, nil).Run()

	kinds := fixKindsFor(report, resource.KeyResults)
	assert.Contains(t, kinds, resource.FixQuarantined)
	assert.Contains(t, kinds, resource.FixReset)

	results := st.Load(resource.KeyResults, nil).(map[string]any)
	assert.Equal(t, float64(0), results["total_wins"])
	assert.Equal(t, []any{}, results["history"])
}

func TestRunResetsWrongContainerType(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeyEvents, []any{"not", "a", "map"}))

	report := New(st, nil).Run()

	assert.Contains(t, fixKindsFor(report, resource.KeyEvents), resource.FixReset)
	_, ok := st.Load(resource.KeyEvents, nil).(map[string]any)
	assert.True(t, ok)
}

func TestRunFillsMissingRequiredMembers(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeyResults, map[string]any{"total_wins": float64(7)}))

	New(st, nil).Run()

	results := st.Load(resource.KeyResults, nil).(map[string]any)
	assert.Equal(t, float64(7), results["total_wins"], "existing member must survive")
	assert.Equal(t, float64(0), results["total_losses"])
	assert.Equal(t, []any{}, results["history"])
}

func TestRunResetsWrongMemberKind(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeyResults, map[string]any{
		"total_wins":   "twelve",
		"total_losses": float64(2),
		"history":      []any{},
	}))

	New(st, nil).Run()

	results := st.Load(resource.KeyResults, nil).(map[string]any)
	assert.Equal(t, float64(0), results["total_wins"])
	assert.Equal(t, float64(2), results["total_losses"])
}

func TestRunCoercesNumericRosterEntries(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeyAliasMap, map[string]any{"12345": "KnownPlayer"}))
	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{
		"main_team": []any{"alice", float64(12345), float64(99999)},
		"team_2":    []any{},
		"team_3":    []any{},
	}))

	New(st, nil).Run()

	events := st.Load(resource.KeyEvents, nil).(map[string]any)
	assert.Equal(t, []any{"alice", "KnownPlayer", "Member_99999"}, events["main_team"])
}

func TestRunDropsUnusableRosterEntries(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{
		"main_team": []any{"alice", "", "  ", true, "alice"},
		"team_2":    []any{},
		"team_3":    []any{},
	}))

	New(st, nil).Run()

	events := st.Load(resource.KeyEvents, nil).(map[string]any)
	assert.Equal(t, []any{"alice"}, events["main_team"])
}

func TestRunLeavesValidDataUntouched(t *testing.T) {
	st := newStore(t)
	original := map[string]any{
		"main_team": []any{"alice", "bob"},
		"team_2":    []any{"carol"},
		"team_3":    []any{},
		"extra":     "unknown members survive",
	}
	require.NoError(t, st.Save(resource.KeyEvents, original))

	report := New(st, nil).Run()

	assert.Empty(t, fixKindsFor(report, resource.KeyEvents))
	assert.Equal(t, original, st.Load(resource.KeyEvents, nil))
}

func TestRunAcceptsAnyScalarForScalarSchema(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Save(resource.KeySignupLock, true))

	report := New(st, nil).Run()
	assert.Empty(t, fixKindsFor(report, resource.KeySignupLock))

	require.NoError(t, st.Save(resource.KeySignupLock, map[string]any{"locked": true}))
	report = New(st, nil).Run()
	assert.Contains(t, fixKindsFor(report, resource.KeySignupLock), resource.FixReset)
	assert.Equal(t, false, st.Load(resource.KeySignupLock, nil))
}

func fixKindsFor(report *resource.Report, key resource.Key) []resource.FixKind {
	var kinds []resource.FixKind
	for _, fix := range report.Fixes {
		if fix.Key == key {
			kinds = append(kinds, fix.Kind)
		}
	}
	return kinds
}
