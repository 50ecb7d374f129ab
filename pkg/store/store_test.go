package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/ballast/pkg/resource"
)

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	st, err := Open(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, st.Dir())
}

func TestOpenEmptyDirFails(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	value := map[string]any{"main_team": []any{"alice", "bob"}}
	require.NoError(t, st.Save(resource.KeyEvents, value))

	loaded := st.Load(resource.KeyEvents, nil)
	assert.Equal(t, value, loaded)
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	def := map[string]any{"fresh": true}
	loaded := st.Load(resource.KeyBlocked, def)
	assert.Equal(t, def, loaded)

	// Returning the default must not create the file
	assert.False(t, st.Exists(resource.KeyBlocked))
}

func TestSaveWritesIndentedJSON(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Save(resource.KeySignupLock, true))

	data, err := os.ReadFile(st.Path(resource.KeySignupLock))
	require.NoError(t, err)
	assert.Equal(t, "true\n", string(data))

	require.NoError(t, st.Save(resource.KeyResults, map[string]any{"total_wins": float64(3)}))
	data, err = os.ReadFile(st.Path(resource.KeyResults))
	require.NoError(t, err)
	assert.Contains(t, string(data), "  \"total_wins\": 3")
}

func TestSaveKeepsPriorVersionAsBackup(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Save(resource.KeyHistory, []any{"first"}))
	require.NoError(t, st.Save(resource.KeyHistory, []any{"first", "second"}))

	bak, err := os.ReadFile(st.Path(resource.KeyHistory) + ".bak")
	require.NoError(t, err)

	var prior any
	require.NoError(t, json.Unmarshal(bak, &prior))
	assert.Equal(t, []any{"first"}, prior)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Save(resource.KeyAbsent, map[string]any{"n": float64(i)}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestUnencodableValueLeavesFileIntact(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	good := map[string]any{"ok": true}
	require.NoError(t, st.Save(resource.KeyAliasMap, good))

	// Channels cannot be marshalled
	err = st.Save(resource.KeyAliasMap, map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	assert.Equal(t, good, st.Load(resource.KeyAliasMap, nil))
}

func TestLoadQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	path := st.Path(resource.KeyEvents)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	def := map[string]any{}
	loaded := st.Load(resource.KeyEvents, def)
	assert.Equal(t, def, loaded)

	// Original file moved aside, bad bytes preserved
	assert.False(t, st.Exists(resource.KeyEvents))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var quarantined string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt-") {
			quarantined = e.Name()
		}
	}
	require.NotEmpty(t, quarantined)
	data, err := os.ReadFile(filepath.Join(dir, quarantined))
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestOnSaveHookReceivesValue(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	var gotKey resource.Key
	var gotValue any
	st.OnSave(func(key resource.Key, value any) {
		gotKey = key
		gotValue = value
	})

	value := []any{"entry"}
	require.NoError(t, st.Save(resource.KeyHistory, value))
	assert.Equal(t, resource.KeyHistory, gotKey)
	assert.Equal(t, any(value), gotValue)
}

func TestHooksReceiveDetachedCopy(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	var hooked any
	st.OnSave(func(_ resource.Key, value any) { hooked = value })

	doc := map[string]any{"main_team": []any{"alice"}}
	require.NoError(t, st.Save(resource.KeyEvents, doc))

	// The caller keeps ownership of its document after Save
	doc["main_team"] = []any{"mallory"}
	doc["team_2"] = []any{"bob"}

	got, ok := hooked.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"alice"}, got["main_team"])
	assert.NotContains(t, got, "team_2")
}

func TestSuppressSyncSkipsHooksButNotObservers(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	hookCalls, observerCalls := 0, 0
	st.OnSave(func(resource.Key, any) { hookCalls++ })
	st.OnWrite(func(resource.Key, any) { observerCalls++ })

	require.NoError(t, st.Save(resource.KeyBlocked, map[string]any{}, SuppressSync()))
	assert.Equal(t, 0, hookCalls)
	assert.Equal(t, 1, observerCalls)

	require.NoError(t, st.Save(resource.KeyBlocked, map[string]any{}))
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, 2, observerCalls)
}

func TestModifiedSince(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	before := st.Load(resource.KeyEvents, nil)
	assert.Nil(t, before)

	mark, ok := st.LastModified(resource.KeyEvents)
	assert.False(t, ok)
	assert.True(t, mark.IsZero())

	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{}))
	assert.True(t, st.ModifiedSince(mark))

	mtime, ok := st.LastModified(resource.KeyEvents)
	require.True(t, ok)
	assert.False(t, st.ModifiedSince(mtime))
}

func TestConcurrentSavesSameKey(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			_ = st.Save(resource.KeyMemberStats, map[string]any{"n": float64(n)})
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	// Whatever won, the file must be a complete document
	loaded := st.Load(resource.KeyMemberStats, nil)
	require.NotNil(t, loaded)
	_, ok := loaded.(map[string]any)["n"]
	assert.True(t, ok)
}
