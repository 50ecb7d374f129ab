package integration

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/ballast/pkg/backup"
	"github.com/guildops/ballast/pkg/config"
	"github.com/guildops/ballast/pkg/manager"
	"github.com/guildops/ballast/pkg/mirror"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
	"github.com/guildops/ballast/pkg/syncer"
)

// TestFullLifecycle walks the whole durability path: a fresh start
// repairs the store, mutations flow through admission and land on disk,
// a backup captures them, deliberate damage is repaired, and a restore
// brings the captured state back.
func TestFullLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BackupDir = t.TempDir()
	cfg.Admission.CommandsPerMinute = 100
	cfg.Admission.CommandsPerHour = 1000

	core, err := manager.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)

	t.Log("Step 1: Fresh start created every resource")
	for _, key := range resource.Keys() {
		require.True(t, core.Store().Exists(key), "missing %s", key)
	}
	require.Len(t, core.StartupReport().Fixes, len(resource.Registry))

	t.Log("Step 2: Mutations land on disk")
	err = core.Mutate("actor-1", "signup", resource.KeyEvents, func(current any) (any, error) {
		doc := current.(map[string]any)
		doc["main_team"] = append(doc["main_team"].([]any), "alice", "bob")
		return doc, nil
	})
	require.NoError(t, err)
	err = core.Mutate("actor-1", "record-win", resource.KeyResults, func(current any) (any, error) {
		doc := current.(map[string]any)
		doc["total_wins"] = doc["total_wins"].(float64) + 1
		return doc, nil
	})
	require.NoError(t, err)

	t.Log("Step 3: Backup captures the state")
	meta, err := core.Backups().Create(backup.TriggerManual)
	require.NoError(t, err)
	require.NotEmpty(t, meta.Files)
	entries, err := core.Backups().List()
	require.NoError(t, err)
	archive := entries[0].Name

	t.Log("Step 4: Wipe the roster, then restore it")
	err = core.Mutate("actor-1", "reset", resource.KeyEvents, func(any) (any, error) {
		return map[string]any{"main_team": []any{}, "team_2": []any{}, "team_3": []any{}}, nil
	})
	require.NoError(t, err)

	require.NoError(t, core.Backups().Restore(archive, true))
	events := core.Store().Load(resource.KeyEvents, nil).(map[string]any)
	assert.Equal(t, []any{"alice", "bob"}, events["main_team"])

	core.Stop()

	t.Log("Step 5: Corrupt a file, restart, and watch it heal")
	require.NoError(t, os.WriteFile(
		core.Store().Path(resource.KeyResults), []byte("{broken"), 0644))

	core2, err := manager.New(cfg)
	require.NoError(t, err)
	defer core2.Stop()

	assert.False(t, core2.StartupReport().Empty())
	results := core2.Store().Load(resource.KeyResults, nil).(map[string]any)
	assert.Equal(t, float64(0), results["total_wins"], "corrupt file resets to default")

	// The roster restored in step 4 survived the restart untouched
	events = core2.Store().Load(resource.KeyEvents, nil).(map[string]any)
	assert.Equal(t, []any{"alice", "bob"}, events["main_team"])
}

// TestSyncMirrorsLocalState verifies that saves flow through the sync
// engine into the mirror and that a fresh store bootstraps from it.
func TestSyncMirrorsLocalState(t *testing.T) {
	conn := mirror.NewMemoryConnector()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	engine := syncer.New(st, conn, nil, syncer.Config{MinInterval: time.Millisecond})
	engine.Start(context.Background())

	value := map[string]any{"main_team": []any{"alice"}, "team_2": []any{}, "team_3": []any{}}
	require.NoError(t, st.Save(resource.KeyEvents, value))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := conn.Table(resource.KeyEvents); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	engine.Stop()

	mirrored, ok := conn.Table(resource.KeyEvents)
	require.True(t, ok, "save never reached the mirror")
	assert.Equal(t, value, mirrored)

	// A brand new store pulls the mirrored state back in
	st2, err := store.Open(t.TempDir())
	require.NoError(t, err)
	engine2 := syncer.New(st2, conn, nil, syncer.Config{MinInterval: time.Millisecond})
	engine2.Bootstrap(context.Background())

	restored := st2.Load(resource.KeyEvents, nil)
	assert.Equal(t, value, restored)
}

// TestBackupArchiveIsPlainZip makes sure operators can open an archive
// with standard tools and find readable JSON inside.
func TestBackupArchiveIsPlainZip(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BackupDir = t.TempDir()

	core, err := manager.New(cfg)
	require.NoError(t, err)
	defer core.Stop()

	meta, err := core.Backups().Create(backup.TriggerManual)
	require.NoError(t, err)

	data, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trigger":"manual"`)

	entries, err := core.Backups().List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Meta)
	assert.Equal(t, meta.ID, entries[0].Meta.ID)
	assert.Len(t, entries[0].Meta.Files, len(resource.Registry))
}
