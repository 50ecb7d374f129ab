package backup

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

func newTestManager(t *testing.T, keep int) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	mgr, err := New(st, nil, Config{Dir: t.TempDir(), Keep: keep})
	require.NoError(t, err)
	return mgr, st
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{"main_team": []any{"alice"}}))
	require.NoError(t, st.Save(resource.KeyResults, map[string]any{"total_wins": float64(3), "total_losses": float64(1), "history": []any{}}))
}

func TestCreateWritesArchiveWithMetadata(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	meta, err := mgr.Create(TriggerManual)
	require.NoError(t, err)

	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, TriggerManual, meta.Trigger)
	assert.Len(t, meta.Files, 2)
	assert.Greater(t, meta.TotalBytes, int64(0))

	entries, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name, "backup_manual_")
	require.NotNil(t, entries[0].Meta)
	assert.Equal(t, meta.ID, entries[0].Meta.ID)
}

func TestCreateSkipsMissingResources(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	require.NoError(t, st.Save(resource.KeyHistory, []any{"only one"}))

	meta, err := mgr.Create(TriggerManual)
	require.NoError(t, err)
	require.Len(t, meta.Files, 1)
	assert.Equal(t, "history.json", meta.Files[0].Name)
}

func TestCreateLeavesNoTempFiles(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	_, err := mgr.Create(TriggerManual)
	require.NoError(t, err)

	dirents, err := os.ReadDir(mgr.cfg.Dir)
	require.NoError(t, err)
	for _, d := range dirents {
		assert.NotContains(t, d.Name(), ".tmp-")
	}
}

func TestSameSecondArchivesGetUniqueNames(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	for i := 0; i < 3; i++ {
		_, err := mgr.Create(TriggerManual)
		require.NoError(t, err)
	}
	entries, err := mgr.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRotationKeepsNewest(t *testing.T) {
	mgr, st := newTestManager(t, 2)
	seed(t, st)

	var last *Metadata
	for i := 0; i < 4; i++ {
		meta, err := mgr.Create(TriggerManual)
		require.NoError(t, err)
		last = meta
	}

	entries, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Meta)
	assert.Equal(t, last.ID, entries[0].Meta.ID, "newest archive must survive rotation")
}

func TestRestoreRequiresConfirmation(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)
	_, err := mgr.Create(TriggerManual)
	require.NoError(t, err)

	entries, err := mgr.List()
	require.NoError(t, err)

	err = mgr.Restore(entries[0].Name, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestRestoreRoundTrip(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	_, err := mgr.Create(TriggerManual)
	require.NoError(t, err)
	entries, err := mgr.List()
	require.NoError(t, err)
	archive := entries[0].Name

	// Damage the live data
	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{"main_team": []any{}}))
	require.NoError(t, st.Save(resource.KeyResults, map[string]any{"total_wins": float64(0), "total_losses": float64(0), "history": []any{}}))

	require.NoError(t, mgr.Restore(archive, true))

	events := st.Load(resource.KeyEvents, nil).(map[string]any)
	assert.Equal(t, []any{"alice"}, events["main_team"])
	results := st.Load(resource.KeyResults, nil).(map[string]any)
	assert.Equal(t, float64(3), results["total_wins"])
}

func TestRestoreTakesPreRestoreSnapshot(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	_, err := mgr.Create(TriggerManual)
	require.NoError(t, err)
	entries, err := mgr.List()
	require.NoError(t, err)

	require.NoError(t, mgr.Restore(entries[0].Name, true))

	entries, err = mgr.List()
	require.NoError(t, err)

	var preRestore bool
	for _, e := range entries {
		if e.Meta != nil && e.Meta.Trigger == TriggerPreRestore {
			preRestore = true
		}
	}
	assert.True(t, preRestore, "restore must snapshot the prior state first")
}

func TestRestoreSkipsUnknownFiles(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	// Hand-build an archive with a foreign entry
	path := filepath.Join(mgr.cfg.Dir, "backup_manual_20260101_000000.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("history.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`["restored"]`))
	require.NoError(t, err)
	w, err = zw.Create("intruder.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"bad": true}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.NoError(t, mgr.Restore(filepath.Base(path), true))

	history := st.Load(resource.KeyHistory, nil)
	assert.Equal(t, []any{"restored"}, history)
	assert.False(t, st.Exists(resource.Key("intruder")))
}

func TestScheduledLoopConsultsActivitySource(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	seed(t, st)

	mgr, err := New(st, nil, Config{Dir: t.TempDir(), Keep: 30, Interval: 20 * time.Millisecond})
	require.NoError(t, err)

	// Baseline snapshot so the loop sees nothing new
	_, err = mgr.Create(TriggerManual)
	require.NoError(t, err)

	mgr.Start(context.Background())
	defer mgr.Stop()

	time.Sleep(120 * time.Millisecond)
	entries, err := mgr.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "idle store must not accumulate backups")

	// An external activity source counts as change
	mgr.TrackActivity(time.Now)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err = mgr.List()
		require.NoError(t, err)
		if len(entries) > 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduled loop ignored the activity source")
}

func TestStats(t *testing.T) {
	mgr, st := newTestManager(t, 30)
	seed(t, st)

	stats, err := mgr.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)

	_, err = mgr.Create(TriggerManual)
	require.NoError(t, err)
	_, err = mgr.Create(TriggerScheduled)
	require.NoError(t, err)

	stats, err = mgr.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Greater(t, stats.TotalBytes, int64(0))
	assert.NotEmpty(t, stats.TotalSize)
	assert.False(t, stats.Newest.IsZero())
}
