package monitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.Store, events.Subscriber) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	sub := broker.Subscribe()

	m, err := New(st, broker)
	require.NoError(t, err)
	m.Start(context.Background())
	t.Cleanup(m.Stop)

	return m, st, sub
}

func waitForExternalWrite(sub events.Subscriber, timeout time.Duration) (*events.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub:
			if ev.Type == events.EventExternalWrite {
				return ev, true
			}
		case <-deadline:
			return nil, false
		}
	}
}

func TestExternalEditIsReported(t *testing.T) {
	_, st, sub := newTestMonitor(t)

	require.NoError(t, os.WriteFile(st.Path(resource.KeyEvents), []byte("{}"), 0644))

	ev, ok := waitForExternalWrite(sub, 3*time.Second)
	require.True(t, ok, "external edit should be reported")
	assert.Equal(t, resource.KeyEvents, ev.Resource)
}

func TestStoreWritesAreNotReported(t *testing.T) {
	_, st, sub := newTestMonitor(t)

	require.NoError(t, st.Save(resource.KeyEvents, map[string]any{"main_team": []any{}}))

	_, ok := waitForExternalWrite(sub, time.Second)
	assert.False(t, ok, "store-issued writes must not be flagged")
}

func TestNonResourceFilesAreIgnored(t *testing.T) {
	_, st, sub := newTestMonitor(t)

	require.NoError(t, os.WriteFile(st.Dir()+"/notes.txt", []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(st.Dir()+"/stranger.json", []byte("{}"), 0644))

	_, ok := waitForExternalWrite(sub, time.Second)
	assert.False(t, ok)
}

func TestLastActivityAdvances(t *testing.T) {
	m, st, _ := newTestMonitor(t)

	assert.True(t, m.LastActivity().IsZero())
	require.NoError(t, st.Save(resource.KeyHistory, []any{"x"}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !m.LastActivity().IsZero() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("activity timestamp never advanced")
}

func TestResourceForFiltersStoreArtifacts(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"events.json", true},
		{"blocked.json", true},
		{"events.json.bak", false},
		{"events.json.tmp-123", false},
		{"events.json.corrupt-20260301T120000", false},
		{"unknown.json", false},
		{"events.txt", false},
	}
	for _, tt := range tests {
		_, ok := resourceFor("/data/" + tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}
