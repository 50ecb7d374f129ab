package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

// ownWriteGrace is how long after a store save a filesystem event on
// that file is attributed to the store itself
const (
	ownWriteGrace = 2 * time.Second
	recheckDelay  = 200 * time.Millisecond
)

// Monitor watches the data directory and flags writes that did not go
// through the store. Out-of-band edits bypass locking and atomic
// replacement, so they are worth a loud warning even though the next
// startup validation would catch any damage.
type Monitor struct {
	store  *store.Store
	broker *events.Broker
	logger zerolog.Logger

	watcher *fsnotify.Watcher

	mu           sync.Mutex
	lastActivity time.Time
	ownWrites    map[resource.Key]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor over the store's data directory and hooks into
// its save path so the store's own writes are not reported
func New(st *store.Store, broker *events.Broker) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: create watcher: %w", err)
	}
	if err := watcher.Add(st.Dir()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("monitor: watch %s: %w", st.Dir(), err)
	}

	m := &Monitor{
		store:     st,
		broker:    broker,
		logger:    log.WithComponent("monitor"),
		watcher:   watcher,
		ownWrites: make(map[resource.Key]time.Time),
	}
	st.OnWrite(func(key resource.Key, _ any) {
		m.mu.Lock()
		m.ownWrites[key] = time.Now()
		m.mu.Unlock()
	})
	return m, nil
}

// LastActivity returns the time of the most recent filesystem event in
// the data directory
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Start launches the watch loop
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop, waits for it to exit and closes the watcher
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.watcher.Close()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handle(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (m *Monitor) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()

	key, ok := resourceFor(ev.Name)
	if !ok {
		return
	}
	if m.isOwnWrite(key) {
		return
	}

	// The store announces its writes after the rename lands, so a
	// just-saved file can look foreign for an instant. Re-check once
	// before raising the alarm.
	op := ev.Op.String()
	time.AfterFunc(recheckDelay, func() {
		if m.isOwnWrite(key) {
			return
		}
		m.logger.Warn().
			Str("resource", key.String()).
			Str("op", op).
			Msg("resource file changed outside the store")
		if m.broker != nil {
			m.broker.Publish(events.New(events.EventExternalWrite, key, op))
		}
	})
}

func (m *Monitor) isOwnWrite(key resource.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.ownWrites[key]
	return ok && time.Since(t) < ownWriteGrace
}

// resourceFor maps a filesystem path to a declared resource key. Temp
// files, backups and quarantined files are the store's own artifacts
// and never match.
func resourceFor(path string) (resource.Key, bool) {
	name := filepath.Base(path)
	if strings.Contains(name, ".tmp-") || strings.HasSuffix(name, ".bak") || strings.Contains(name, ".corrupt-") {
		return "", false
	}
	key := resource.Key(strings.TrimSuffix(name, ".json"))
	if !strings.HasSuffix(name, ".json") || resource.Lookup(key) == nil {
		return "", false
	}
	return key, true
}
