package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/metrics"
	"github.com/guildops/ballast/pkg/resource"
)

// ErrNotExist indicates the resource has no file on disk yet
var ErrNotExist = errors.New("store: resource does not exist")

// SaveHook is invoked after every successful save that is not suppressed.
// Hooks run outside the resource's lock and must not block. The value a
// hook receives is decoded from the bytes just written, not the caller's
// document, so the caller may keep mutating its copy after Save returns.
type SaveHook func(key resource.Key, value any)

// SaveOption adjusts the behavior of a single Save call
type SaveOption func(*saveOptions)

type saveOptions struct {
	suppressSync bool
}

// SuppressSync prevents the save from being announced to save hooks,
// keeping the change out of the sync queue (used by bootstrap and restore
// paths that must not echo remote data back to the mirror).
func SuppressSync() SaveOption {
	return func(o *saveOptions) { o.suppressSync = true }
}

// Store is a per-resource locked JSON document store with atomic
// replace-on-write semantics. One file per resource key lives under the
// data directory; writers never leave a partially written document behind.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu        sync.Mutex
	locks     map[resource.Key]*sync.Mutex
	hooks     []SaveHook
	observers []SaveHook
}

// Open creates the data directory if needed and verifies it is writable.
// A data directory that cannot take writes is a fatal configuration error.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("store: data directory not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Store{
		dir:    dir,
		logger: log.WithComponent("store"),
		locks:  make(map[resource.Key]*sync.Mutex),
	}, nil
}

// Dir returns the data directory path
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the canonical file path for a resource key
func (s *Store) Path(key resource.Key) string {
	return filepath.Join(s.dir, key.Filename())
}

// OnSave registers a hook called after each successful, non-suppressed save
func (s *Store) OnSave(hook SaveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// OnWrite registers an observer called after every successful save,
// including suppressed ones. Observers see all store-issued writes, which
// lets the filesystem monitor tell them apart from out-of-band edits.
func (s *Store) OnWrite(hook SaveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, hook)
}

// lockFor returns the lock for a key, creating it lazily. Locks are never
// removed; the key space is small and fixed by the registry.
func (s *Store) lockFor(key resource.Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Load reads a resource document, returning def when the file is absent or
// unreadable. An unreadable file is quarantined (renamed aside with a
// timestamp suffix) so the bad bytes survive for forensics and are never
// silently overwritten by the next save.
func (s *Store) Load(key resource.Key, def any) any {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	value, err := s.loadLocked(key)
	if err != nil {
		if !errors.Is(err, ErrNotExist) {
			metrics.LoadFailures.Inc()
			s.logger.Error().Err(err).Str("resource", key.String()).Msg("load failed, returning default")
		}
		return def
	}
	return value
}

// Exists reports whether the resource has a file on disk
func (s *Store) Exists(key resource.Key) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

// LastModified returns the file modification time for a key
func (s *Store) LastModified(key resource.Key) (time.Time, bool) {
	info, err := os.Stat(s.Path(key))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ModifiedSince reports whether any declared resource changed after t
func (s *Store) ModifiedSince(t time.Time) bool {
	for _, key := range resource.Keys() {
		if mtime, ok := s.LastModified(key); ok && mtime.After(t) {
			return true
		}
	}
	return false
}

func (s *Store) loadLocked(key resource.Key) (any, error) {
	path := s.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		qpath := s.quarantineLocked(key)
		return nil, fmt.Errorf("store: %s is unreadable, quarantined to %s: %w", key, filepath.Base(qpath), err)
	}
	return value, nil
}

// quarantineLocked renames the resource file aside with a timestamp suffix.
// Caller holds the key's lock.
func (s *Store) quarantineLocked(key resource.Key) string {
	path := s.Path(key)
	qpath := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(path, qpath); err != nil {
		s.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to quarantine corrupt file")
		return path
	}
	metrics.Quarantines.Inc()
	s.logger.Warn().Str("resource", key.String()).Str("quarantine", filepath.Base(qpath)).Msg("quarantined corrupt resource file")
	return qpath
}

// Save atomically replaces the resource document: the new value is written
// to a temporary file in the same directory, the existing file (if any) is
// copied to a .bak sibling, and the temp file is renamed into place. On
// any failure the temp file is removed and the prior on-disk value is left
// untouched.
func (s *Store) Save(key resource.Key, value any, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	l := s.lockFor(key)
	l.Lock()
	data, err := s.saveLocked(key, value)
	l.Unlock()

	if err != nil {
		metrics.SaveFailures.Inc()
		s.logger.Error().Err(err).Str("resource", key.String()).Msg("save failed")
		return err
	}

	metrics.Saves.Inc()
	s.logger.Debug().Str("resource", key.String()).Msg("saved")

	s.mu.Lock()
	observers := append([]SaveHook(nil), s.observers...)
	hooks := append([]SaveHook(nil), s.hooks...)
	s.mu.Unlock()

	if len(observers) == 0 && len(hooks) == 0 {
		return nil
	}

	// Hooks get a copy decoded from the written bytes, never the caller's
	// document. A caller mutating its document after Save must not change
	// what a queued sync task later pushes.
	var snapshot any
	if uerr := json.Unmarshal(data, &snapshot); uerr != nil {
		snapshot = value
	}

	for _, obs := range observers {
		obs(key, snapshot)
	}
	if !o.suppressSync {
		for _, hook := range hooks {
			hook(key, snapshot)
		}
	}
	return nil
}

// saveLocked writes the document and returns the bytes it wrote.
func (s *Store) saveLocked(key resource.Key, value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", key, err)
	}
	data = append(data, '\n')

	path := s.Path(key)
	tmp, err := os.CreateTemp(s.dir, key.Filename()+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("store: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: write temp for %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: sync temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: close temp for %s: %w", key, err)
	}

	// Keep the immediately-prior good version as a .bak sibling
	if prior, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prior, 0644); err != nil {
			os.Remove(tmpName)
			return nil, fmt.Errorf("store: write backup for %s: %w", key, err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: rename temp for %s: %w", key, err)
	}
	return data, nil
}
