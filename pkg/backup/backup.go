package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/metrics"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

// ErrNotConfirmed is returned by Restore when the caller has not
// explicitly confirmed the overwrite
var ErrNotConfirmed = errors.New("backup: restore not confirmed")

// Trigger records why a backup was taken
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
	TriggerPreRestore Trigger = "pre_restore"
	TriggerShutdown   Trigger = "shutdown"
)

const metadataName = "metadata.json"

// FileInfo describes one resource file inside an archive
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Metadata is embedded in every archive as metadata.json
type Metadata struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Trigger    Trigger    `json:"trigger"`
	Files      []FileInfo `json:"files"`
	TotalBytes int64      `json:"total_bytes"`
}

// Entry is one archive on disk
type Entry struct {
	Name string
	Size int64
	Meta *Metadata
}

// Stats summarizes the archive set
type Stats struct {
	Count      int
	TotalBytes int64
	TotalSize  string
	Oldest     time.Time
	Newest     time.Time
}

// Config controls the backup schedule and retention
type Config struct {
	Dir      string
	Interval time.Duration
	Keep     int
	MaxAge   time.Duration
}

// Manager takes zip snapshots of the resource store and restores them.
// Archives are written atomically: built in a temp file, then renamed
// into place, so a crash mid-backup never leaves a half archive behind.
type Manager struct {
	store  *store.Store
	broker *events.Broker
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	lastBackup time.Time
	activity   func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// TrackActivity registers an additional activity source for the
// scheduled loop, typically the filesystem monitor. A tick is skipped
// only when neither the store nor the source saw changes since the
// last backup.
func (m *Manager) TrackActivity(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = fn
}

// New creates a backup manager. The broker is optional.
func New(st *store.Store, broker *events.Broker, cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create directory: %w", err)
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 30
	}
	return &Manager{
		store:  st,
		broker: broker,
		cfg:    cfg,
		logger: log.WithComponent("backup"),
	}, nil
}

// Create takes a snapshot of every resource file present on disk
func (m *Manager) Create(trigger Trigger) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(trigger)
}

func (m *Manager) createLocked(trigger Trigger) (*Metadata, error) {
	timer := metrics.NewTimer()
	base := fmt.Sprintf("backup_%s_%s", trigger, time.Now().UTC().Format("20060102_150405"))
	name := base + ".zip"
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(m.cfg.Dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s_%d.zip", base, i)
	}

	tmp, err := os.CreateTemp(m.cfg.Dir, name+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("backup: create temp archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	meta := &Metadata{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Trigger:   trigger,
	}

	zw := zip.NewWriter(tmp)
	for _, key := range resource.Keys() {
		if !m.store.Exists(key) {
			continue
		}
		data, err := os.ReadFile(m.store.Path(key))
		if err != nil {
			m.logger.Warn().Err(err).Str("resource", key.String()).Msg("skipping unreadable resource")
			continue
		}
		w, err := zw.Create(key.Filename())
		if err != nil {
			return nil, fmt.Errorf("backup: add %s: %w", key, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("backup: write %s: %w", key, err)
		}
		meta.Files = append(meta.Files, FileInfo{Name: key.Filename(), Size: int64(len(data))})
		meta.TotalBytes += int64(len(data))
	}

	mdata, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode metadata: %w", err)
	}
	w, err := zw.Create(metadataName)
	if err != nil {
		return nil, fmt.Errorf("backup: add metadata: %w", err)
	}
	if _, err := w.Write(mdata); err != nil {
		return nil, fmt.Errorf("backup: write metadata: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("backup: finalize archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("backup: sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("backup: close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(m.cfg.Dir, name)); err != nil {
		return nil, fmt.Errorf("backup: place archive: %w", err)
	}

	m.lastBackup = meta.CreatedAt
	metrics.BackupsCreated.WithLabelValues(string(trigger)).Inc()
	timer.ObserveDuration(metrics.BackupDuration)
	m.logger.Info().
		Str("archive", name).
		Str("trigger", string(trigger)).
		Int("files", len(meta.Files)).
		Str("size", humanize.Bytes(uint64(meta.TotalBytes))).
		Msg("backup created")
	if m.broker != nil {
		m.broker.Publish(events.New(events.EventBackupCreated, "", name))
	}

	if err := m.rotateLocked(); err != nil {
		m.logger.Warn().Err(err).Msg("backup rotation failed")
	}
	return meta, nil
}

// List returns all archives, newest first
func (m *Manager) List() ([]Entry, error) {
	dirents, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read directory: %w", err)
	}

	var out []Entry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, "backup_") || !strings.HasSuffix(name, ".zip") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entry := Entry{Name: name, Size: info.Size()}
		if meta, err := m.readMetadata(filepath.Join(m.cfg.Dir, name)); err == nil {
			entry.Meta = meta
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		return entryTime(out[i]).After(entryTime(out[j]))
	})
	return out, nil
}

func entryTime(e Entry) time.Time {
	if e.Meta != nil {
		return e.Meta.CreatedAt
	}
	return time.Time{}
}

// Stats summarizes the current archive set
func (m *Manager) Stats() (Stats, error) {
	entries, err := m.List()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Count: len(entries)}
	for _, e := range entries {
		s.TotalBytes += e.Size
		t := entryTime(e)
		if t.IsZero() {
			continue
		}
		if s.Oldest.IsZero() || t.Before(s.Oldest) {
			s.Oldest = t
		}
		if t.After(s.Newest) {
			s.Newest = t
		}
	}
	s.TotalSize = humanize.Bytes(uint64(s.TotalBytes))
	return s, nil
}

// rotateLocked removes archives beyond the retention count or age. The
// newest archive is always kept.
func (m *Manager) rotateLocked() error {
	entries, err := m.List()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var errs []error
	for i, e := range entries {
		expired := m.cfg.MaxAge > 0 && !entryTime(e).IsZero() && now.Sub(entryTime(e)) > m.cfg.MaxAge
		if i == 0 || (i < m.cfg.Keep && !expired) {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.Dir, e.Name)); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Debug().Str("archive", e.Name).Msg("rotated old backup")
	}
	return errors.Join(errs...)
}

func (m *Manager) readMetadata(path string) (*Metadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != metadataName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var meta Metadata
		if err := json.NewDecoder(rc).Decode(&meta); err != nil {
			return nil, err
		}
		return &meta, nil
	}
	return nil, fmt.Errorf("backup: %s has no metadata", filepath.Base(path))
}

// Restore replaces the live resource files with the archive's contents.
// A pre-restore snapshot of the current state is taken first, so the
// operation is reversible. Individual resource failures do not abort
// the rest of the restore.
func (m *Manager) Restore(name string, confirm bool) error {
	if !confirm {
		return ErrNotConfirmed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.cfg.Dir, filepath.Base(name))
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w", err)
	}
	defer zr.Close()

	if _, err := m.createLocked(TriggerPreRestore); err != nil {
		return fmt.Errorf("backup: pre-restore snapshot: %w", err)
	}

	var errs []error
	restored := 0
	for _, f := range zr.File {
		if f.Name == metadataName {
			continue
		}
		key := resource.Key(strings.TrimSuffix(f.Name, ".json"))
		if resource.Lookup(key) == nil {
			m.logger.Warn().Str("file", f.Name).Msg("skipping unknown file in archive")
			continue
		}
		value, err := readEntry(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		// Written through the store so the mirror picks up the change
		if err := m.store.Save(key, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		restored++
	}

	metrics.RestoresTotal.Inc()
	m.logger.Info().Str("archive", filepath.Base(path)).Int("restored", restored).Int("failed", len(errs)).Msg("restore complete")
	if m.broker != nil {
		m.broker.Publish(events.New(events.EventBackupRestored, "", filepath.Base(path)))
	}
	return errors.Join(errs...)
}

func readEntry(f *zip.File) (any, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// run takes scheduled backups until ctx is cancelled. A tick with no
// resource changes since the last backup is skipped.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	if m.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			last := m.lastBackup
			activity := m.activity
			m.mu.Unlock()
			changed := m.store.ModifiedSince(last)
			if !changed && activity != nil {
				changed = activity().After(last)
			}
			if !changed {
				m.logger.Debug().Msg("no changes since last backup, skipping")
				continue
			}
			if _, err := m.Create(TriggerScheduled); err != nil {
				m.logger.Error().Err(err).Msg("scheduled backup failed")
			}
		}
	}
}

// Start launches the scheduled backup loop
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
