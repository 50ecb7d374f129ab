package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/guildops/ballast/pkg/log"
)

const (
	bucketEntries = "entries"

	// DefaultMaxEntries bounds the ledger; the oldest entries are trimmed
	// once the cap is exceeded
	DefaultMaxEntries = 1000
)

// Entry is one administrative action in the ledger
type Entry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Resource string    `json:"resource,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Ledger is an append-only record of administrative actions, backed by
// a local bolt database so it survives restarts independently of the
// JSON resource files.
type Ledger struct {
	db     *bolt.DB
	max    int
	logger zerolog.Logger
}

// Open opens (or creates) the ledger database at path
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create bucket: %w", err)
	}
	return &Ledger{
		db:     db,
		max:    DefaultMaxEntries,
		logger: log.WithComponent("audit"),
	}, nil
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends an entry, filling in ID and Time when unset, and trims
// the ledger to its cap
func (l *Ledger) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}

	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEntries))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		// Trim oldest entries beyond the cap. Keys are collected before
		// deleting: deleting at the cursor position would make the next
		// Next skip an entry.
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		var stale [][]byte
		for k, _ := c.First(); k != nil && n-len(stale) > l.max; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit: record entry: %w", err)
	}

	l.logger.Debug().Str("actor", e.Actor).Str("action", e.Action).Str("resource", e.Resource).Msg("audit entry recorded")
	return nil
}

// Query selects matching entries, newest first. Empty actor or action
// match everything; limit <= 0 means no limit.
type Query struct {
	Actor  string
	Action string
	Since  time.Time
	Limit  int
}

// List returns entries matching q, newest first
func (l *Ledger) List(q Query) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketEntries)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if q.Actor != "" && e.Actor != q.Actor {
				continue
			}
			if q.Action != "" && e.Action != q.Action {
				continue
			}
			if !q.Since.IsZero() && e.Time.Before(q.Since) {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	return out, nil
}

// Count returns the number of stored entries
func (l *Ledger) Count() (int, error) {
	var n int
	err := l.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketEntries)).Stats().KeyN
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
