package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/guildops/ballast/pkg/audit"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

var (
	legacyDir = flag.String("legacy-dir", "", "Directory holding the legacy bot's JSON files")
	dataDir   = flag.String("data-dir", "data", "Ballast data directory to migrate into")
	dryRun    = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
)

// legacyFiles maps the legacy bot's file names to resource keys
var legacyFiles = map[string]resource.Key{
	"events.json":                   resource.KeyEvents,
	"blocked_users.json":            resource.KeyBlocked,
	"ign_map.json":                  resource.KeyAliasMap,
	"absent_users.json":             resource.KeyAbsent,
	"event_results.json":            resource.KeyResults,
	"events_history.json":           resource.KeyHistory,
	"player_stats.json":             resource.KeyMemberStats,
	"match_statistics.json":         resource.KeyMatchStats,
	"row_times.json":                resource.KeyEventTimes,
	"signup_lock.json":              resource.KeySignupLock,
	"notification_preferences.json": resource.KeyNotificationPrefs,
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Ballast Migration Tool - legacy bot data → resource store")
	log.Println("=========================================================")

	if *legacyDir == "" {
		log.Fatal("--legacy-dir is required")
	}
	if _, err := os.Stat(*legacyDir); err != nil {
		log.Fatalf("Legacy directory not accessible: %v", err)
	}

	log.Printf("Legacy directory: %s", *legacyDir)
	log.Printf("Data directory: %s", *dataDir)
	log.Printf("Dry run: %v", *dryRun)

	var st *store.Store
	if !*dryRun {
		var err error
		st, err = store.Open(*dataDir)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
	}

	migrated, skipped := 0, 0
	for name, key := range legacyFiles {
		path := filepath.Join(*legacyDir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			log.Printf("✗ %s: %v", name, err)
			skipped++
			continue
		}

		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			log.Printf("✗ %s: not valid JSON, skipping: %v", name, err)
			skipped++
			continue
		}

		if *dryRun {
			log.Printf("Would migrate %s → %s (%d bytes)", name, key.Filename(), len(data))
			migrated++
			continue
		}

		if err := st.Save(key, value); err != nil {
			log.Printf("✗ %s: %v", name, err)
			skipped++
			continue
		}
		log.Printf("✓ %s → %s", name, key.Filename())
		migrated++
	}

	if n, err := migrateAuditLog(); err != nil {
		log.Printf("✗ audit_log.json: %v", err)
	} else if n > 0 {
		log.Printf("✓ audit_log.json → audit.db (%d entries)", n)
	}

	if *dryRun {
		log.Printf("Dry run complete: %d files would be migrated, %d skipped", migrated, skipped)
		return
	}
	log.Printf("Migration complete: %d files migrated, %d skipped", migrated, skipped)
	log.Println("Run 'ballast validate' to verify the migrated store.")
}

// legacyAuditEntry matches the legacy bot's audit log record shape
type legacyAuditEntry struct {
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}

func migrateAuditLog() (int, error) {
	f, err := os.Open(filepath.Join(*legacyDir, "audit_log.json"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	var entries []legacyAuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("not valid JSON: %w", err)
	}

	if *dryRun {
		log.Printf("Would migrate audit_log.json (%d entries)", len(entries))
		return 0, nil
	}

	ledger, err := audit.Open(filepath.Join(*dataDir, "audit.db"))
	if err != nil {
		return 0, err
	}
	defer ledger.Close()

	n := 0
	for _, e := range entries {
		entry := audit.Entry{
			Actor:  e.User,
			Action: e.Action,
			Detail: e.Details,
		}
		if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			entry.Time = t
		}
		if err := ledger.Record(entry); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
