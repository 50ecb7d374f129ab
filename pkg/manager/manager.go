package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/admission"
	"github.com/guildops/ballast/pkg/audit"
	"github.com/guildops/ballast/pkg/backup"
	"github.com/guildops/ballast/pkg/config"
	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/integrity"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/mirror"
	"github.com/guildops/ballast/pkg/monitor"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
	"github.com/guildops/ballast/pkg/syncer"
)

// ErrDenied is returned by Mutate when admission control rejects the
// actor's action. Inspect the Decision for the reason and retry hint.
var ErrDenied = errors.New("manager: action denied by admission control")

// Core wires the durability components together and owns their
// lifecycle. Construction validates and repairs the store before any
// other component can read it; Start brings up the background loops,
// Stop tears them down in reverse order.
type Core struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     *store.Store
	broker    *events.Broker
	validator *integrity.Validator
	report    *resource.Report
	ledger    *audit.Ledger
	limiter   *admission.Limiter
	connector mirror.Connector
	engine    *syncer.Engine
	backups   *backup.Manager
	watcher   *monitor.Monitor

	auditSub events.Subscriber
}

// New builds a core from configuration. The startup integrity pass runs
// here, so a returned Core always sits on a valid store.
func New(cfg *config.Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:    cfg,
		logger: log.WithComponent("core"),
		broker: events.NewBroker(),
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c.store = st

	c.validator = integrity.New(st, c.broker)
	c.report = c.validator.Run()

	ledger, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return nil, err
	}
	c.ledger = ledger

	for _, fix := range c.report.Fixes {
		c.ledger.Record(audit.Entry{
			Actor:    "system",
			Action:   "repair." + string(fix.Kind),
			Resource: fix.Key.String(),
			Detail:   fix.Detail,
		})
	}

	c.limiter = admission.NewLimiter(admission.Limits{
		CommandsPerMinute: cfg.Admission.CommandsPerMinute,
		CommandsPerHour:   cfg.Admission.CommandsPerHour,
		ButtonsPerMinute:  cfg.Admission.ButtonsPerMinute,
		BurstWindow:       cfg.Admission.BurstWindow,
		BurstLimit:        cfg.Admission.BurstLimit,
		Cooldowns:         cfg.Admission.Cooldowns,
	})

	if cfg.Mirror.Enabled {
		c.connector = mirror.NewHTTPConnector(cfg.Mirror.Endpoint, cfg.Mirror.APIKey, cfg.Mirror.Timeout)
	} else {
		c.connector = mirror.NewMemoryConnector()
	}
	c.engine = syncer.New(st, c.connector, c.broker, syncer.Config{
		MinInterval: cfg.Mirror.MinInterval,
		MaxAttempts: cfg.Mirror.MaxRetries,
		BatchSize:   cfg.Mirror.BatchSize,
	})

	backups, err := backup.New(st, c.broker, backup.Config{
		Dir:      cfg.BackupDir,
		Interval: cfg.Backup.Interval,
		Keep:     cfg.Backup.Keep,
		MaxAge:   cfg.Backup.MaxAge,
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}
	c.backups = backups

	watcher, err := monitor.New(st, c.broker)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	c.watcher = watcher
	backups.TrackActivity(watcher.LastActivity)

	return c, nil
}

// Start launches the event broker, sync engine, backup scheduler and
// filesystem monitor. When the mirror is enabled, locally missing
// resources are first bootstrapped from it.
func (c *Core) Start(ctx context.Context) {
	c.broker.Start()
	c.auditSub = c.broker.Subscribe()
	go c.auditEvents()

	if c.cfg.Mirror.Enabled {
		c.engine.Bootstrap(ctx)
	}
	c.engine.Start(ctx)
	c.backups.Start(ctx)
	c.watcher.Start(ctx)

	c.logger.Info().
		Str("data_dir", c.cfg.DataDir).
		Bool("mirror", c.cfg.Mirror.Enabled).
		Int("repairs", len(c.report.Fixes)).
		Msg("core started")
}

// Stop shuts the background loops down in reverse start order and takes
// a final shutdown backup
func (c *Core) Stop() {
	c.watcher.Stop()
	c.backups.Stop()
	c.engine.Stop()

	if _, err := c.backups.Create(backup.TriggerShutdown); err != nil {
		c.logger.Error().Err(err).Msg("shutdown backup failed")
	}

	if c.auditSub != nil {
		c.broker.Unsubscribe(c.auditSub)
	}
	c.broker.Stop()
	if err := c.ledger.Close(); err != nil {
		c.logger.Error().Err(err).Msg("failed to close audit ledger")
	}
	c.logger.Info().Msg("core stopped")
}

// auditEvents mirrors notable broker events into the audit ledger
func (c *Core) auditEvents() {
	notable := map[events.EventType]bool{
		events.EventSyncDropped:    true,
		events.EventBackupRestored: true,
		events.EventExternalWrite:  true,
	}
	for ev := range c.auditSub {
		if !notable[ev.Type] {
			continue
		}
		c.ledger.Record(audit.Entry{
			Actor:    "system",
			Action:   string(ev.Type),
			Resource: ev.Resource.String(),
			Detail:   ev.Message,
		})
	}
}

// Mutate runs an admission-checked read-modify-write cycle on one
// resource. fn receives the current value (or the schema default) and
// returns the value to persist; returning an error abandons the write.
func (c *Core) Mutate(actorID, action string, key resource.Key, fn func(current any) (any, error)) error {
	schema := resource.Lookup(key)
	if schema == nil {
		return fmt.Errorf("manager: unknown resource %q", key)
	}

	decision := c.limiter.Check(actorID, action)
	if !decision.Allowed {
		c.logger.Debug().Str("actor", actorID).Str("action", action).Str("reason", decision.Reason).Msg("mutation denied")
		return fmt.Errorf("%w: %s", ErrDenied, decision.Message)
	}

	current := c.store.Load(key, schema.Default())
	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := c.store.Save(key, next); err != nil {
		return err
	}

	c.ledger.Record(audit.Entry{
		Actor:    actorID,
		Action:   action,
		Resource: key.String(),
	})
	return nil
}

// Store returns the resource store
func (c *Core) Store() *store.Store { return c.store }

// Broker returns the event broker
func (c *Core) Broker() *events.Broker { return c.broker }

// Limiter returns the admission controller
func (c *Core) Limiter() *admission.Limiter { return c.limiter }

// Backups returns the backup manager
func (c *Core) Backups() *backup.Manager { return c.backups }

// Audit returns the audit ledger
func (c *Core) Audit() *audit.Ledger { return c.ledger }

// Syncer returns the sync engine
func (c *Core) Syncer() *syncer.Engine { return c.engine }

// StartupReport returns the fixes applied by the startup validation
func (c *Core) StartupReport() *resource.Report { return c.report }
