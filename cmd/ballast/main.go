package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/guildops/ballast/pkg/backup"
	"github.com/guildops/ballast/pkg/config"
	"github.com/guildops/ballast/pkg/integrity"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/manager"
	"github.com/guildops/ballast/pkg/metrics"
	"github.com/guildops/ballast/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ballast",
	Short: "Ballast - durability core for the GuildOps event bot",
	Long: `Ballast keeps the GuildOps event bot's data safe: a locked local
JSON store with atomic writes, startup validation and repair, an
eventually consistent mirror to the remote tabular backend, and
scheduled zip backups with one-command restore.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Ballast version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(auditCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the durability core",
	Long: `Run the durability core: validate and repair the store, start the
mirror sync engine, the backup scheduler and the filesystem monitor,
and serve Prometheus metrics until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		core, err := manager.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to start core: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		core.Start(ctx)

		if report := core.StartupReport(); !report.Empty() {
			fmt.Printf("✓ Store validated (%d repairs applied)\n", len(report.Fixes))
		} else {
			fmt.Println("✓ Store validated")
		}
		fmt.Println("✓ Core started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %v", err)
			}
		}()
		fmt.Printf("✓ Metrics on %s\n", cfg.MetricsAddr)

		fmt.Println()
		fmt.Println("Core is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		core.Stop()

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate and repair the resource store",
	Long: `Run the startup integrity pass once and report every repair it
applies. Safe to run repeatedly; a valid store produces no fixes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}

		report := integrity.New(st, nil).Run()
		if report.Empty() {
			fmt.Println("✓ All resources valid")
			return nil
		}

		fmt.Printf("Applied %d repairs:\n", len(report.Fixes))
		for _, fix := range report.Fixes {
			fmt.Printf("  [%s] %s: %s\n", fix.Kind, fix.Key, fix.Detail)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage store backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a backup of the resource store",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openBackups()
		if err != nil {
			return err
		}
		meta, err := mgr.Create(backup.TriggerManual)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Backup created: %d files, %s\n", len(meta.Files), humanize.Bytes(uint64(meta.TotalBytes)))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openBackups()
		if err != nil {
			return err
		}
		entries, err := mgr.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No backups found")
			return nil
		}
		for _, e := range entries {
			when := "unknown"
			trigger := "unknown"
			if e.Meta != nil {
				when = humanize.Time(e.Meta.CreatedAt)
				trigger = string(e.Meta.Trigger)
			}
			fmt.Printf("%-50s  %-10s  %8s  %s\n", e.Name, trigger, humanize.Bytes(uint64(e.Size)), when)
		}
		return nil
	},
}

var backupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backup storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openBackups()
		if err != nil {
			return err
		}
		stats, err := mgr.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Backups: %d\n", stats.Count)
		fmt.Printf("Total size: %s\n", stats.TotalSize)
		if !stats.Newest.IsZero() {
			fmt.Printf("Newest: %s\n", humanize.Time(stats.Newest))
			fmt.Printf("Oldest: %s\n", humanize.Time(stats.Oldest))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "Restore the store from a backup archive",
	Long: `Restore every resource from the named archive, replacing the live
data. A pre-restore snapshot is taken first. Requires --confirm.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		mgr, err := openBackups()
		if err != nil {
			return err
		}
		if err := mgr.Restore(args[0], confirm); err != nil {
			if err == backup.ErrNotConfirmed {
				return fmt.Errorf("restore overwrites live data; re-run with --confirm")
			}
			return err
		}
		fmt.Printf("✓ Restored from %s\n", args[0])
		return nil
	},
}

func openBackups() (*backup.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return backup.New(st, nil, backup.Config{
		Dir:    cfg.BackupDir,
		Keep:   cfg.Backup.Keep,
		MaxAge: cfg.Backup.MaxAge,
	})
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupStatsCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupRestoreCmd.Flags().Bool("confirm", false, "Confirm overwriting live data")
}
