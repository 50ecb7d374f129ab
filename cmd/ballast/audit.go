package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/guildops/ballast/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the administrative audit ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		actor, _ := cmd.Flags().GetString("actor")
		action, _ := cmd.Flags().GetString("action")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ledger, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
		if err != nil {
			return err
		}
		defer ledger.Close()

		entries, err := ledger.List(audit.Query{Actor: actor, Action: action, Limit: limit})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries found")
			return nil
		}

		for _, e := range entries {
			line := fmt.Sprintf("%-15s  %-20s  %-25s", humanize.Time(e.Time), e.Actor, e.Action)
			if e.Resource != "" {
				line += "  " + e.Resource
			}
			if e.Detail != "" {
				line += "  (" + e.Detail + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().Int("limit", 50, "Maximum entries to show")
	auditCmd.Flags().String("actor", "", "Filter by actor")
	auditCmd.Flags().String("action", "", "Filter by action")
}
