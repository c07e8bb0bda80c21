package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
	"github.com/mschirtzinger/zonesync/internal/config"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the data directory, database and shopping zone",
	Long: `Initialize zonesync in the data directory.

This:
  1. Creates the data, inbox and outbox directories
  2. Creates the database schema
  3. Checks the account and saves the shopping zone
  4. Writes a default zonesync.toml unless one exists`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		for _, dir := range []string{cfg.DataDir, cfg.InboxDir(), cfg.OutboxDir()} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := share.SetupUserPermissions(ctx, a.db, catalog.ListKind); err != nil {
			return fmt.Errorf("failed to set up permissions: %w", err)
		}

		configPath := filepath.Join(cfg.DataDir, config.FileName)
		wroteConfig := false
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := cfg.Write(configPath, false); err != nil {
				return err
			}
			wroteConfig = true
		}

		fmt.Printf("%s Initialized zonesync in %s\n", ui.RenderPass("✓"), cfg.DataDir)
		fmt.Printf("   Database: %s\n", a.db.Path())
		fmt.Printf("   Inbox: %s\n", cfg.InboxDir())
		fmt.Printf("   Outbox: %s\n", cfg.OutboxDir())
		if wroteConfig {
			fmt.Printf("   Config: %s\n", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
