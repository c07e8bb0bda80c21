package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "setup",
	Short:   "Show database status",
	Long: `Display the state of the local database.

Shows:
  - Database location, size and modification time
  - Current change version and the registered item kinds
  - Record and zone counts per database`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := cfg.DatabasePath()

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s zonesync not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'zonesync init' to create %s\n\n", path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check database: %w", err)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		version, err := a.db.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to read version: %w", err)
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("📊"), ui.RenderHeader("zonesync status"))
		fmt.Printf("Location: %s\n", path)
		fmt.Printf("Size: %s\n", ui.FormatSize(info.Size()))
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Printf("Version: %d\n", version)
		fmt.Printf("Kinds: %s\n", strings.Join(a.registry.Names(), ", "))

		for _, scope := range []record.Scope{record.ScopeLocal, record.ScopeShared} {
			records, err := a.db.RecordCount(ctx, scope)
			if err != nil {
				return fmt.Errorf("failed to count %s records: %w", scope, err)
			}
			zones, err := a.db.ZoneCount(ctx, scope)
			if err != nil {
				return fmt.Errorf("failed to count %s zones: %w", scope, err)
			}
			fmt.Printf("%s: %d records in %d zones\n", scope, records, zones)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
