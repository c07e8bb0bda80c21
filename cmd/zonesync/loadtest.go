package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/loadtest"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Measure concurrent push and read latency",
	Long: `Run a load test against a scratch database.

Simulated devices push shopping lists concurrently while reading records
back. When all pushes are done the change feed is read once and must return
every pushed list and item. The configured database is never touched.

Examples:
  # Default run (10 devices x 10 lists x 5 items)
  zonesync loadtest

  # Heavier run, machine-readable output
  zonesync loadtest --devices 50 --lists 20 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadtest.Options{PageSize: cfg.PageSize}
		opts.Devices, _ = cmd.Flags().GetInt("devices")
		opts.ListsPerDevice, _ = cmd.Flags().GetInt("lists")
		opts.ItemsPerList, _ = cmd.Flags().GetInt("items")
		opts.ReadsPerPush, _ = cmd.Flags().GetInt("reads")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		dir, err := os.MkdirTemp("", "zonesync-loadtest-*")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		if !jsonOutput {
			fmt.Printf("%s Running load test...\n\n", ui.RenderAccent("⏱"))
		}

		res, err := loadtest.Run(cmd.Context(), filepath.Join(dir, "loadtest.db"), opts, &logger)
		if err != nil {
			return fmt.Errorf("load test failed: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			return nil
		}

		res.Print(os.Stdout)
		fmt.Printf("\n%s Change feed matched every push\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	defaults := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("devices", defaults.Devices, "number of concurrent devices")
	loadtestCmd.Flags().Int("lists", defaults.ListsPerDevice, "lists pushed per device")
	loadtestCmd.Flags().Int("items", defaults.ItemsPerList, "items per list")
	loadtestCmd.Flags().Int("reads", defaults.ReadsPerPush, "record reads after each push")
	loadtestCmd.Flags().Bool("json", false, "output the result as JSON")

	rootCmd.AddCommand(loadtestCmd)
}
