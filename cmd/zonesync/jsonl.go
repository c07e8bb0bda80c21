package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "sync",
	Short:   "Split a JSONL file of lists into the outbox",
	Long: `Import lists from a JSONL file, one list per line.

Each list is written as its own file into the outbox (or --to), where a
running daemon picks it up and pushes it. Lines carrying share_title are
shared instead of pushed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")
		if to == "" {
			to = cfg.OutboxDir()
		}

		res, err := catalog.ImportJSONL(catalog.ImportOptions{
			From:   args[0],
			To:     to,
			DryRun: dryRun,
			Backup: backup,
		})
		if err != nil {
			return err
		}

		for _, msg := range res.Errors {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), msg)
		}
		if dryRun {
			fmt.Printf("%s Dry run: %d lists, %d items would be written to %s\n", ui.RenderAccent("🔍"), res.Lists, res.Items, to)
			return nil
		}
		fmt.Printf("%s Imported %d lists (%d items) into %s\n", ui.RenderPass("✓"), res.Lists, res.Items, to)
		if res.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", res.BackupCreated)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d lists could not be imported", len(res.Errors))
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Write the inbox lists as JSONL",
	Long: `Export every list file in the inbox (or --from) as JSONL, one list per
line, to stdout or --output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		output, _ := cmd.Flags().GetString("output")
		if from == "" {
			from = cfg.InboxDir()
		}

		w := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		n, err := catalog.ExportJSONL(from, w, &logger)
		if err != nil {
			return err
		}
		if output != "" {
			fmt.Printf("%s Exported %d lists to %s\n", ui.RenderPass("✓"), n, output)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("to", "", "directory to write list files to (default: outbox)")
	importCmd.Flags().Bool("dry-run", false, "validate without writing")
	importCmd.Flags().Bool("backup", false, "copy the input file aside first")

	exportCmd.Flags().String("from", "", "directory to read list files from (default: inbox)")
	exportCmd.Flags().StringP("output", "o", "", "file to write (default: stdout)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}
