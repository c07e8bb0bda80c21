package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	GroupID: "sync",
	Short:   "Fetch changed lists",
	Long: `Read the change feeds of a database and print the lists that changed.

Only changes since the previous fetch are returned; the change tokens are
kept in the database. Use --write to also store the lists in the inbox.

Formats:
  text   one line per list (default)
  json   list files as a JSON array
  yaml   list files as a YAML sequence`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scopeName, _ := cmd.Flags().GetString("scope")
		format, _ := cmd.Flags().GetString("format")
		write, _ := cmd.Flags().GetBool("write")

		scope, err := record.ParseScope(scopeName)
		if err != nil {
			return err
		}
		if format != "text" && format != "json" && format != "yaml" {
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		lists, err := materialize.FetchChanges[*catalog.ShoppingList](ctx, a.loader, scope, catalog.ListKind)
		if err != nil {
			return fmt.Errorf("failed to fetch %s changes: %w", scope, err)
		}

		files := make([]*catalog.ListFile, 0, len(lists))
		for _, l := range lists {
			f := catalog.FromList(l)
			files = append(files, f)
			if write {
				if _, err := catalog.WriteListFile(cfg.InboxDir(), f); err != nil {
					return err
				}
			}
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(files); err != nil {
				return fmt.Errorf("failed to encode lists: %w", err)
			}
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(files); err != nil {
				return fmt.Errorf("failed to encode lists: %w", err)
			}
			_ = enc.Close()
		default:
			if len(files) == 0 {
				fmt.Printf("%s No changes in %s database\n", ui.RenderMuted("·"), scope)
				return nil
			}
			fmt.Printf("%s %d changed lists in %s database\n\n", ui.RenderAccent("📥"), len(files), scope)
			for _, f := range files {
				fmt.Printf("  %s  %s  %s (%d items)\n", f.ID, f.Date.Format("2006-01-02"), f.Name, len(f.Items))
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringP("scope", "s", "local", "database to read (local or shared)")
	fetchCmd.Flags().StringP("format", "f", "text", "output format (text, json, yaml)")
	fetchCmd.Flags().BoolP("write", "w", false, "also write the lists to the inbox")

	rootCmd.AddCommand(fetchCmd)
}
