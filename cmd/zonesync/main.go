// Command zonesync syncs shopping lists through a record store with
// zone-scoped change feeds and share grants.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/config"
	"github.com/mschirtzinger/zonesync/internal/logging"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

// Version is set at build time.
var Version = "dev"

var (
	v         = config.NewViper()
	cfg       = config.Default()
	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "zonesync",
	Short: "Sync shopping lists through zones, change tokens and shares",
	Long: `zonesync keeps shopping lists in a local record store organised into zones.

Lists are pushed as record trees, fetched back through per-database and
per-zone change feeds, and shared with other users through share grants.
The daemon mirrors the store into an inbox directory and pushes anything
dropped into an outbox directory.

Settings come from zonesync.toml, ZONESYNC_* environment variables and
flags, in increasing priority.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			v.SetConfigFile(path)
		}

		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded

		l, closer, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			File:       cfg.LogFile(),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			JSON:       cfg.Log.JSON,
		}, os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		logCloser = closer
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "sharing", Title: "Sharing:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./zonesync.toml or .zonesync/zonesync.toml)")
	flags.String("data-dir", cfg.DataDir, "directory holding the database and list directories")
	flags.String("log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	flags.Int("page-size", cfg.PageSize, "zones or records per change page")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("page_size", flags.Lookup("page-size"))
}

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
