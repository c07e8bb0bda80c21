package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/daemon"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/dashboard"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Pushes every list file already waiting in the outbox
  2. Polls the change feeds and writes changed lists to the inbox
  3. Watches the outbox and pushes files once they stop changing
  4. Shares files that carry a share_title instead of just pushing them

With --dashboard the daemon also serves a WebSocket feed of its activity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("dashboard") {
			cfg.Dashboard.Enabled, _ = cmd.Flags().GetBool("dashboard")
		}
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		scopes, err := cfg.Scopes()
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		dcfg := &daemon.Config{
			PollInterval:     cfg.Daemon.PollInterval,
			DebounceInterval: cfg.Daemon.Debounce,
			Scopes:           scopes,
			Logger:           &logger,
		}

		var server *dashboard.Server
		if cfg.Dashboard.Enabled {
			server = dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   cfg.Dashboard.Port,
				Logger: &logger,
			})
			dcfg.Notifier = dashboard.NewHandler(server, &logger)
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() { _ = server.Stop() }()
		}

		d, err := daemon.NewWithConfig(a.loader, a.coordinator, cfg.InboxDir(), cfg.OutboxDir(), dcfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Inbox: %s\n", cfg.InboxDir())
		fmt.Printf("   Outbox: %s\n", cfg.OutboxDir())
		fmt.Printf("   Database: %s\n", a.db.Path())
		fmt.Printf("   Poll interval: %s\n", cfg.Daemon.PollInterval)
		if server != nil {
			fmt.Printf("   Dashboard: http://%s\n", server.Addr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		fmt.Printf("%s Daemon stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 0, "dashboard port (default from config)")

	rootCmd.AddCommand(daemonCmd)
}
