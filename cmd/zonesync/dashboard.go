package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/dashboard"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the WebSocket dashboard on its own",
	Long: `Start a WebSocket dashboard server without the daemon.

Sync activity is only broadcast while the daemon runs with --dashboard; a
standalone server is useful for checking that clients can connect.

WebSocket messages include:
- sync_complete: A database was polled
- item_pushed: A list was pushed from the outbox
- share_created: A list was shared
- sync_error: A poll or push failed
- stats: Running totals, also sent on connect

Example usage:
  zonesync dashboard                   # Start on the configured port
  zonesync dashboard --port 9000       # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   port,
			Logger: &logger,
		})
		dashboard.NewHandler(server, &logger)

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		addr := server.Addr()
		fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("📡"), addr)
		fmt.Printf("   Feed: ws://%s/ws\n", addr)
		fmt.Printf("   Health: http://%s/health\n", addr)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		if err := server.Stop(); err != nil {
			return fmt.Errorf("dashboard shutdown failed: %w", err)
		}
		fmt.Printf("%s Dashboard stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "port to listen on (default from config)")

	rootCmd.AddCommand(dashboardCmd)
}
