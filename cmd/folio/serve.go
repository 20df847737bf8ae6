package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

The server connects to Postgres, object storage, and optionally an AMQP
broker and Redis, then runs the page-generation worker pool alongside the
HTTP API.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes store and pool status)

Examples:
  folio serve                    # Start on default port 8080
  folio serve --port 3000        # Start on custom port
  folio serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		mgr.OnChange(func(c *config.Config) {
			logger.Info("configuration reloaded")
		})
		mgr.WatchConfig()

		// Flags override the config file when set explicitly.
		cfg := mgr.Get()
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		srv, err := server.New(server.Config{
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
