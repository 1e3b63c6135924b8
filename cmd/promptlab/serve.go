package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/server"
)

var (
	serveHost    string
	servePort    string
	serveBackend string
	serveDebug   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the promptlab server",
	Long: `Start the promptlab HTTP server.

The store backend comes from store.backend in the config:
  defra   DefraDB in a Docker container, started and stopped with the server
  sql     gorm over sqlite (default ~/.promptlab/promptlab.db), mysql or postgres
  memory  nothing persisted

Changes to the llm section of the config file are picked up without a
restart. Only one server may use a home directory at a time.

Examples:
  promptlab serve                    # Start on default port 8080
  promptlab serve --port 3000        # Start on custom port
  promptlab serve --backend memory   # Throwaway session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := slog.LevelInfo
		if serveDebug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cm.SetLogger(logger)
		if f := cm.ConfigFile(); f != "" {
			logger.Info("using config file", "path", f)
			cm.WatchConfig()
		}

		settings := *cm.Get()
		if serveBackend != "" {
			settings.Store.Backend = serveBackend
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Settings:      &settings,
			ConfigManager: cm,
			Home:          h,
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
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Store backend override: defra, sql or memory")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}
