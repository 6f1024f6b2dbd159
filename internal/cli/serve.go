package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hermes/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Serve /api/data, /api/query, /api/ws/chat, the /ops endpoints and /metrics
until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.HTTPPort = port
		}
		application, err := app.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return application.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Listen address, overrides HTTP_PORT (e.g. :8000)")
}
