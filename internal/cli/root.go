// Package cli holds the hermes cobra commands.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hermes/internal/config"
	"hermes/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "hermes answers natural-language questions about shipment data",
	Long: `hermes turns a free-form logistics question into a chart, a table and a
short summary over the configured shipment dataset.

Configuration comes from .env, config/hermes.yaml (CONFIG_PATH) and the
environment, in increasing order of precedence.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("dataset", "", "Override DATASET_PATH")
	rootCmd.PersistentFlags().Bool("no-llm", false, "Disable the LLM capability and use local heuristics only")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}

// loadConfig applies the persistent flag overrides on top of config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if path, _ := cmd.Flags().GetString("dataset"); path != "" {
		cfg.DatasetPath = path
	}
	if off, _ := cmd.Flags().GetBool("no-llm"); off {
		cfg.LLM.Enabled = false
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return cfg, logger, nil
}
