package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hermes/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer one query against the configured dataset and print the payload",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		application, err := app.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer application.Close()

		ctx := cmd.Context()
		application.Start(ctx)
		st, err := application.Service().Ask(ctx, "cli", strings.Join(args, " "), nil)
		if err != nil {
			return err
		}

		out := st.Response
		if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, st.Response, "", "  "); err != nil {
				return fmt.Errorf("indent payload: %w", err)
			}
			out = buf.Bytes()
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("pretty", false, "Indent the JSON payload")
}
