/*
PURPOSE:
  Defines the 'models' subcommand.
  Helps debug connectivity and verify which model a server is serving.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before a long sweep.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.GetModels() (via Engine)

ERROR HANDLING:
  - Returns error if the server cannot be queried.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  kvharness models --url http://gpu-node:8000/v1/models

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"

	"github.com/daryltucker/kvharness/internal/engine"
	"github.com/spf13/cobra"
)

var modelsURL string

var listModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models served by the inference server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url := cfg.Server.ModelsURL
		if modelsURL != "" {
			url = modelsURL
		}

		e := engine.New(cfg)
		fmt.Fprintf(cmd.OutOrStdout(), "Querying %s...\n", url)
		models, err := e.GetModels(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("list models at %s: %w", url, err)
		}
		for _, m := range models {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringVar(&modelsURL, "url", "", "models endpoint (default from config: server.models_url)")
}
