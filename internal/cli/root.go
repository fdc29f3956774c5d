/*
PURPOSE:
  Defines the root Cobra command for the kvharness CLI.
  Handles global flags, configuration loading and signal wiring.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface for the launcher and the sweep runner.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Interrupts must reach subcommands as context cancellation so the
    launcher can treat them as a clean shutdown.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/kvharness/main.go
  - Calls: Child commands (serve, sweep, models, config)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.
  - Usage is printed only for argument errors.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/kvharness/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/output"
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string
	// logLevel overrides the configured log level when set
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "kvharness",
		Short: "Launch KV-cache serving configurations and sweep benchmarks against them",
		Long: `kvharness starts an inference server under one of several fixed deployment
profiles and sweeps a KV-cache benchmark across reuse rates or input lengths,
collecting the results into CSV summaries.

Use 'serve --help' and 'sweep --help' for details.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Past argument validation: remaining errors are not usage errors.
			cmd.SilenceUsage = true
			return nil
		},
	}
)

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads the config file and applies the global log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := output.SetLevel(level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kvharness.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
}
