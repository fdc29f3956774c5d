/*
PURPOSE:
  Defines the 'serve' subcommand (Server Launcher).
  Resolves a deployment profile into a LaunchSpec and runs it in the foreground.

REQUIREMENTS:
  User-specified:
  - serve <config> [model_size] [profile=..] [sanitize=..] [eager=..]
  - Exit 1 on missing/invalid config; the server's own exit status otherwise.

  Implementation-discovered:
  - --dry-run prints the resolved spec without touching processes or directories.
  - --env-file layers site-specific variables over the profile env.

ARCHITECTURE INTEGRATION:
  - Calls: internal/launch.ParseArgs, internal/launch.Resolver, internal/engine.Supervisor
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if args, config or env file are invalid, or the server fails to start.

IMPLEMENTATION RULES:
  - Logic: Load Config -> Parse Args -> Resolve -> Supervise.

USAGE:
  kvharness serve production 70B sanitize=racecheck

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/launch/resolver.go
  - internal/engine/supervisor.go

MAINTENANCE:
  - Update when adding new launch toggles.
*/

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/daryltucker/kvharness/internal/engine"
	"github.com/daryltucker/kvharness/internal/launch"
	"github.com/daryltucker/kvharness/internal/output"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	envFile string
	dryRun  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve <config> [model_size] [profile=true|false] [sanitize=true|false|memcheck|racecheck|initcheck] [eager=true|false]",
	Short: "Start the inference server under a named configuration",
	Long: `Starts the inference server in the foreground under one of the fixed deployment
profiles. Any instance started by a previous 'serve' is stopped first.

Configurations: baseline, production, connector, lmcache, trtllm
Model sizes:    8B (default, 1 GPU), 70B (4 GPUs)

profile=true wraps the server with nsys; sanitize=... wraps it with
compute-sanitizer (true means memcheck). The two cannot be combined.
Server output is shown on the terminal and copied to a timestamped log.`,
	Example: `  # Baseline vLLM without prefix caching
  kvharness serve baseline

  # Production profile on the 70B model
  kvharness serve production 70B

  # Race-check the connector profile in eager mode
  kvharness serve connector sanitize=racecheck eager=true

  # Show what would be run
  kvharness serve lmcache 70B --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, opts, err := launch.ParseArgs(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if envFile != "" {
			extra, err := godotenv.Read(envFile)
			if err != nil {
				return fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
			opts.ExtraEnv = extra
			output.Logger.WithField("file", envFile).WithField("vars", len(extra)).Debug("Loaded environment overrides")
		}
		opts.DryRun = dryRun

		spec, err := launch.NewResolver(cfg).Resolve(rc, opts, time.Now())
		if err != nil {
			return err
		}

		if dryRun {
			body, err := yaml.Marshal(spec)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(body))
			fmt.Fprintf(cmd.OutOrStdout(), "command: %s\n", strings.Join(spec.Command(), " "))
			return nil
		}

		return engine.NewSupervisor(cfg).Run(cmd.Context(), spec)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file with extra server environment variables")
	serveCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resolved launch spec and exit")
}
