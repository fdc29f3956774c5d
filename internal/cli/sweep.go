/*
PURPOSE:
  Defines the 'sweep' subcommands (Sweep Runner).
  Runs the benchmark across the reuse-rate or input-length grid.

REQUIREMENTS:
  User-specified:
  - sweep reuse|isl <config> [model_size] [--output-dir <path>] [--prefix <name>]
  - Exit 0 if all grid points succeeded, 1 otherwise.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to a copy of the config, never to shared state.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Runner
  - Uses: internal/config, internal/model

ERROR HANDLING:
  - Precondition failures get operator guidance (start the server first).
  - Point failures are reported through *engine.ExitError with code 1.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Validate Args -> Load Config -> Override -> Runner.Execute.

USAGE:
  kvharness sweep reuse production 70B --prefix prod70

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/daryltucker/kvharness/internal/engine"
	"github.com/daryltucker/kvharness/internal/model"
	"github.com/spf13/cobra"
)

type sweepFlags struct {
	outputDir    string
	prefix       string
	pointTimeout time.Duration
	lenient      bool
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep the KV-cache benchmark across a parameter grid",
	Long: `Runs the benchmark once per grid point against an already running server
and collects Mean TTFT, query time and prompt count into a CSV summary.

Grids:
  reuse  reuse rates 10..90% (hit:miss 1:9 .. 9:1)
  isl    input lengths 6000..128000 tokens, documents = max(4, 350000/isl)

A point fails when the benchmark exits nonzero, times out, or its output
lacks one of Mean TTFT, query time or prompt count. The last case means a
sweep can exit 1 even though every benchmark process exited 0; pass
--lenient-extraction to write empty fields instead.

Configurations: baseline, production, connector, lmcache
Start the server first with 'kvharness serve <config> [model_size]'.`,
}

func newSweepCmd(kind model.SweepKind, short, example string) *cobra.Command {
	var f sweepFlags
	cmd := &cobra.Command{
		Use:     string(kind) + " <config> [model_size]",
		Short:   short,
		Example: example,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, kind, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "output directory for logs and summary (default ./results)")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "file name prefix (default {config}_{model_size}_{timestamp})")
	cmd.Flags().DurationVar(&f.pointTimeout, "point-timeout", 0, "kill a benchmark point after this long (0 = no limit)")
	cmd.Flags().BoolVar(&f.lenient, "lenient-extraction", false, "write empty fields instead of failing points whose output lacks a metric")
	return cmd
}

func runSweep(cmd *cobra.Command, kind model.SweepKind, f sweepFlags, args []string) error {
	size := ""
	if len(args) > 1 {
		size = args[1]
	}
	rc, err := model.ParseSweepConfiguration(args[0], size)
	if err != nil {
		return err
	}

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := *loaded
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if cmd.Flags().Changed("point-timeout") {
		cfg.Benchmark.PointTimeout = f.pointTimeout
	}

	prefix := f.prefix
	if prefix == "" {
		prefix = model.DefaultPrefix(rc, time.Now())
	}
	bundle := model.OutputBundle{Dir: cfg.OutputDir, Prefix: prefix}

	runner := engine.NewRunner(&cfg, rc, kind, bundle)
	runner.Lenient = f.lenient
	runner.Out = cmd.OutOrStdout()

	summary, err := runner.Execute(cmd.Context())
	if err != nil {
		if engine.IsPrecondition(err) {
			return preconditionHint(err, rc)
		}
		return err
	}
	if summary.AnyFailed() {
		return &engine.ExitError{
			Code: 1,
			Err:  fmt.Errorf("%d of %d attempted points failed (see %s)", summary.Failed, summary.Attempted, bundle.RecordsPath()),
		}
	}
	return nil
}

// preconditionHint tells the operator how to fix a refused sweep.
func preconditionHint(err error, rc model.RunConfiguration) error {
	if errors.Is(err, engine.ErrServerUnavailable) {
		return fmt.Errorf("%w\nstart the server first: kvharness serve %s %s", err, rc.Name, rc.Size)
	}
	return fmt.Errorf("%w\nset benchmark.command in kvharness.yaml or KVHARNESS_BENCHMARK_COMMAND", err)
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.AddCommand(newSweepCmd(model.SweepReuse,
		"Sweep cache reuse rates 10-90%",
		`  kvharness sweep reuse production 70B
  kvharness sweep reuse baseline --output-dir /tmp/sweeps --prefix base_try2`))
	sweepCmd.AddCommand(newSweepCmd(model.SweepISL,
		"Sweep input sequence lengths 6k-128k",
		`  kvharness sweep isl lmcache
  kvharness sweep isl connector 70B --point-timeout 45m`))
}
