package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
)

// ErrBenchmarkMissing is returned when the benchmark executable cannot be found.
var ErrBenchmarkMissing = errors.New("benchmark executable not found")

// ErrPointTimeout marks a benchmark invocation killed by the per-point timeout.
var ErrPointTimeout = errors.New("benchmark exceeded point timeout")

// Invocation is one benchmark subprocess run.
type Invocation struct {
	Argv    []string
	LogPath string
	Timeout time.Duration
}

// BenchmarkExecutor runs a benchmark invocation to completion.
// A nonzero exit is reported through the exit code with a nil error;
// err is reserved for failures to start, timeouts and log I/O.
type BenchmarkExecutor interface {
	Execute(ctx context.Context, inv Invocation) (int, error)
}

// BenchmarkArgs builds the argv for one sweep point.
func BenchmarkArgs(cfg config.BenchmarkConfig, modelID string, p model.SweepPoint) []string {
	argv := append([]string{}, cfg.Command...)
	return append(argv,
		"--model", modelID,
		"--num-documents", strconv.Itoa(p.NumDocuments),
		"--document-length", strconv.Itoa(p.DocumentLength),
		"--output-len", strconv.Itoa(cfg.OutputLen),
		"--repeat-count", strconv.Itoa(cfg.RepeatCount),
		"--repeat-mode", p.RepeatMode,
		"--hit-miss-ratio", p.HitMissRatio,
		"--max-inflight-requests", strconv.Itoa(cfg.MaxInflightRequests),
	)
}

// CommandExecutor runs benchmarks as local subprocesses, tee'ing their
// combined output into the invocation log and Echo.
type CommandExecutor struct {
	Echo io.Writer
	Env  []string
}

// Execute implements BenchmarkExecutor.
func (ce *CommandExecutor) Execute(ctx context.Context, inv Invocation) (int, error) {
	if len(inv.Argv) == 0 {
		return -1, fmt.Errorf("empty benchmark command")
	}
	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return -1, fmt.Errorf("create point log %s: %w", inv.LogPath, err)
	}
	defer logFile.Close()

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var sink io.Writer = logFile
	if ce.Echo != nil {
		sink = io.MultiWriter(logFile, ce.Echo)
	}

	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Stdout = sink
	cmd.Stderr = sink
	cmd.WaitDelay = 5 * time.Second
	if ce.Env != nil {
		cmd.Env = ce.Env
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start benchmark: %w", err)
	}
	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}

	if inv.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return -1, fmt.Errorf("%w (%s)", ErrPointTimeout, inv.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
