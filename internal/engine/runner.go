/*
PURPOSE:
  High-level runner that orchestrates a parameter sweep.
  Probes the server once, then runs the benchmark for every grid point in
  order and collects one record per point.

REQUIREMENTS:
  User-specified:
  - Validating -> ProbingServer -> Iterating(point) -> Finalizing.
  - One log file per attempted point, one CSV row per succeeded point.
  - A failed point never aborts the sweep; it only flips the failure flag.

  Implementation-discovered:
  - Preconditions (server, benchmark executable) are checked before any
    file is created so a refused sweep leaves nothing behind.
  - An operator interrupt stops iteration but still finalizes what exists.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (sweep)
  - Uses: internal/engine (client, benchmark, extract, grid), internal/output

ERROR HANDLING:
  - Logs per-point errors but continues (resilience).
  - Returns an error only for precondition and output I/O failures.

IMPLEMENTATION RULES:
  - Strictly sequential; no goroutines per point.
  - Rows are flushed as soon as the point finishes.

USAGE:
  summary, err := engine.NewRunner(cfg, rc, model.SweepReuse, bundle).Execute(ctx)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/grid.go
  - internal/engine/extract.go

MAINTENANCE:
  - Update iteration logic if parallelism is introduced.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
	"github.com/daryltucker/kvharness/internal/output"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Prober is the pre-flight liveness check.
type Prober interface {
	CheckHealth(ctx context.Context) error
}

// ModelLister reports which models the server is serving.
type ModelLister interface {
	GetModels(ctx context.Context, url string) ([]string, error)
}

// Summary is the outcome of a finished sweep.
type Summary struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
	Records   []model.ResultRecord
	Artifacts []string

	// Interrupted is set when the operator stopped the sweep early.
	Interrupted bool
}

// AnyFailed reports whether the global failure flag was set.
func (s *Summary) AnyFailed() bool {
	return s.Failed > 0 || s.Interrupted
}

// Runner drives one sweep invocation.
type Runner struct {
	Config   *config.Config
	Run      model.RunConfiguration
	Kind     model.SweepKind
	Bundle   model.OutputBundle
	Prober   Prober
	Models   ModelLister
	Executor BenchmarkExecutor
	// LookPath resolves the benchmark executable; exec.LookPath by default.
	LookPath func(string) (string, error)
	// Lenient writes rows with empty fields instead of failing the point.
	Lenient bool
	// Out receives the rendered summary table.
	Out io.Writer
	Now func() time.Time
}

// NewRunner wires a Runner with the real HTTP prober and subprocess executor.
func NewRunner(cfg *config.Config, rc model.RunConfiguration, kind model.SweepKind, bundle model.OutputBundle) *Runner {
	e := New(cfg)
	return &Runner{
		Config:   cfg,
		Run:      rc,
		Kind:     kind,
		Bundle:   bundle,
		Prober:   e,
		Models:   e,
		Executor: &CommandExecutor{Echo: os.Stdout},
		LookPath: exec.LookPath,
		Out:      os.Stdout,
		Now:      time.Now,
	}
}

// Execute runs the sweep state machine.
func (r *Runner) Execute(ctx context.Context) (*Summary, error) {
	points, err := Grid(r.Kind, r.Config.Benchmark)
	if err != nil {
		return nil, err
	}
	modelID, _, err := r.Config.Models.For(r.Run.Size)
	if err != nil {
		return nil, err
	}

	log := output.Logger.WithFields(logrus.Fields{
		"config": r.Run.Name,
		"size":   r.Run.Size,
		"sweep":  r.Kind,
	})

	// ProbingServer
	log.WithField("url", r.Config.Server.HealthURL).Info("Checking server health")
	if err := r.Prober.CheckHealth(ctx); err != nil {
		return nil, err
	}
	if err := r.checkBenchmark(); err != nil {
		return nil, err
	}
	r.checkServedModel(ctx, log, modelID)

	// Iterating
	if err := os.MkdirAll(r.Bundle.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", r.Bundle.Dir, err)
	}
	csvPath := r.Bundle.SummaryPath()
	csvWriter, err := output.NewCSVWriter(csvPath, model.CSVHeader(r.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}
	defer csvWriter.Close()

	jsonPath := r.Bundle.RecordsPath()
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}
	defer jsonWriter.Close()

	summary := &Summary{RunID: uuid.NewString()}
	log = log.WithField("run_id", summary.RunID)
	log.WithFields(logrus.Fields{"points": len(points), "model": modelID}).Info("Starting sweep")

	for _, p := range points {
		if ctx.Err() != nil {
			log.Warn("Sweep interrupted, skipping remaining points")
			summary.Interrupted = true
			break
		}

		rec := r.runPoint(ctx, log, modelID, p)
		rec.RunID = summary.RunID
		summary.Attempted++
		summary.Artifacts = append(summary.Artifacts, rec.LogPath)

		if rec.Succeeded() {
			if err := csvWriter.Write(rec); err != nil {
				return nil, fmt.Errorf("write summary row: %w", err)
			}
		} else {
			summary.Failed++
		}
		if err := jsonWriter.Write(rec); err != nil {
			log.WithError(err).Error("Failed to write record to JSON")
		}
		summary.Records = append(summary.Records, rec)
	}

	// Finalizing
	summary.Succeeded = csvWriter.Rows()
	summary.Artifacts = append(summary.Artifacts, csvPath, jsonPath)
	if err := csvWriter.Close(); err != nil {
		return nil, fmt.Errorf("close summary: %w", err)
	}
	log.WithFields(logrus.Fields{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Sweep finished")

	if r.Out != nil {
		if err := output.PrintSummary(r.Out, csvPath, summary.Artifacts); err != nil {
			log.WithError(err).Warn("Failed to render summary")
		}
	}
	return summary, nil
}

func (r *Runner) runPoint(ctx context.Context, log *logrus.Entry, modelID string, p model.SweepPoint) model.ResultRecord {
	start := r.Now()
	rec := model.ResultRecord{
		Config:    r.Run.String(),
		Point:     p,
		Timestamp: start,
		LogPath:   r.Bundle.LogPath(p),
	}
	plog := log.WithFields(logrus.Fields{
		"point":      p.Slug(),
		"docs":       p.NumDocuments,
		"hit_miss":   p.HitMissRatio,
		"doc_length": p.DocumentLength,
	})
	plog.Info("Running benchmark")

	code, err := r.Executor.Execute(ctx, Invocation{
		Argv:    BenchmarkArgs(r.Config.Benchmark, modelID, p),
		LogPath: rec.LogPath,
		Timeout: r.Config.Benchmark.PointTimeout,
	})
	rec.ExitCode = code
	rec.Duration = r.Now().Sub(start)

	switch {
	case err != nil:
		rec.Error = err.Error()
	case code != 0:
		rec.Error = fmt.Sprintf("benchmark exited with status %d", code)
	}
	if rec.Error != "" {
		plog.WithField("log", rec.LogPath).Error("Benchmark failed: " + rec.Error)
		return rec
	}

	m, err := ExtractFile(rec.LogPath)
	if err != nil {
		rec.Error = err.Error()
		plog.WithError(err).Error("Failed to read benchmark log")
		return rec
	}
	rec.MeanTTFT, rec.QueryTime, rec.PromptCount = m.MeanTTFT, m.QueryTime, m.PromptCount
	rec.Missing = m.Missing()

	if len(rec.Missing) > 0 {
		missing := strings.Join(rec.Missing, ", ")
		if !r.Lenient {
			rec.Error = fmt.Sprintf("benchmark output missing %s (log contract %s)", missing, LogContractVersion)
			plog.WithField("log", rec.LogPath).Error("Extraction failed: " + rec.Error)
			return rec
		}
		plog.WithField("missing", missing).Warn("Benchmark output incomplete, writing empty fields")
	}

	plog.WithFields(logrus.Fields{
		"mean_ttft":    rec.MeanTTFT,
		"query_time":   rec.QueryTime,
		"prompt_count": rec.PromptCount,
		"duration":     rec.Duration.Round(time.Millisecond),
	}).Info("Benchmark succeeded")
	return rec
}

func (r *Runner) checkBenchmark() error {
	cmd := r.Config.Benchmark.Command
	if len(cmd) == 0 {
		return fmt.Errorf("%w: benchmark.command is empty", ErrBenchmarkMissing)
	}
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(cmd[0]); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBenchmarkMissing, cmd[0], err)
	}
	// An interpreter plus script: the script must exist too.
	if len(cmd) > 1 && !strings.HasPrefix(cmd[1], "-") && strings.HasSuffix(cmd[1], ".py") {
		if _, err := os.Stat(cmd[1]); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBenchmarkMissing, cmd[1], err)
		}
	}
	return nil
}

func (r *Runner) checkServedModel(ctx context.Context, log *logrus.Entry, modelID string) {
	if r.Models == nil || r.Config.Server.ModelsURL == "" {
		return
	}
	served, err := r.Models.GetModels(ctx, r.Config.Server.ModelsURL)
	if err != nil {
		log.WithError(err).Debug("Could not list served models")
		return
	}
	if !slices.Contains(served, modelID) {
		log.WithFields(logrus.Fields{"model": modelID, "served": served}).Warn("Sweep model is not among the served models")
	}
}

// IsPrecondition reports whether err is a pre-flight failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrServerUnavailable) || errors.Is(err, ErrBenchmarkMissing)
}
