package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchmarkArgs_FlagContract(t *testing.T) {
	cfg := config.DefaultConfig().Benchmark
	cfg.Command = []string{"python3", "bench.py"}
	p := model.SweepPoint{Kind: model.SweepReuse, ReuseRate: 30, NumDocuments: 20, DocumentLength: 10000, HitMissRatio: "3:7", RepeatMode: "random"}

	argv := BenchmarkArgs(cfg, "meta-llama/Llama-3.1-8B-Instruct", p)
	assert.Equal(t, []string{
		"python3", "bench.py",
		"--model", "meta-llama/Llama-3.1-8B-Instruct",
		"--num-documents", "20",
		"--document-length", "10000",
		"--output-len", "100",
		"--repeat-count", "2",
		"--repeat-mode", "random",
		"--hit-miss-ratio", "3:7",
		"--max-inflight-requests", "4",
	}, argv)
	assert.Equal(t, []string{"python3", "bench.py"}, cfg.Command, "command slice is not mutated")
}

func TestCommandExecutor_TeesOutputAndReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "point.log")
	var echo bytes.Buffer
	ex := &CommandExecutor{Echo: &echo}

	code, err := ex.Execute(context.Background(), Invocation{
		Argv:    []string{"/bin/sh", "-c", "echo 'Query round time: 1.5s'; echo oops >&2; exit 3"},
		LogPath: logPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	body, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Query round time: 1.5s")
	assert.Contains(t, string(body), "oops")
	assert.Contains(t, echo.String(), "Query round time: 1.5s")
}

func TestCommandExecutor_StartFailureStillLeavesLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "point.log")
	ex := &CommandExecutor{}

	code, err := ex.Execute(context.Background(), Invocation{
		Argv:    []string{"/definitely/not/a/benchmark"},
		LogPath: logPath,
	})
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.FileExists(t, logPath)
}

func TestCommandExecutor_PointTimeout(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "point.log")
	ex := &CommandExecutor{}

	start := time.Now()
	_, err := ex.Execute(context.Background(), Invocation{
		Argv:    []string{"/bin/sh", "-c", "sleep 30"},
		LogPath: logPath,
		Timeout: 200 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrPointTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}
