package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/daryltucker/kvharness/internal/launch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel, envFile, dryRun, modelsURL = "", "", "", false, ""
	t.Setenv("KVHARNESS_SERVER_STATE_DIR", filepath.Join(t.TempDir(), "state"))
	t.Setenv("KVHARNESS_SERVER_LOG_DIR", filepath.Join(t.TempDir(), "logs"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeDryRun(t *testing.T) {
	out, err := runCLI(t, "serve", "production", "70B", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "meta-llama/Llama-3.1-70B-Instruct")
	assert.Contains(t, out, "--tensor-parallel-size")
	assert.Contains(t, out, "DYN_KVBM_CPU_CACHE_GB")
	assert.Contains(t, out, "command: vllm serve")
}

func TestServeDryRunEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "site.env")
	writeFile(t, envPath, "HF_HOME=/models/cache\n")

	out, err := runCLI(t, "serve", "baseline", "--dry-run", "--env-file", envPath)
	require.NoError(t, err)
	assert.Contains(t, out, "HF_HOME: /models/cache")
}

func TestServeRejectsBadArguments(t *testing.T) {
	_, err := runCLI(t, "serve")
	assert.ErrorContains(t, err, "missing configuration")

	_, err = runCLI(t, "serve", "turbo")
	assert.Error(t, err)

	_, err = runCLI(t, "serve", "baseline", "profile=true", "sanitize=true", "--dry-run")
	assert.ErrorIs(t, err, launch.ErrUnsupportedCombination)
}

func TestSweepRejectsTRTLLM(t *testing.T) {
	_, err := runCLI(t, "sweep", "reuse", "trtllm")
	assert.Error(t, err)
}

func TestSweepServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/health"
	srv.Close()
	t.Setenv("KVHARNESS_SERVER_HEALTH_URL", url)

	outDir := filepath.Join(t.TempDir(), "out")
	_, err := runCLI(t, "sweep", "isl", "baseline", "--output-dir", outDir)
	assert.ErrorContains(t, err, "start the server first: kvharness serve baseline 8B")
	assert.NoDirExists(t, outDir)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("KVHARNESS_BENCHMARK_OUTPUT_LEN", "256")
	out, err := runCLI(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "health_url")
	assert.Contains(t, out, "output_len: 256")
}

func TestModelsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"meta-llama/Llama-3.1-8B-Instruct"}]}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "models", "--url", srv.URL+"/v1/models")
	require.NoError(t, err)
	assert.Contains(t, out, "- meta-llama/Llama-3.1-8B-Instruct")
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestSweepBenchmarkMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("KVHARNESS_SERVER_HEALTH_URL", srv.URL+"/health")
	t.Setenv("KVHARNESS_BENCHMARK_COMMAND", "/nonexistent/kvbench")

	outDir := filepath.Join(t.TempDir(), "out")
	_, err := runCLI(t, "sweep", "reuse", "baseline", "--output-dir", outDir)
	assert.ErrorContains(t, err, "set benchmark.command")
	assert.NoDirExists(t, outDir)
}

func TestSweepHelpExplainsExtractionFailures(t *testing.T) {
	out, err := runCLI(t, "sweep", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--lenient-extraction")
	assert.Contains(t, out, "exit 1 even though every benchmark process exited 0")
}
