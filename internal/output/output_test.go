package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/daryltucker/kvharness/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reuseRecord(rate int, ttft string) model.ResultRecord {
	return model.ResultRecord{
		Config: "baseline/8B",
		Point: model.SweepPoint{
			Kind:         model.SweepReuse,
			ReuseRate:    rate,
			HitMissRatio: "3:7",
		},
		MeanTTFT:    ttft,
		QueryTime:   "12.5",
		PromptCount: "40",
	}
}

func TestCSVWriter_HeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	w, err := NewCSVWriter(path, model.CSVHeader(model.SweepReuse))
	require.NoError(t, err)

	require.NoError(t, w.Write(reuseRecord(30, "0.25")))
	assert.Equal(t, 1, w.Rows())

	// Rows are on disk before Close.
	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"Reuse_Rate", "Hit_Miss_Ratio", "Mean_TTFT", "Query_Time", "Prompt_Count"}, rows[0])
	assert.Equal(t, []string{"30", "3:7", "0.25", "12.5", "40"}, rows[1])
}

func TestCSVWriter_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,data\n1,2\n3,4\n"), 0644))

	w, err := NewCSVWriter(path, model.CSVHeader(model.SweepISL))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{model.CSVHeader(model.SweepISL)}, rows)
}

func TestJSONWriter_RoundTripSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewJSONWriter(path)
	require.NoError(t, err)

	failed := reuseRecord(50, "")
	failed.ExitCode = 1
	failed.Error = "benchmark exited with status 1"
	require.NoError(t, w.Write(reuseRecord(10, "0.1")))
	require.NoError(t, w.Write(failed))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Succeeded())
	assert.False(t, recs[1].Succeeded())
	assert.Equal(t, 1, recs[1].ExitCode)
	assert.Equal(t, 50, recs[1].Point.ReuseRate)
}

func TestPrintSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.csv")
	w, err := NewCSVWriter(path, model.CSVHeader(model.SweepReuse))
	require.NoError(t, err)
	require.NoError(t, w.Write(reuseRecord(30, "0.25")))
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, path, []string{path, filepath.Join(dir, "a.log")}))
	out := buf.String()
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "Reuse_Rate")
	assert.Contains(t, out, "0.25")
	assert.Contains(t, out, "a.log")
	assert.NotContains(t, out, "no successful points")
}

func TestPrintSummary_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	w, err := NewCSVWriter(path, model.CSVHeader(model.SweepISL))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, path, nil))
	assert.Contains(t, buf.String(), "no successful points")

	assert.Error(t, PrintSummary(&buf, filepath.Join(t.TempDir(), "missing.csv"), nil))
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, RenderTable(nil))
	out := RenderTable([][]string{{"ISL", "Num_Docs"}, {"6000", "58"}})
	assert.Contains(t, out, "ISL")
	assert.Contains(t, out, "58")
}

func TestSetLevel(t *testing.T) {
	orig := Logger
	defer SetLogger(orig)

	l, hook := test.NewNullLogger()
	SetLogger(l)

	require.NoError(t, SetLevel("warn"))
	Logger.Info("hidden")
	Logger.Warn("shown")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	assert.Error(t, SetLevel("chatty"))
}
