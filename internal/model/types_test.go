package model

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunConfiguration(t *testing.T) {
	rc, err := ParseRunConfiguration("production", "70B")
	require.NoError(t, err)
	assert.Equal(t, ConfigProduction, rc.Name)
	assert.Equal(t, Size70B, rc.Size)

	rc, err = ParseRunConfiguration("trtllm", "")
	require.NoError(t, err)
	assert.Equal(t, Size8B, rc.Size, "size defaults to 8B")

	_, err = ParseRunConfiguration("turbo", "8B")
	assert.ErrorContains(t, err, "unknown configuration")

	_, err = ParseRunConfiguration("baseline", "13B")
	assert.ErrorContains(t, err, "invalid model size")
}

func TestParseSweepConfiguration_RejectsTRTLLM(t *testing.T) {
	_, err := ParseSweepConfiguration("trtllm", "8B")
	require.Error(t, err)

	for _, c := range SweepConfigs {
		_, err := ParseSweepConfiguration(string(c), "")
		assert.NoError(t, err, c)
	}
}

func TestLaunchSpec_CommandAndEnviron(t *testing.T) {
	spec := &LaunchSpec{
		Executable: "vllm",
		Args:       []string{"serve", "m", "--tensor-parallel-size", "4"},
		Env:        map[string]string{"B": "2", "A": "1"},
	}
	assert.Equal(t, []string{"vllm", "serve", "m", "--tensor-parallel-size", "4"}, spec.Command())
	assert.Equal(t, []string{"A=1", "B=2"}, spec.Environ())
	assert.True(t, spec.HasArg("--tensor-parallel-size"))
	assert.Equal(t, "4", spec.ArgValue("--tensor-parallel-size"))
	assert.Equal(t, "", spec.ArgValue("--missing"))

	spec.Wrapper = &Wrapper{Tool: "nsys", Args: []string{"profile"}}
	assert.Equal(t, []string{"nsys", "profile", "vllm"}, spec.Command()[:3])
}

func TestOutputBundle_Naming(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	prefix := DefaultPrefix(RunConfiguration{Name: ConfigLMCache, Size: Size70B}, now)
	assert.Equal(t, "lmcache_70B_20260304_050607", prefix)

	b := OutputBundle{Dir: "out", Prefix: prefix}
	reuse := SweepPoint{Kind: SweepReuse, ReuseRate: 30, HitMissRatio: "3:7"}
	isl := SweepPoint{Kind: SweepISL, ISL: 64000, NumDocuments: 5}

	assert.Equal(t, filepath.Join("out", prefix+"_reuse30.log"), b.LogPath(reuse))
	assert.Equal(t, filepath.Join("out", prefix+"_isl64000.log"), b.LogPath(isl))
	assert.Equal(t, filepath.Join("out", prefix+"_summary.csv"), b.SummaryPath())
	assert.Equal(t, filepath.Join("out", prefix+"_results.jsonl"), b.RecordsPath())
}

func TestResultRecord_CSVRow(t *testing.T) {
	rec := ResultRecord{
		Point:       SweepPoint{Kind: SweepISL, ISL: 128000, NumDocuments: 4},
		MeanTTFT:    "1.25",
		QueryTime:   "40.1",
		PromptCount: "8",
	}
	assert.Equal(t, []string{"128000", "4", "1.25", "40.1", "8"}, rec.CSVRow())
	assert.True(t, rec.Succeeded())

	assert.Equal(t, []string{"Reuse_Rate", "Hit_Miss_Ratio", "Mean_TTFT", "Query_Time", "Prompt_Count"}, CSVHeader(SweepReuse))
	assert.Equal(t, []string{"ISL", "Num_Docs", "Mean_TTFT", "Query_Time", "Prompt_Count"}, CSVHeader(SweepISL))
}
