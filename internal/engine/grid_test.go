package engine

import (
	"testing"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHitMissRatio(t *testing.T) {
	want := map[int]string{
		10: "1:9", 20: "2:8", 30: "3:7", 40: "4:6", 50: "5:5",
		60: "6:4", 70: "7:3", 80: "8:2", 90: "9:1",
	}
	for pct, ratio := range want {
		assert.Equal(t, ratio, HitMissRatio(pct), "pct=%d", pct)
	}
}

func TestDocumentCount(t *testing.T) {
	want := map[int]int{
		6000:   58,
		8000:   43,
		16000:  21,
		32000:  10,
		64000:  5,
		128000: 4, // 350000/128000 = 2, raised to the minimum
	}
	for isl, docs := range want {
		assert.Equal(t, docs, DocumentCount(350000, isl, 4), "isl=%d", isl)
	}
}

func TestReuseGrid(t *testing.T) {
	cfg := config.DefaultConfig().Benchmark
	points := ReuseGrid(cfg)
	require.Len(t, points, 9)

	for i, p := range points {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, model.SweepReuse, p.Kind)
		assert.Equal(t, (i+1)*10, p.ReuseRate)
		assert.Equal(t, cfg.Reuse.NumDocuments, p.NumDocuments)
		assert.Equal(t, cfg.Reuse.DocumentLength, p.DocumentLength)
	}
	assert.Equal(t, "3:7", points[2].HitMissRatio)
}

func TestISLGrid(t *testing.T) {
	cfg := config.DefaultConfig().Benchmark
	points := ISLGrid(cfg)
	require.Len(t, points, 6)

	var isls []int
	for _, p := range points {
		isls = append(isls, p.ISL)
		assert.Equal(t, p.ISL, p.DocumentLength)
		assert.GreaterOrEqual(t, p.NumDocuments, 4)
	}
	assert.Equal(t, ISLValues, isls)
	assert.Equal(t, 5, points[4].NumDocuments)
	assert.Equal(t, 4, points[5].NumDocuments)
}

func TestGrid_UnknownKind(t *testing.T) {
	_, err := Grid("latency", config.DefaultConfig().Benchmark)
	assert.Error(t, err)
}
