package engine

import (
	"fmt"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
)

// ReuseRates are the reuse-rate percentages of the reuse grid, in order.
var ReuseRates = []int{10, 20, 30, 40, 50, 60, 70, 80, 90}

// ISLValues are the input sequence lengths of the ISL grid, in order.
var ISLValues = []int{6000, 8000, 16000, 32000, 64000, 128000}

// HitMissRatio returns "hits:misses" out of ten for a reuse percentage,
// e.g. 30 -> "3:7".
func HitMissRatio(pct int) string {
	hits := pct / 10
	return fmt.Sprintf("%d:%d", hits, 10-hits)
}

// DocumentCount is max(minDocs, budget/isl) using integer division.
func DocumentCount(budget, isl, minDocs int) int {
	n := budget / isl
	if n < minDocs {
		return minDocs
	}
	return n
}

// ReuseGrid builds the nine reuse-rate points.
func ReuseGrid(cfg config.BenchmarkConfig) []model.SweepPoint {
	points := make([]model.SweepPoint, 0, len(ReuseRates))
	for i, pct := range ReuseRates {
		points = append(points, model.SweepPoint{
			Index:          i,
			Kind:           model.SweepReuse,
			ReuseRate:      pct,
			NumDocuments:   cfg.Reuse.NumDocuments,
			DocumentLength: cfg.Reuse.DocumentLength,
			HitMissRatio:   HitMissRatio(pct),
			RepeatMode:     cfg.Reuse.RepeatMode,
		})
	}
	return points
}

// ISLGrid builds the six input-length points with derived document counts.
func ISLGrid(cfg config.BenchmarkConfig) []model.SweepPoint {
	points := make([]model.SweepPoint, 0, len(ISLValues))
	for i, isl := range ISLValues {
		points = append(points, model.SweepPoint{
			Index:          i,
			Kind:           model.SweepISL,
			ISL:            isl,
			NumDocuments:   DocumentCount(cfg.ISL.TokenBudget, isl, cfg.ISL.MinDocuments),
			DocumentLength: isl,
			HitMissRatio:   cfg.ISL.HitMissRatio,
			RepeatMode:     cfg.ISL.RepeatMode,
		})
	}
	return points
}

// Grid returns the points for kind.
func Grid(kind model.SweepKind, cfg config.BenchmarkConfig) ([]model.SweepPoint, error) {
	switch kind {
	case model.SweepReuse:
		return ReuseGrid(cfg), nil
	case model.SweepISL:
		return ISLGrid(cfg), nil
	}
	return nil, fmt.Errorf("unknown sweep kind %q", kind)
}
