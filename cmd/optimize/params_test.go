package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
)

func TestParamVectorApplyToConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pv := NewParamVector(components.SpeciesGrazer, cfg)

	values := pv.DefaultVector()
	values[0] = 99 // separation, clamped to its upper bound
	values[5] = 30 // vision range
	if err := pv.ApplyToConfig(cfg, values); err != nil {
		t.Fatalf("ApplyToConfig: %v", err)
	}
	sc := cfg.SpeciesPolicy(components.SpeciesGrazer)
	if sc.Weights.Separation != pv.Specs[0].Max {
		t.Errorf("separation = %v, want clamped %v", sc.Weights.Separation, pv.Specs[0].Max)
	}
	if sc.VisionRange != 30 {
		t.Errorf("vision range = %v, want 30", sc.VisionRange)
	}
}

func TestParamVectorNormalizeBounds(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pv := NewParamVector(components.SpeciesGrazer, cfg)
	lo := make([]float64, pv.Dim())
	hi := make([]float64, pv.Dim())
	for i, s := range pv.Specs {
		lo[i], hi[i] = s.Min, s.Max
	}
	for i, v := range pv.Normalize(lo) {
		if v != 0 {
			t.Errorf("%s: normalized min = %v", pv.Specs[i].Name, v)
		}
	}
	for i, v := range pv.Normalize(hi) {
		if v != 1 {
			t.Errorf("%s: normalized max = %v", pv.Specs[i].Name, v)
		}
	}
}

func TestFlockGeometry(t *testing.T) {
	square := [][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	if d := diameter(square); math.Abs(d-2*math.Sqrt2) > 1e-9 {
		t.Errorf("diameter = %v, want %v", d, 2*math.Sqrt2)
	}
	// Four sides of 2 and two diagonals of 2√2 over six pairs.
	want := (4*2 + 2*2*math.Sqrt2) / 6
	if m := meanPairwise(square); math.Abs(m-want) > 1e-9 {
		t.Errorf("mean pairwise = %v, want %v", m, want)
	}
	if diameter(nil) != 0 || meanPairwise(square[:1]) != 0 {
		t.Error("degenerate flocks should measure zero")
	}
}

func TestFitnessPrefersTightSurvivingFlocks(t *testing.T) {
	tight := fitness(flockMetrics{Contraction: 0.3, Survivors: 1})
	crowded := fitness(flockMetrics{Contraction: 0.1, Crowding: 0.5, Survivors: 1})
	lossy := fitness(flockMetrics{Contraction: 0.3, Survivors: 0.5})
	if !(tight < crowded && tight < lossy) {
		t.Errorf("tight=%v crowded=%v lossy=%v", tight, crowded, lossy)
	}
}
