package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/forge/components"
)

// WindowStats holds aggregated statistics for one stats window.
type WindowStats struct {
	WindowStart uint64  `csv:"-"`
	WindowEnd   uint64  `csv:"window_end"`
	SimTimeSec  float64 `csv:"sim_time"`

	Population    int                        `csv:"population"`
	SpeciesCounts [components.NumSpecies]int `csv:"-"`
	SpeciesAlive  int                        `csv:"species_alive"`
	Corpses       int                        `csv:"corpses"`

	Births      int `csv:"births"`
	Deaths      int `csv:"deaths"`
	Kills       int `csv:"kills"`
	Starved     int `csv:"starved"`
	OldAge      int `csv:"old_age"`
	Culled      int `csv:"culled"`
	Meals       int `csv:"meals"`
	CarrionEats int `csv:"carrion_eats"`
	Nutrients   int `csv:"nutrient_releases"`
	Diagnostics int `csv:"diagnostics"`

	EnergyMean float64 `csv:"energy_mean"`
	EnergyStd  float64 `csv:"energy_std"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	MeanGeneration float64 `csv:"generation_mean"`
	NEATSpecies    int     `csv:"neat_species"`
}

// Percentile returns the p-th percentile of a sorted slice with linear
// interpolation. p is in [0, 1]; an empty slice gives 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	idx := p * float64(n-1)
	lo := int(idx)
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

// ComputeEnergyStats returns mean, standard deviation and the 10th, 50th
// and 90th percentiles. values is sorted in place.
func ComputeEnergyStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	if len(values) == 1 {
		return values[0], 0, values[0], values[0], values[0]
	}
	mean, std = stat.PopMeanStdDev(values, nil)
	sort.Float64s(values)
	return mean, std, Percentile(values, 0.10), Percentile(values, 0.50), Percentile(values, 0.90)
}

// LogValue implements slog.LogValuer.
func (s WindowStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("window_end", s.WindowEnd),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("population", s.Population),
		slog.Int("species_alive", s.SpeciesAlive),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Int("kills", s.Kills),
		slog.Int("starved", s.Starved),
		slog.Int("culled", s.Culled),
		slog.Int("meals", s.Meals),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Int("neat_species", s.NEATSpecies),
	}
	for sp, n := range s.SpeciesCounts {
		if n > 0 {
			attrs = append(attrs, slog.Int(components.Species(sp).String(), n))
		}
	}
	return slog.GroupValue(attrs...)
}

// LogStats logs the window through slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
