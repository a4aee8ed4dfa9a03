package main

import (
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Species components.Species
	Specs   []ParamSpec
}

// NewParamVector creates the flocking parameters of species s, with
// defaults taken from cfg.
func NewParamVector(s components.Species, cfg *config.Config) *ParamVector {
	sc := cfg.SpeciesPolicy(s)
	w := sc.Weights
	return &ParamVector{
		Species: s,
		Specs: []ParamSpec{
			{Name: "separation", Path: "weights.separation", Min: 0, Max: 4, Default: w.Separation},
			{Name: "alignment", Path: "weights.alignment", Min: 0, Max: 3, Default: w.Alignment},
			{Name: "cohesion", Path: "weights.cohesion", Min: 0, Max: 3, Default: w.Cohesion},
			{Name: "wander", Path: "weights.wander", Min: 0, Max: 2, Default: w.Wander},
			{Name: "boundary", Path: "weights.boundary", Min: 0, Max: 4, Default: w.Boundary},
			{Name: "vision_range", Path: "vision_range", Min: 10, Max: 80, Default: sc.VisionRange},
			{Name: "separation_radius", Path: "separation_radius", Min: 1, Max: 10, Default: sc.SeparationRadius},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values, clamped into range.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return pv.Clamp(v)
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes the values into the species record of cfg and
// refinalizes it. Order must match Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	c := pv.Clamp(values)
	sc := cfg.SpeciesPolicy(pv.Species)
	sc.Weights.Separation = c[0]
	sc.Weights.Alignment = c[1]
	sc.Weights.Cohesion = c[2]
	sc.Weights.Wander = c[3]
	sc.Weights.Boundary = c[4]
	sc.VisionRange = c[5]
	sc.SeparationRadius = c[6]
	return cfg.Finalize()
}
