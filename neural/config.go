package neural

import (
	"github.com/yaricom/goNEAT/v4/neat"

	"github.com/pthm-cable/forge/config"
)

// NumInputs is the width of the sensory vector.
const NumInputs = 27

// NumOutputs is the width of the motor vector.
const NumOutputs = 10

// Node id layout shared by every genome: inputs 1..NumInputs, then the bias
// node, then the outputs. Hidden nodes are allocated above firstHiddenID.
const (
	firstInputID  = 1
	biasNodeID    = NumInputs + 1
	firstOutputID = biasNodeID + 1
	firstHiddenID = firstOutputID + NumOutputs
)

// Params bundles the goNEAT options with the knobs goNEAT has no field for.
type Params struct {
	*neat.Options

	WeightResampleProb    float64 // share of perturbed weights that are resampled instead
	MaxWeight             float64
	InitialConnectionProb float64
	HybridCap             float64 // compatibility above which offspring are hybrids
}

// DefaultNEATOptions returns NEAT options with the mutation and speciation
// defaults used by the simulation.
func DefaultNEATOptions() *neat.Options {
	return &neat.Options{
		WeightMutPower:         0.1,
		MutateLinkWeightsProb:  0.8,
		MutateAddLinkProb:      0.05,
		MutateAddNodeProb:      0.03,
		MutateToggleEnableProb: 0.01,

		CompatThreshold: 3.0,
		ExcessCoeff:     1.0,
		DisjointCoeff:   1.0,
		MutdiffCoeff:    0.4,

		DropOffAge:     15,
		SurvivalThresh: 0.2,
		PopSize:        150,
	}
}

// DefaultParams returns Params built on DefaultNEATOptions.
func DefaultParams() Params {
	return Params{
		Options:               DefaultNEATOptions(),
		WeightResampleProb:    0.1,
		MaxWeight:             8,
		InitialConnectionProb: 0.3,
		HybridCap:             6,
	}
}

// ParamsFromConfig maps the neat section of the configuration.
func ParamsFromConfig(c config.NEATConfig) Params {
	opts := DefaultNEATOptions()
	opts.WeightMutPower = c.WeightSigma
	opts.MutateLinkWeightsProb = c.WeightMutProb
	opts.MutateAddLinkProb = c.AddEdgeProb
	opts.MutateAddNodeProb = c.AddNodeProb
	opts.MutateToggleEnableProb = c.ToggleProb
	opts.CompatThreshold = c.CompatThreshold
	opts.ExcessCoeff = c.ExcessCoeff
	opts.DisjointCoeff = c.DisjointCoeff
	opts.MutdiffCoeff = c.WeightCoeff
	if c.DropOffAge > 0 {
		opts.DropOffAge = c.DropOffAge
	}
	return Params{
		Options:               opts,
		WeightResampleProb:    c.WeightResampleProb,
		MaxWeight:             c.MaxWeight,
		InitialConnectionProb: c.InitialConnectionProb,
		HybridCap:             c.HybridCap,
	}
}
