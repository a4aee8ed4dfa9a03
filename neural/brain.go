package neural

import (
	"fmt"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
)

// Brain pairs a genome with its cached phenotype. Each agent owns exactly
// one brain; it is never shared.
type Brain struct {
	Genome    *genetics.Genome
	phenotype *Phenotype
	last      Motor
	thinks    uint64
}

// NewBrain creates a brain from a genome.
func NewBrain(genome *genetics.Genome) (*Brain, error) {
	if genome == nil {
		return nil, fmt.Errorf("new brain: %w", ErrNilGenome)
	}
	return &Brain{
		Genome:    genome,
		phenotype: NewPhenotype(genome),
	}, nil
}

// Think evaluates one forward pass. An inert network yields a zero motor.
func (b *Brain) Think(in *Inputs) Motor {
	b.last = b.phenotype.Evaluate(in)
	b.thinks++
	return b.last
}

// LastMotor returns the most recent output, used by tiers that skip the
// brain on a frame.
func (b *Brain) LastMotor() Motor { return b.last }

// Thinks returns the number of forward passes run.
func (b *Brain) Thinks() uint64 { return b.thinks }

// Inert reports whether the network has no input to output path.
func (b *Brain) Inert() bool { return b.phenotype.Inert() }

// RebuildNetwork recreates the phenotype from the genome.
func (b *Brain) RebuildNetwork() {
	b.phenotype = NewPhenotype(b.Genome)
}

// NodeCount returns the number of nodes in the network.
func (b *Brain) NodeCount() int { return b.phenotype.NodeCount() }

// LinkCount returns the number of enabled links in the network.
func (b *Brain) LinkCount() int { return b.phenotype.LinkCount() }

// State returns a copy of the recurrent activations, ordered by node id.
func (b *Brain) State() []float32 {
	out := make([]float32, len(b.phenotype.prev))
	copy(out, b.phenotype.prev)
	return out
}

// RestoreState loads activations saved by State. Mismatched lengths are
// ignored and the state is left cleared.
func (b *Brain) RestoreState(state []float32) {
	if len(state) != len(b.phenotype.prev) {
		b.phenotype.Reset()
		return
	}
	copy(b.phenotype.prev, state)
}
