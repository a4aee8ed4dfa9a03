// Package rng provides the seeded random source threaded through
// reproduction, mutation and spawning. Nothing in the simulation core reads
// a process-wide generator, so a seed reproduces a run within one process.
package rng

import (
	"fmt"
	"math/rand/v2"
)

// Source is the subset of *rand.Rand the simulation consumes.
type Source interface {
	Float32() float32
	Float64() float64
	NormFloat64() float64
	IntN(n int) int
	Uint64() uint64
}

// Rand is a PCG-backed Source whose state can be saved and restored.
type Rand struct {
	*rand.Rand
	pcg *rand.PCG
}

// New creates a generator for the given seed.
func New(seed uint64) *Rand {
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Rand{Rand: rand.New(pcg), pcg: pcg}
}

// MarshalState returns the generator state for the save file.
func (r *Rand) MarshalState() ([]byte, error) {
	b, err := r.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling rng state: %w", err)
	}
	return b, nil
}

// UnmarshalState restores a state produced by MarshalState.
func (r *Rand) UnmarshalState(b []byte) error {
	if err := r.pcg.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("unmarshaling rng state: %w", err)
	}
	return nil
}

// Range returns a uniform value in [lo, hi).
func Range(src Source, lo, hi float32) float32 {
	return lo + src.Float32()*(hi-lo)
}
