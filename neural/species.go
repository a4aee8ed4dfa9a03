package neural

import (
	"slices"

	"github.com/yaricom/goNEAT/v4/neat"
	"github.com/yaricom/goNEAT/v4/neat/genetics"
)

// Niche is a group of genetically compatible brains inside one ecological
// species. An agent carries its niche id as its clade. Id 0 is reserved
// for brainless agents.
type Niche struct {
	ID             int
	Representative *genetics.Genome
	Members        map[uint64]struct{}
	Founded        int // generation the niche appeared in
	Staleness      int // generations without improvement or offspring
	Best           float64
	Total          float64 // fitness accumulated this generation
	Mean           float64 // Total / members, as of the last EndGeneration
	Offspring      int
	recent         int // offspring this generation
}

// Size returns the live member count.
func (n *Niche) Size() int { return len(n.Members) }

// SpeciesManager assigns genomes to niches by NEAT compatibility distance
// and retires niches that empty out or stop improving.
type SpeciesManager struct {
	opts       *neat.Options
	niches     map[int]*Niche
	order      []int // niche ids in founding order; assignment scans this
	next       int
	generation int

	// OffspringOnly makes staleness follow reproduction alone. Fitness is
	// still recorded but no longer resets staleness.
	OffspringOnly bool
}

// NewSpeciesManager creates an empty manager using the compatibility
// threshold and drop-off age of opts.
func NewSpeciesManager(opts *neat.Options) *SpeciesManager {
	return &SpeciesManager{
		opts:   opts,
		niches: make(map[int]*Niche),
		next:   1,
	}
}

// AssignSpecies returns the id of the first niche whose representative is
// within the compatibility threshold of genome, founding a new niche when
// none is. A nil genome maps to 0.
func (sm *SpeciesManager) AssignSpecies(genome *genetics.Genome) int {
	if genome == nil {
		return 0
	}
	for _, id := range sm.order {
		n := sm.niches[id]
		if GenomeCompatibility(genome, n.Representative, sm.opts) < sm.opts.CompatThreshold {
			return id
		}
	}
	n := &Niche{
		ID:             sm.next,
		Representative: genome,
		Members:        make(map[uint64]struct{}),
		Founded:        sm.generation,
	}
	sm.next++
	sm.niches[n.ID] = n
	sm.order = append(sm.order, n.ID)
	return n.ID
}

// GetSpecies returns the niche with the given id, or nil.
func (sm *SpeciesManager) GetSpecies(id int) *Niche { return sm.niches[id] }

// Count returns the number of live niches.
func (sm *SpeciesManager) Count() int { return len(sm.order) }

// Generation returns the number of completed generations.
func (sm *SpeciesManager) Generation() int { return sm.generation }

// Size returns the member count of a niche, 0 when unknown.
func (sm *SpeciesManager) Size(id int) int {
	if n := sm.niches[id]; n != nil {
		return n.Size()
	}
	return 0
}

// AdjustedFitness applies explicit fitness sharing: raw fitness divided by
// the niche size.
func (sm *SpeciesManager) AdjustedFitness(id int, fitness float64) float64 {
	if size := sm.Size(id); size > 1 {
		return fitness / float64(size)
	}
	return fitness
}

func (sm *SpeciesManager) AddMember(id int, agent uint64) {
	if n := sm.niches[id]; n != nil {
		n.Members[agent] = struct{}{}
	}
}

func (sm *SpeciesManager) RemoveMember(id int, agent uint64) {
	if n := sm.niches[id]; n != nil {
		delete(n.Members, agent)
	}
}

// RecordOffspring credits a birth to the niche. Reproduction always
// counts as progress.
func (sm *SpeciesManager) RecordOffspring(id int) {
	n := sm.niches[id]
	if n == nil {
		return
	}
	n.Offspring++
	n.recent++
	n.Staleness = 0
}

// AccumulateFitness adds one member's fitness to the niche's running total.
// A new best resets staleness unless OffspringOnly is set.
func (sm *SpeciesManager) AccumulateFitness(id int, fitness float64) {
	n := sm.niches[id]
	if n == nil {
		return
	}
	n.Total += fitness
	if fitness > n.Best {
		n.Best = fitness
		if !sm.OffspringOnly {
			n.Staleness = 0
		}
	}
}

// EndGeneration closes the generation: it folds totals into means, ages
// every niche and drops those that are empty or have been stale for
// DropOffAge generations.
func (sm *SpeciesManager) EndGeneration() {
	sm.generation++
	sm.order = slices.DeleteFunc(sm.order, func(id int) bool {
		n := sm.niches[id]
		if size := n.Size(); size > 0 {
			n.Mean = n.Total / float64(size)
		}
		n.Total = 0
		if n.recent == 0 {
			n.Staleness++
		}
		n.recent = 0
		if n.Size() == 0 || n.Staleness >= sm.opts.DropOffAge {
			delete(sm.niches, id)
			return true
		}
		return false
	})
}
