package neural

import (
	"testing"

	"github.com/yaricom/goNEAT/v4/neat/genetics"

	"github.com/pthm-cable/forge/rng"
)

func testGenome(id int) *genetics.Genome {
	return CreateBrainGenome(id, 0.3, NewInnovationTracker(), rng.New(uint64(id)))
}

// strictManager founds a niche for every genome that is not identical to a
// representative.
func strictManager() *SpeciesManager {
	opts := DefaultNEATOptions()
	opts.CompatThreshold = 1e-9
	return NewSpeciesManager(opts)
}

func TestAssignSpecies(t *testing.T) {
	sm := NewSpeciesManager(DefaultNEATOptions())

	if got := sm.AssignSpecies(nil); got != 0 {
		t.Errorf("nil genome niche = %d, want 0", got)
	}
	if sm.Count() != 0 {
		t.Errorf("nil genome founded a niche")
	}

	g := testGenome(1)
	id := sm.AssignSpecies(g)
	if id == 0 {
		t.Fatal("expected non-zero niche id")
	}
	if again := sm.AssignSpecies(g); again != id {
		t.Errorf("same genome got niche %d, want %d", again, id)
	}
	if sm.Count() != 1 {
		t.Errorf("niche count = %d, want 1", sm.Count())
	}
}

func TestAssignSpeciesFoundsDistinctNiches(t *testing.T) {
	sm := strictManager()
	a := sm.AssignSpecies(testGenome(1))
	b := sm.AssignSpecies(testGenome(2))
	if a == b {
		t.Fatalf("distinct genomes share niche %d under a zero threshold", a)
	}
	if b != a+1 {
		t.Errorf("niche ids not sequential: %d then %d", a, b)
	}
	if sm.Count() != 2 {
		t.Errorf("niche count = %d, want 2", sm.Count())
	}
}

func TestMembership(t *testing.T) {
	sm := NewSpeciesManager(DefaultNEATOptions())
	id := sm.AssignSpecies(testGenome(1))

	sm.AddMember(id, 100)
	sm.AddMember(id, 101)
	sm.AddMember(id, 101)
	sm.AddMember(id, 102)
	if sm.Size(id) != 3 {
		t.Errorf("size = %d, want 3", sm.Size(id))
	}

	sm.RemoveMember(id, 101)
	sm.RemoveMember(id, 999)
	if sm.Size(id) != 2 {
		t.Errorf("size after removal = %d, want 2", sm.Size(id))
	}

	// Unknown niches are ignored.
	sm.AddMember(42, 1)
	sm.RemoveMember(42, 1)
	if sm.Size(42) != 0 || sm.GetSpecies(42) != nil {
		t.Error("unknown niche should stay unknown")
	}
}

func TestEndGenerationFoldsFitness(t *testing.T) {
	sm := NewSpeciesManager(DefaultNEATOptions())
	id := sm.AssignSpecies(testGenome(1))
	sm.AddMember(id, 1)
	sm.AddMember(id, 2)
	sm.AccumulateFitness(id, 30)
	sm.AccumulateFitness(id, 10)

	sm.EndGeneration()

	if sm.Generation() != 1 {
		t.Errorf("generation = %d, want 1", sm.Generation())
	}
	n := sm.GetSpecies(id)
	if n == nil {
		t.Fatal("populated niche was dropped")
	}
	if n.Mean != 20 {
		t.Errorf("mean = %f, want 20", n.Mean)
	}
	if n.Total != 0 {
		t.Errorf("total not reset: %f", n.Total)
	}
	if n.Best != 30 {
		t.Errorf("best = %f, want 30", n.Best)
	}
}

func TestEndGenerationDropsEmptyNiches(t *testing.T) {
	sm := strictManager()
	kept := sm.AssignSpecies(testGenome(1))
	empty := sm.AssignSpecies(testGenome(2))
	sm.AddMember(kept, 1)

	sm.EndGeneration()

	if sm.GetSpecies(empty) != nil {
		t.Error("empty niche survived EndGeneration")
	}
	if sm.GetSpecies(kept) == nil {
		t.Error("populated niche was dropped")
	}
	if sm.Count() != 1 {
		t.Errorf("niche count = %d, want 1", sm.Count())
	}
}

func TestStaleNicheRetired(t *testing.T) {
	opts := DefaultNEATOptions()
	opts.DropOffAge = 3
	sm := NewSpeciesManager(opts)
	id := sm.AssignSpecies(testGenome(1))
	sm.AddMember(id, 1)

	for range 2 {
		sm.EndGeneration()
	}
	if sm.GetSpecies(id) == nil {
		t.Fatal("niche retired before reaching the drop-off age")
	}
	sm.EndGeneration()
	if sm.GetSpecies(id) != nil {
		t.Errorf("niche stale for %d generations should be retired", opts.DropOffAge)
	}
}

func TestOffspringKeepsNicheAlive(t *testing.T) {
	opts := DefaultNEATOptions()
	opts.DropOffAge = 2
	sm := NewSpeciesManager(opts)
	id := sm.AssignSpecies(testGenome(1))
	sm.AddMember(id, 1)

	for range 6 {
		sm.RecordOffspring(id)
		sm.EndGeneration()
	}
	n := sm.GetSpecies(id)
	if n == nil {
		t.Fatal("reproducing niche was retired")
	}
	if n.Offspring != 6 {
		t.Errorf("offspring = %d, want 6", n.Offspring)
	}
	if n.Staleness != 0 {
		t.Errorf("staleness = %d, want 0", n.Staleness)
	}
}

func TestOffspringOnlyIgnoresFitnessGains(t *testing.T) {
	sm := NewSpeciesManager(DefaultNEATOptions())
	sm.OffspringOnly = true
	id := sm.AssignSpecies(testGenome(1))
	sm.AddMember(id, 1)

	sm.EndGeneration()
	sm.AccumulateFitness(id, 50)
	n := sm.GetSpecies(id)
	if n.Staleness != 1 {
		t.Errorf("staleness = %d, want 1", n.Staleness)
	}
	if n.Best != 50 {
		t.Errorf("best = %f, want 50", n.Best)
	}
}

func TestAdjustedFitness(t *testing.T) {
	sm := NewSpeciesManager(DefaultNEATOptions())
	id := sm.AssignSpecies(testGenome(1))
	sm.AddMember(id, 1)

	if got := sm.AdjustedFitness(id, 8); got != 8 {
		t.Errorf("single member adjusted fitness = %f, want 8", got)
	}
	for agent := uint64(2); agent <= 4; agent++ {
		sm.AddMember(id, agent)
	}
	if got := sm.AdjustedFitness(id, 8); got != 2 {
		t.Errorf("shared fitness = %f, want 2", got)
	}
	if got := sm.AdjustedFitness(0, 8); got != 8 {
		t.Errorf("brainless adjusted fitness = %f, want 8", got)
	}
}

func BenchmarkAssignSpecies(b *testing.B) {
	sm := NewSpeciesManager(DefaultNEATOptions())
	genomes := make([]*genetics.Genome, 32)
	for i := range genomes {
		genomes[i] = testGenome(i + 1)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sm.AssignSpecies(genomes[i%len(genomes)])
	}
}
