package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/world"
)

// testFrame indexes views and returns a perceiver over them.
func testFrame(t *testing.T, cfg *config.Config, pols *PolicyTable, views []AgentView) *Perceiver {
	t.Helper()
	b := world.BoundsFromConfig(cfg.World)
	idx := NewHierarchicalIndex(b.MinX, b.MinZ, b.MaxX, b.MaxZ, 4, 32, len(views))
	for i := range views {
		v := &views[i]
		idx.Insert(Entry{ID: v.ID, Slot: int32(i), X: v.X, Y: v.Y, Z: v.Z})
	}
	p := NewPerceiver(cfg, pols)
	p.Index = idx
	p.Agents = views
	p.Terrain = world.NewFlatTerrain(b, 0)
	return p
}

func subjectOf(v *AgentView, slot int32, ph *components.Physiology, mem *components.Memory) *Subject {
	return &Subject{ID: v.ID, Slot: slot, Species: v.Species, X: v.X, Y: v.Y, Z: v.Z, Heading: v.Heading, Phys: ph, Mem: mem}
}

func assertFinite(t *testing.T, in *neural.Inputs) {
	t.Helper()
	for i, v := range in {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("slot %d is %f", i, v)
		}
		if v < -1 || v > 1 {
			t.Errorf("slot %d = %f outside [-1, 1]", i, v)
		}
	}
}

func TestPerceptionEmptyWorld(t *testing.T) {
	cfg, pols := testPolicies(t)
	views := []AgentView{{ID: 1, Species: components.SpeciesGrazer}}
	p := testFrame(t, cfg, pols, views)
	ph := livePhys(pols[components.SpeciesGrazer])
	var mem components.Memory

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, &ph, &mem), FidelityFull, &in, &pc)

	assertFinite(t, &in)
	for _, slot := range []int{neural.InFoodDist, neural.InThreatDist, neural.InPreyDist, neural.InAllyDist} {
		if in[slot] != 1 {
			t.Errorf("slot %d distance = %f, want 1", slot, in[slot])
		}
		if in[slot+1] != 0 {
			t.Errorf("slot %d bearing = %f, want 0", slot+1, in[slot+1])
		}
	}
	if in[neural.InEnergy] != 1 {
		t.Errorf("energy = %f, want 1", in[neural.InEnergy])
	}
	if in[neural.InDensity] != 0 {
		t.Errorf("density counts self: %f", in[neural.InDensity])
	}
	if pc.Food.Found || pc.Threat.Found || pc.Prey.Found || pc.Ally.Found {
		t.Errorf("unexpected targets: %+v", pc)
	}
}

func TestPerceptionFoodBearing(t *testing.T) {
	cfg, pols := testPolicies(t)
	b := world.BoundsFromConfig(cfg.World)

	tests := []struct {
		name        string
		heading     float32
		fx, fz      float32
		wantBearing float32
	}{
		{"ahead", 0, 10, 0, 0},
		{"left", 0, 0, 10, 0.5},
		{"right", 0, 0, -10, -0.5},
		{"turned toward it", math.Pi / 2, 0, 10, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			views := []AgentView{{ID: 1, Species: components.SpeciesGrazer, Heading: tc.heading}}
			p := testFrame(t, cfg, pols, views)
			food := world.NewEmptyFoodField(cfg.Food, world.NewFlatTerrain(b, 0))
			food.AddPatch(world.Patch{X: tc.fx, Z: tc.fz, Kind: world.FoodPlant, Biomass: 5, Capacity: 10})
			p.Food = food

			var in neural.Inputs
			var pc Percept
			p.Build(subjectOf(&views[0], 0, nil, nil), FidelityFull, &in, &pc)

			vision := pols[components.SpeciesGrazer].Vision
			if got, want := in[neural.InFoodDist], float32(10)/vision; math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("distance = %f, want %f", got, want)
			}
			if got := in[neural.InFoodBearing]; math.Abs(float64(got-tc.wantBearing)) > 1e-5 {
				t.Errorf("bearing = %f, want %f", got, tc.wantBearing)
			}
			if !pc.Food.Found || pc.Food.X != tc.fx || pc.Food.Z != tc.fz {
				t.Errorf("percept food = %+v", pc.Food)
			}
		})
	}
}

func TestPerceptionWrongFoodKindIgnored(t *testing.T) {
	cfg, pols := testPolicies(t)
	b := world.BoundsFromConfig(cfg.World)
	views := []AgentView{{ID: 1, Species: components.SpeciesGrazer}}
	p := testFrame(t, cfg, pols, views)
	food := world.NewEmptyFoodField(cfg.Food, world.NewFlatTerrain(b, 0))
	food.AddPatch(world.Patch{X: 5, Kind: world.FoodAlgae, Biomass: 5, Capacity: 5})
	p.Food = food

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, nil, nil), FidelityFull, &in, &pc)
	if pc.Food.Found || in[neural.InFoodDist] != 1 {
		t.Errorf("grazer perceived algae: %+v", pc.Food)
	}
}

func TestPerceptionThreatPreyAlly(t *testing.T) {
	cfg, pols := testPolicies(t)
	views := []AgentView{
		{ID: 1, Species: components.SpeciesGrazer},
		{ID: 2, Species: components.SpeciesHunter, X: -10},
		{ID: 3, Species: components.SpeciesGrazer, X: 3, Z: 4},
		{ID: 4, Species: components.SpeciesHunter, X: -60}, // beyond vision
	}
	p := testFrame(t, cfg, pols, views)

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, nil, nil), FidelityFull, &in, &pc)
	assertFinite(t, &in)

	if !pc.Threat.Found || pc.Threat.ID != 2 {
		t.Fatalf("threat = %+v, want id 2", pc.Threat)
	}
	if b := in[neural.InThreatBearing]; math.Abs(math.Abs(float64(b))-1) > 1e-4 {
		t.Errorf("threat behind bearing = %f, want +-1", b)
	}
	if !pc.Ally.Found || pc.Ally.ID != 3 {
		t.Fatalf("ally = %+v, want id 3", pc.Ally)
	}
	if got, want := in[neural.InAllyDist], 5/pols[components.SpeciesGrazer].Vision; math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("ally distance = %f, want %f", got, want)
	}
	if pc.Prey.Found {
		t.Error("grazer has no prey")
	}

	// The hunter sees both grazers as prey and picks the nearer one.
	hunter := subjectOf(&views[1], 1, nil, nil)
	p.Build(hunter, FidelityFull, &in, &pc)
	if !pc.Prey.Found || pc.Prey.ID != 1 {
		t.Errorf("hunter prey = %+v, want id 1", pc.Prey)
	}
	if pc.Ally.Found {
		// The other hunter is 50 units away, outside vision.
		t.Errorf("hunter ally = %+v", pc.Ally)
	}
}

func TestPerceptionMinimalFidelity(t *testing.T) {
	cfg, pols := testPolicies(t)
	views := []AgentView{
		{ID: 1, Species: components.SpeciesGrazer},
		{ID: 2, Species: components.SpeciesHunter, X: 5},
	}
	p := testFrame(t, cfg, pols, views)
	var mem components.Memory
	mem.Fear = 0.7

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, nil, &mem), FidelityMinimal, &in, &pc)
	if pc.Threat.Found || in[neural.InThreatDist] != 1 {
		t.Error("minimal fidelity resolved a threat")
	}
	if in[neural.InFear] != 0 {
		t.Error("minimal fidelity filled modulators")
	}

	p.Build(subjectOf(&views[0], 0, nil, &mem), FidelityReduced, &in, &pc)
	if !pc.Threat.Found {
		t.Error("reduced fidelity missed a threat")
	}
	if in[neural.InFear] != 0.7 {
		t.Errorf("fear = %f, want 0.7", in[neural.InFear])
	}
}

func TestPerceptionMemoryIsHeadingRelative(t *testing.T) {
	cfg, pols := testPolicies(t)
	views := []AgentView{{ID: 1, Species: components.SpeciesGrazer, Heading: math.Pi / 2}}
	p := testFrame(t, cfg, pols, views)
	mem := components.Memory{HasFood: true, LastFoodBearing: math.Pi / 2}

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, nil, &mem), FidelityFull, &in, &pc)
	if in[neural.InMemoryFood] != 0 {
		t.Errorf("remembered food dead ahead read %f", in[neural.InMemoryFood])
	}
}

func TestPerceptionPheromoneClaim(t *testing.T) {
	cfg, pols := testPolicies(t)
	b := world.BoundsFromConfig(cfg.World)
	views := []AgentView{
		{ID: 1, Species: components.SpeciesCleaner},
		{ID: 2, Species: components.SpeciesCleaner, X: 0.5},
	}
	p := testFrame(t, cfg, pols, views)
	p.Pheromones = world.NewPheromoneGrid(cfg.Pheromone, b)
	for i := 0; i < 60; i++ {
		p.Pheromones.Deposit(4, 0, 1)
	}
	p.Frame = 7

	var in neural.Inputs
	var pc Percept
	p.Build(subjectOf(&views[0], 0, nil, nil), FidelityFull, &in, &pc)
	if !pc.HasPheromone || in[neural.InReserved0] <= 0 {
		t.Fatalf("first reader got no gradient: %+v fwd=%f", pc, in[neural.InReserved0])
	}
	p.Build(subjectOf(&views[1], 1, nil, nil), FidelityFull, &in, &pc)
	if pc.HasPheromone || in[neural.InReserved0] != 0 {
		t.Error("second reader in the same cell and frame got a gradient")
	}

	// Non-colonial species never read the field.
	views[0].Species = components.SpeciesGrazer
	p.Frame = 8
	p.Build(subjectOf(&views[0], 0, nil, nil), FidelityFull, &in, &pc)
	if pc.HasPheromone {
		t.Error("grazer read pheromone")
	}
}

func TestUpdateMemory(t *testing.T) {
	mods := Modulators{FearDecay: 0.5, CuriosityRise: 0.1, CuriosityDecay: 0.5, AggressionDecay: 0.3}
	self := &Subject{Vision: 30}
	var mem components.Memory

	pc := Percept{Threat: Target{Found: true, X: 0, Z: 10, DistSq: 100}}
	UpdateMemory(&mem, self, &pc, nil, mods, 0.1)
	if !mem.HasThreat || math.Abs(float64(mem.LastThreatBearing-math.Pi/2)) > 1e-5 {
		t.Errorf("threat memory = %+v", mem)
	}
	if mem.Fear < 0.6 {
		t.Errorf("fear = %f after close threat", mem.Fear)
	}

	before := mem.Fear
	UpdateMemory(&mem, self, &Percept{}, nil, mods, 0.1)
	if mem.Fear >= before {
		t.Error("fear did not decay")
	}
	if mem.Curiosity <= 0 {
		t.Error("curiosity did not rise in an empty world")
	}
}
