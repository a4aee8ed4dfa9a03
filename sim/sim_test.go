package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/yaricom/goNEAT/v4/neat/genetics"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/world"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	cfg.HallOfFame.Enabled = false
	return cfg
}

// newFlatSim builds an empty simulation on a dry plane with no food, held
// at the named quality level.
func newFlatSim(t *testing.T, cfg *config.Config, quality string) *Simulation {
	t.Helper()
	b := world.BoundsFromConfig(cfg.World)
	terrain := world.NewFlatTerrain(b, 0)
	s, err := New(cfg, InitParams{
		Seed:       1,
		Quality:    quality,
		PinQuality: true,
		Terrain:    terrain,
		Food:       world.NewEmptyFoodField(cfg.Food, terrain),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)
	s.SetCamera(0, 0, 0)
	return s
}

// biasGenome pins motor outputs: slot i is driven by the bias node with
// weight w[i]. Unlisted slots read as zero raw output.
func biasGenome(s *Simulation, w map[int]float64) *genetics.Genome {
	var bias [neural.NumOutputs]float64
	for slot, v := range w {
		bias[slot] = v
	}
	return neural.CreateBiasGenome(s.tracker.NextGenomeID(), bias, s.tracker)
}

func mustSpawn(t *testing.T, s *Simulation, spec SpawnSpec) uint64 {
	t.Helper()
	id, err := s.Spawn(spec)
	if err != nil {
		t.Fatalf("Spawn(%v): %v", spec.Species, err)
	}
	return id
}

func mustAgent(t *testing.T, s *Simulation, id uint64) AgentInfo {
	t.Helper()
	a, ok := s.Agent(id)
	if !ok {
		t.Fatalf("agent %d not alive", id)
	}
	return a
}

func TestNewRejectsBadParams(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New(nil, InitParams{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("nil config: err = %v, want ErrInvalid", err)
	}
	if _, err := New(cfg, InitParams{InitialPopulation: -1}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("negative population: err = %v, want ErrInvalid", err)
	}
	if _, err := New(cfg, InitParams{Quality: "cinematic"}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("unknown quality: err = %v, want ErrInvalid", err)
	}
	bad := world.Bounds{MinX: 10, MinZ: -10, MaxX: -10, MaxZ: 10}
	if _, err := New(cfg, InitParams{WorldBounds: &bad}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("inverted bounds: err = %v, want ErrInvalid", err)
	}
}

func TestSpawnValidates(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")

	if _, err := s.Spawn(SpawnSpec{Species: components.NumSpecies}); !errors.Is(err, ErrUnknownSpecies) {
		t.Errorf("unknown species: err = %v, want ErrUnknownSpecies", err)
	}
	nan := float32(math.NaN())
	if _, err := s.Spawn(SpawnSpec{Species: components.SpeciesGrazer, Pos: components.Position{X: nan}}); err == nil {
		t.Error("NaN position accepted")
	}
	if s.Population() != 0 {
		t.Errorf("population = %d after rejected spawns", s.Population())
	}

	a := mustSpawn(t, s, SpawnSpec{Species: components.SpeciesGrazer, Brainless: true})
	b := mustSpawn(t, s, SpawnSpec{Species: components.SpeciesGrazer})
	if b <= a {
		t.Errorf("ids not increasing: %d then %d", a, b)
	}
	if s.Brain(a) != nil {
		t.Error("brainless agent has a brain")
	}
	if s.Brain(b) == nil {
		t.Error("default spawn has no brain")
	}
	if got := mustAgent(t, s, a).Phys.Energy; got != 80 {
		t.Errorf("default energy = %g, want species initial 80", got)
	}
}

func TestEmptyWorld(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")

	s.Run(100)
	if s.Population() != 0 {
		t.Errorf("population = %d, want 0", s.Population())
	}
	if n := len(s.Index().QueryRadiusInto(nil, 0, 0, 500, 0)); n != 0 {
		t.Errorf("index holds %d entries", n)
	}
	if s.Frame() != 100 {
		t.Errorf("frame = %d, want 100", s.Frame())
	}
}

func TestEmptyWorldStepsQualityUp(t *testing.T) {
	cfg := testConfig(t)
	b := world.BoundsFromConfig(cfg.World)
	terrain := world.NewFlatTerrain(b, 0)
	s, err := New(cfg, InitParams{
		Seed:    1,
		Quality: "medium",
		Terrain: terrain,
		Food:    world.NewEmptyFoodField(cfg.Food, terrain),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	start := s.Level()
	s.Run(cfg.Quality.StepUpFrames + 40)
	if s.Level() >= start {
		t.Errorf("level = %d, want below %d after idle frames", s.Level(), start)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	mustSpawn(t, s, SpawnSpec{Species: components.SpeciesGrazer, Brainless: true})
	s.Run(3)
	s.Shutdown()
	s.Shutdown()
	s.Step()
	if s.Frame() != 3 {
		t.Errorf("frame = %d after shutdown, want 3", s.Frame())
	}
}

func TestDisasterCommand(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "ultra")
	inside := mustSpawn(t, s, SpawnSpec{Species: components.SpeciesGrazer, Brainless: true, Pos: components.Position{X: 2}})
	outside := mustSpawn(t, s, SpawnSpec{Species: components.SpeciesGrazer, Brainless: true, Pos: components.Position{X: 40}})

	s.Commands().Push(world.DisasterCommand(0, 0, 10, 1000))
	s.Step()

	if _, ok := s.Agent(inside); ok {
		t.Error("agent inside the disaster survived")
	}
	if _, ok := s.Agent(outside); !ok {
		t.Error("agent outside the disaster died")
	}
	snap := s.Snapshot()
	if len(snap.Corpses) != 1 {
		t.Fatalf("corpses = %d, want 1", len(snap.Corpses))
	}
	if c := snap.Corpses[0]; c.Source != components.SpeciesGrazer || c.Biomass <= 0 {
		t.Errorf("corpse = %+v", c)
	}
}

func TestSpawnCommand(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	s.Commands().Push(world.SpawnCommand(components.SpeciesBrowser, 5, 10, 0, -10))
	s.Step()

	if s.Population() != 5 {
		t.Fatalf("population = %d, want 5", s.Population())
	}
	for _, id := range s.AgentIDs() {
		a := mustAgent(t, s, id)
		if a.Species != components.SpeciesBrowser {
			t.Errorf("agent %d species = %v", id, a.Species)
		}
		if dx, dz := a.Pos.X-10, a.Pos.Z+10; dx*dx+dz*dz > 25 {
			t.Errorf("agent %d spawned at (%g, %g), far from the request", id, a.Pos.X, a.Pos.Z)
		}
	}
}

func TestBrainedFirstKeepsFitnessWithGenome(t *testing.T) {
	s := newFlatSim(t, testConfig(t), "medium")
	g1 := biasGenome(s, map[int]float64{neural.MotorSpeed: 1})
	g2 := biasGenome(s, map[int]float64{neural.MotorSpeed: -1})

	cases := []struct {
		name           string
		ga, gb         *genetics.Genome
		fa, fb         float64
		wantA, wantB   *genetics.Genome
		wantFA, wantFB float64
	}{
		{"both brained", g1, g2, 3, 7, g1, g2, 3, 7},
		{"first brainless", nil, g2, 3, 7, g2, nil, 7, 0},
		{"second brainless", g1, nil, 3, 7, g1, nil, 3, 0},
		{"neither brained", nil, nil, 3, 7, nil, nil, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, b, fa, fb := brainedFirst(tc.ga, tc.gb, tc.fa, tc.fb)
			if a != tc.wantA || b != tc.wantB {
				t.Fatalf("genomes = (%p, %p), want (%p, %p)", a, b, tc.wantA, tc.wantB)
			}
			if fa != tc.wantFA || fb != tc.wantFB {
				t.Errorf("fitness = (%g, %g), want (%g, %g)", fa, fb, tc.wantFA, tc.wantFB)
			}
		})
	}
}
