package sim

import (
	"math"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/compute"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/rng"
	"github.com/pthm-cable/forge/telemetry"
)

func TestIsolatedWander(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	id := mustSpawn(t, s, SpawnSpec{
		Species:   components.SpeciesGrazer,
		Energy:    100,
		Brainless: true,
	})

	s.Run(60)

	a := mustAgent(t, s, id)
	if d := math.Hypot(float64(a.Pos.X), float64(a.Pos.Z)); d <= 0 {
		t.Errorf("agent did not move: |pos| = %g", d)
	}
	if e := a.Phys.Energy; e < 99 || e >= 100 {
		t.Errorf("energy = %g, want in [99, 100)", e)
	}
	if a.Phys.Age <= 0.99 || a.Phys.Age > 1.01 {
		t.Errorf("age = %g after one second", a.Phys.Age)
	}
}

func TestSinglePreyPursuit(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "ultra")
	events := s.Events().Subscribe()

	hunter := mustSpawn(t, s, SpawnSpec{
		Species: components.SpeciesHunter,
		Genome: biasGenome(s, map[int]float64{
			neural.MotorSpeed:  3,
			neural.MotorAttack: 3,
			neural.MotorFlee:   -3,
			neural.MotorRest:   -3,
		}),
	})
	prey := mustSpawn(t, s, SpawnSpec{
		Species:   components.SpeciesGrazer,
		Pos:       components.Position{X: 20},
		Brainless: true,
	})

	var (
		killFrame   = -1
		preyBefore  float32
		hunterDelta float32
	)
	for f := 0; f < 600 && killFrame < 0; f++ {
		p, _ := s.Agent(prey)
		h := mustAgent(t, s, hunter)
		s.Step()
		if _, alive := s.Agent(prey); !alive {
			killFrame = f
			preyBefore = p.Phys.Energy
			hunterDelta = mustAgent(t, s, hunter).Phys.Energy - h.Phys.Energy
		}
	}
	if killFrame < 0 {
		t.Fatal("prey survived 10 simulated seconds")
	}
	s.Run(10)

	kills := 0
	for _, e := range events.Drain(nil) {
		if e.Type == telemetry.EventKilled {
			kills++
			if e.ID != hunter || e.Target != prey {
				t.Errorf("killed event %+v, want hunter %d killing %d", e, hunter, prey)
			}
		}
	}
	if kills != 1 {
		t.Errorf("killed events = %d, want 1", kills)
	}

	// The attacker gains at most 0.8 of the victim's energy and the rest
	// is left as the corpse.
	if hunterDelta > 0.8*preyBefore {
		t.Errorf("hunter gained %g from a victim holding %g", hunterDelta, preyBefore)
	}
	snap := s.Snapshot()
	if len(snap.Corpses) != 1 {
		t.Fatalf("corpses = %d, want 1", len(snap.Corpses))
	}
	if c := snap.Corpses[0]; c.Biomass <= 0 || c.Biomass > preyBefore {
		t.Errorf("corpse biomass %g outside (0, %g]", c.Biomass, preyBefore)
	}
}

func TestFlockCohesion(t *testing.T) {
	cfg := testConfig(t)
	grazer := cfg.SpeciesPolicy(components.SpeciesGrazer)
	grazer.VisionRange = 60
	cfg.Physics.MaxNeighbors = 64
	s := newFlatSim(t, cfg, "ultra")

	src := rng.New(7)
	ids := make([]uint64, 50)
	for i := range ids {
		ids[i] = mustSpawn(t, s, SpawnSpec{
			Species: components.SpeciesGrazer,
			Pos:     components.Position{X: rng.Range(src, -20, 20), Z: rng.Range(src, -20, 20)},
			Heading: rng.Range(src, -math.Pi, math.Pi),
			Energy:  100,
			Genome: biasGenome(s, map[int]float64{
				neural.MotorSpeed:  -5,
				neural.MotorRest:   5,
				neural.MotorSocial: 5,
				neural.MotorFlee:   -5,
				neural.MotorAttack: -5,
			}),
		})
	}

	before := positions(t, s, ids)
	s.Run(900)
	after := positions(t, s, ids)

	d0, d1 := boundingDiameter(before), boundingDiameter(after)
	if d1 > 0.5*d0 {
		t.Errorf("cluster diameter %g, want <= half of initial %g", d1, d0)
	}
	sep := float64(grazer.SeparationRadius)
	if m := meanPairwise(after); m < 0.9*sep {
		t.Errorf("mean pairwise distance %g, want >= %g", m, 0.9*sep)
	}
}

func positions(t *testing.T, s *Simulation, ids []uint64) [][2]float64 {
	t.Helper()
	out := make([][2]float64, len(ids))
	for i, id := range ids {
		a := mustAgent(t, s, id)
		out[i] = [2]float64{float64(a.Pos.X), float64(a.Pos.Z)}
	}
	return out
}

// boundingDiameter is twice the largest distance from the centroid.
func boundingDiameter(ps [][2]float64) float64 {
	var cx, cz float64
	for _, p := range ps {
		cx += p[0]
		cz += p[1]
	}
	cx /= float64(len(ps))
	cz /= float64(len(ps))
	var r float64
	for _, p := range ps {
		r = max(r, math.Hypot(p[0]-cx, p[1]-cz))
	}
	return 2 * r
}

func meanPairwise(ps [][2]float64) float64 {
	var sum float64
	n := 0
	for i := range ps {
		for j := i + 1; j < len(ps); j++ {
			sum += math.Hypot(ps[i][0]-ps[j][0], ps[i][1]-ps[j][1])
			n++
		}
	}
	return sum / float64(n)
}

func TestBirthPipeline(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	events := s.Events().Subscribe()

	mate := func(x float32) uint64 {
		return mustSpawn(t, s, SpawnSpec{
			Species:   components.SpeciesGrazer,
			Pos:       components.Position{X: x},
			Energy:    90,
			Age:       40,
			Brainless: true,
		})
	}
	a, b := mate(0), mate(1)
	n := s.Population()
	cost := s.Policies()[components.SpeciesGrazer].ReproCost

	s.Step()

	if got := s.Population(); got != n+1 {
		t.Fatalf("population = %d, want %d", got, n+1)
	}
	var child uint64
	for _, id := range s.AgentIDs() {
		if id != a && id != b {
			child = id
		}
	}
	c := mustAgent(t, s, child)
	if c.Lineage.Generation != 1 {
		t.Errorf("child generation = %d, want 1", c.Lineage.Generation)
	}
	if !sameParents([2]uint64{c.Lineage.ParentA, c.Lineage.ParentB}, a, b) {
		t.Errorf("child parents = [%d %d], want %d and %d", c.Lineage.ParentA, c.Lineage.ParentB, a, b)
	}
	for _, id := range []uint64{a, b} {
		p := mustAgent(t, s, id)
		want := 90 - cost
		if e := p.Phys.Energy; e > want || e < want-0.1 {
			t.Errorf("parent %d energy = %g, want about %g", id, e, want)
		}
		if p.Phys.ReproCooldown <= 0 {
			t.Errorf("parent %d has no reproduction cooldown", id)
		}
		if p.Org.Children != 1 {
			t.Errorf("parent %d children = %d, want 1", id, p.Org.Children)
		}
	}

	born := 0
	for _, e := range events.Drain(nil) {
		if e.Type == telemetry.EventBorn && e.ID == child {
			born++
			if !sameParents(e.Parents, a, b) {
				t.Errorf("born event parents = %v", e.Parents)
			}
		}
	}
	if born != 1 {
		t.Errorf("born events for child = %d, want 1", born)
	}

	// Cooldowns stop a second birth on the next frame.
	s.Step()
	if got := s.Population(); got != n+1 {
		t.Errorf("population = %d after a second frame, want %d", got, n+1)
	}
}

func sameParents(p [2]uint64, a, b uint64) bool {
	return p == [2]uint64{a, b} || p == [2]uint64{b, a}
}

func TestLoneSexualAgentNeverBreeds(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	mustSpawn(t, s, SpawnSpec{
		Species:   components.SpeciesGrazer,
		Energy:    100,
		Age:       40,
		Brainless: true,
	})
	s.Run(120)
	if s.Population() != 1 {
		t.Errorf("population = %d, want 1", s.Population())
	}
}

func TestSchedulerCadence(t *testing.T) {
	tests := []struct {
		quality    string
		frames     int
		medX, farX float32
		medN, farN int
		medTier    lod.Tier
		farTier    lod.Tier
	}{
		{"medium", 30, 50, 200, 10, 3, lod.TierMedium, lod.TierFar},
		{"minimum", 36, 30, 100, 12, 3, lod.TierMedium, lod.TierFar},
	}
	for _, tc := range tests {
		t.Run(tc.quality, func(t *testing.T) {
			cfg := testConfig(t)
			s := newFlatSim(t, cfg, tc.quality)
			s.Scheduler().Track(true)

			var med, far []uint64
			for k := 0; k < 4; k++ {
				med = append(med, mustSpawn(t, s, SpawnSpec{
					Species: components.SpeciesGrazer, Brainless: true,
					Pos: components.Position{X: tc.medX, Z: float32(k)},
				}))
				far = append(far, mustSpawn(t, s, SpawnSpec{
					Species: components.SpeciesGrazer, Brainless: true,
					Pos: components.Position{X: tc.farX, Z: float32(k)},
				}))
			}

			s.Run(tc.frames)

			snap := s.Snapshot()
			tiers := make(map[uint64]lod.Tier, len(snap.Agents))
			for _, a := range snap.Agents {
				tiers[a.ID] = a.Tier
			}
			for _, id := range med {
				if tiers[id] != tc.medTier {
					t.Errorf("agent %d tier = %v, want %v", id, tiers[id], tc.medTier)
				}
				if got := s.Scheduler().TickCount(id); got != tc.medN {
					t.Errorf("medium agent %d ticked %d times, want %d", id, got, tc.medN)
				}
			}
			for _, id := range far {
				if tiers[id] != tc.farTier {
					t.Errorf("agent %d tier = %v, want %v", id, tiers[id], tc.farTier)
				}
				if got := s.Scheduler().TickCount(id); got != tc.farN {
					t.Errorf("far agent %d ticked %d times, want %d", id, got, tc.farN)
				}
			}
		})
	}
}

func TestDispatchFallback(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	dev, ok := s.Device().(*compute.SoftwareDevice)
	if !ok {
		t.Fatalf("device = %T, want software device", s.Device())
	}
	events := s.Events().Subscribe()

	ids := make([]uint64, 6)
	for k := range ids {
		angle := float64(k) * math.Pi / 3
		ids[k] = mustSpawn(t, s, SpawnSpec{
			Species:   components.SpeciesGrazer,
			Pos:       components.Position{X: float32(50 * math.Cos(angle)), Z: float32(50 * math.Sin(angle))},
			Heading:   float32(angle),
			Brainless: true,
		})
	}
	before := positions(t, s, ids)
	start := s.Level()

	dev.Inject(compute.FaultFail)
	s.Step()

	after := positions(t, s, ids)
	for k, id := range ids {
		moved := before[k] != after[k]
		due := id%3 == 0
		if due && !moved {
			t.Errorf("agent %d was in the failed batch but did not move", id)
		}
		if !due && moved {
			t.Errorf("agent %d was not due but moved", id)
		}
	}
	if fb := s.PipelineStats().Fallbacks; fb != 1 {
		t.Errorf("fallbacks = %d, want 1", fb)
	}
	if s.Level() != start+1 {
		t.Errorf("level = %d, want %d", s.Level(), start+1)
	}

	var diag, quality int
	for _, e := range events.Drain(nil) {
		switch e.Type {
		case telemetry.EventDiagnostic:
			diag++
		case telemetry.EventQuality:
			quality++
			if e.Level != start+1 {
				t.Errorf("quality event level = %d, want %d", e.Level, start+1)
			}
		}
	}
	if diag == 0 {
		t.Error("no diagnostic event for the failed dispatch")
	}
	if quality != 1 {
		t.Errorf("quality events = %d, want 1", quality)
	}

	// Later batches go through the device again.
	s.Run(6)
	if st := s.PipelineStats(); st.Completed == 0 {
		t.Errorf("no batch completed after the fault: %+v", st)
	}
}

// A quality step-down raised by a failed dispatch must not disturb the
// index the rest of that frame reads: NEAR agents still perceive and
// strike within the same frame.
func TestStepDownMidFrameKeepsIndex(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	dev, ok := s.Device().(*compute.SoftwareDevice)
	if !ok {
		t.Fatalf("device = %T, want software device", s.Device())
	}

	hunter := mustSpawn(t, s, SpawnSpec{
		Species: components.SpeciesHunter,
		Genome: biasGenome(s, map[int]float64{
			neural.MotorAttack: 3,
			neural.MotorFlee:   -3,
			neural.MotorRest:   -3,
		}),
	})
	prey := mustSpawn(t, s, SpawnSpec{
		Species:   components.SpeciesGrazer,
		Pos:       components.Position{X: 1},
		Brainless: true,
	})
	// A ring of MEDIUM agents so the frame dispatches a batch.
	for k := range 6 {
		angle := float64(k) * math.Pi / 3
		mustSpawn(t, s, SpawnSpec{
			Species:   components.SpeciesGrazer,
			Pos:       components.Position{X: float32(50 * math.Cos(angle)), Z: float32(50 * math.Sin(angle))},
			Brainless: true,
		})
	}
	healthBefore := mustAgent(t, s, prey).Phys.Health
	start := s.Level()
	fine := s.Index().Fine.CellSize()

	dev.Inject(compute.FaultFail)
	s.Step()

	if s.Level() != start+1 {
		t.Fatalf("level = %d, want %d after the failed dispatch", s.Level(), start+1)
	}
	if n := s.Index().Len(); n != 8 {
		t.Errorf("index holds %d agents in the step-down frame, want 8", n)
	}
	if p, ok := s.Agent(prey); ok && p.Phys.Alive && p.Phys.Health >= healthBefore {
		t.Errorf("hunter %d did not strike prey in the step-down frame (health %g)", hunter, p.Phys.Health)
	}

	// The new cell size takes effect when the next frame builds its index.
	want := s.QualityLevels()[s.Level()].GridCellSize
	s.Step()
	if got := s.Index().Fine.CellSize(); got != want {
		t.Errorf("fine cell = %v after the next frame, want %v (was %v)", got, want, fine)
	}
	live := 0
	for range s.Snapshot().Agents {
		live++
	}
	if n := s.Index().Len(); n != live {
		t.Errorf("index holds %d agents, snapshot has %d", n, live)
	}
}
