package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/yaricom/goNEAT/v4/neat/genetics"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/rng"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// ErrUnknownSpecies is returned when spawning a species the configuration
// does not define.
var ErrUnknownSpecies = errors.New("species not configured")

// SpawnSpec describes one agent to create. Zero values pick defaults:
// Energy becomes the species' initial energy, a nil Genome a fresh random
// one, a nil Traits the neutral genotype.
type SpawnSpec struct {
	Species components.Species
	Pos     components.Position
	Heading float32
	Energy  float32
	Age     float32

	Genome    *genetics.Genome
	Brainless bool // no brain; steering uses the fallback motor
	Traits    *components.Traits

	Generation  uint32
	Parents     [2]uint64
	Hybrid      bool
	Sterile     bool
	GeneticLoad float32
	KillCount   int32

	// SnapY places the agent at its habitat's height instead of Pos.Y.
	SnapY bool
}

// Spawn creates an agent and returns its id. Ids are never reused.
func (s *Simulation) Spawn(spec SpawnSpec) (uint64, error) {
	pol := s.policy(spec.Species)
	if pol == nil {
		return 0, fmt.Errorf("spawn %s: %w", spec.Species, ErrUnknownSpecies)
	}
	p := spec.Pos
	if !finite32(p.X) || !finite32(p.Y) || !finite32(p.Z) {
		return 0, fmt.Errorf("spawn %s: non-finite position (%g, %g, %g)", spec.Species, p.X, p.Y, p.Z)
	}
	p.X, p.Z = s.bounds.Clamp(p.X, p.Z)
	if spec.SnapY {
		p.Y = s.habitatY(pol, p.X, p.Z)
	}

	genome := spec.Genome
	if genome == nil && !spec.Brainless {
		genome = neural.CreateBrainGenome(s.tracker.NextGenomeID(), s.params.InitialConnectionProb, s.tracker, s.rng)
	}
	var brain *neural.Brain
	if genome != nil {
		s.tracker.Observe(genome)
		b, err := neural.NewBrain(genome)
		if err != nil {
			return 0, fmt.Errorf("spawn %s: %w", spec.Species, err)
		}
		brain = b
	}

	traits := components.NeutralTraits()
	if spec.Traits != nil {
		traits = *spec.Traits
	}
	energy := spec.Energy
	if energy <= 0 {
		energy = pol.InitialEnergy
	}
	energy = min(energy, pol.MaxEnergy)

	id := s.nextID
	s.nextID++

	org := components.Organism{ID: id, Species: spec.Species, KillCount: spec.KillCount}
	phys := components.Physiology{
		Energy:    energy,
		MaxEnergy: pol.MaxEnergy,
		Health:    pol.MaxHealth,
		MaxHealth: pol.MaxHealth,
		Age:       max(spec.Age, 0),
		Alive:     true,
	}
	if phys.MaxEnergy > 0 {
		phys.Hunger = 1 - phys.Energy/phys.MaxEnergy
	}
	lin := components.Lineage{
		Generation:  spec.Generation,
		ParentA:     spec.Parents[0],
		ParentB:     spec.Parents[1],
		Sterile:     spec.Sterile,
		Hybrid:      spec.Hybrid,
		GeneticLoad: spec.GeneticLoad,
	}
	rot := components.Rotation{Heading: spec.Heading}
	s.insert(agentRecord{
		pos: p, rot: rot, org: org, phys: phys, lin: lin, traits: traits,
	}, brain)

	s.lifetime.Register(id, s.frame, spec.Generation)
	s.emit(telemetry.NewBornEvent(s.frame, id, spec.Species, spec.Parents))
	return id, nil
}

// agentRecord is the full component set of one agent.
type agentRecord struct {
	pos    components.Position
	vel    components.Velocity
	rot    components.Rotation
	org    components.Organism
	phys   components.Physiology
	lin    components.Lineage
	mem    components.Memory
	traits components.Traits
}

// insert creates the entity for r and registers it with the id table and
// its NEAT species.
func (s *Simulation) insert(r agentRecord, brain *neural.Brain) {
	id, sp := r.org.ID, r.org.Species
	if brain != nil {
		r.lin.Clade = s.niches[sp].AssignSpecies(brain.Genome)
		s.niches[sp].AddMember(r.lin.Clade, id)
	}
	e := s.agents.NewEntity(&r.pos, &r.vel, &r.rot, &r.org, &r.phys, &r.lin, &r.mem, &r.traits)
	s.byID[id] = e
	if brain != nil {
		s.brains[id] = brain
	}
	s.census[sp]++
}

// policy returns the policy of sp, or nil when it is not configured.
func (s *Simulation) policy(sp components.Species) *systems.Policy {
	if sp >= components.NumSpecies {
		return nil
	}
	return s.pols[sp]
}

// populate spawns n agents split by each species' initial share.
func (s *Simulation) populate(n int) error {
	if n == 0 {
		return nil
	}
	var total float64
	for i := range s.cfg.Species {
		total += max(s.cfg.Species[i].InitialShare, 0)
	}
	if total <= 0 {
		return nil
	}
	placed := 0
	for i := range s.cfg.Species {
		sc := &s.cfg.Species[i]
		sp, _ := components.ParseSpecies(sc.Tag)
		count := int(math.Round(float64(n) * max(sc.InitialShare, 0) / total))
		if i == len(s.cfg.Species)-1 {
			count = n - placed
		}
		count = min(count, n-placed)
		for range count {
			if err := s.spawnRandom(sp, nil); err != nil {
				return fmt.Errorf("initial population: %w", err)
			}
		}
		placed += count
	}
	return nil
}

// spawnRandom places one agent of sp anywhere in its habitat, or near
// around when it is not nil.
func (s *Simulation) spawnRandom(sp components.Species, around *components.Position) error {
	pol := s.policy(sp)
	if pol == nil {
		return fmt.Errorf("spawn %s: %w", sp, ErrUnknownSpecies)
	}
	x, z := s.findSite(pol, around)
	_, err := s.Spawn(SpawnSpec{
		Species: sp,
		Pos:     components.Position{X: x, Z: z},
		Heading: rng.Range(s.rng, -math.Pi, math.Pi),
		SnapY:   true,
	})
	return err
}

// findSite samples a position whose terrain suits the habitat, falling
// back to the last sample.
func (s *Simulation) findSite(pol *systems.Policy, around *components.Position) (float32, float32) {
	var x, z float32
	jitter := float32(s.cfg.Lifecycle.SpawnJitter)
	for try := 0; try < 32; try++ {
		if around != nil {
			x = around.X + rng.Range(s.rng, -jitter, jitter)
			z = around.Z + rng.Range(s.rng, -jitter, jitter)
			x, z = s.bounds.Clamp(x, z)
		} else {
			x = rng.Range(s.rng, s.bounds.MinX, s.bounds.MaxX)
			z = rng.Range(s.rng, s.bounds.MinZ, s.bounds.MaxZ)
		}
		if habitatAllows(pol, s.terrain, x, z) {
			break
		}
	}
	return x, z
}

func habitatAllows(pol *systems.Policy, terr world.Terrain, x, z float32) bool {
	switch pol.Habitat {
	case components.HabitatAquatic:
		return terr.IsWater(x, z)
	case components.HabitatTerrestrial:
		return !terr.IsWater(x, z)
	}
	return true
}

// habitatY is the resting height of a habitat at (x, z).
func (s *Simulation) habitatY(pol *systems.Policy, x, z float32) float32 {
	ground := s.terrain.Height(x, z)
	switch pol.Habitat {
	case components.HabitatAquatic:
		y := s.terrain.WaterLevel() - pol.PreferredDepth
		return max(y, ground)
	case components.HabitatAerial:
		return ground + pol.CruiseAltitude
	}
	return ground
}

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
