package sim

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// Save writes the complete simulation state to path. Agents are stored in
// id order so equal states produce equal files.
func (s *Simulation) Save(path string) error {
	state, err := s.rng.MarshalState()
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	f := &telemetry.SaveFile{
		Header: telemetry.SaveHeader{
			Timestamp: time.Now(),
			RNGState:  state,
			SimTime:   s.clock.Time(),
			Frame:     s.frame,
		},
		World: telemetry.WorldRecord{
			TerrainSeed: s.terrainSeed,
			DayPhase:    s.clock.PhaseOffset(),
			NextID:      s.nextID,
		},
	}

	ids := s.sortedIDs()
	f.Agents = make([]telemetry.AgentRecord, 0, len(ids))
	var buf bytes.Buffer
	for _, id := range ids {
		pos, vel, rot, org, phys, lin, _, traits := s.agents.Get(s.byID[id])
		if !phys.Alive {
			continue
		}
		rec := telemetry.AgentRecord{
			ID:         id,
			Species:    org.Species,
			Pos:        *pos,
			Vel:        *vel,
			Heading:    rot.Heading,
			Energy:     phys.Energy,
			MaxEnergy:  phys.MaxEnergy,
			Health:     phys.Health,
			MaxHealth:  phys.MaxHealth,
			Age:        phys.Age,
			Generation: lin.Generation,
			Parents:    [2]uint64{lin.ParentA, lin.ParentB},
			Clade:      int32(lin.Clade),
			Kills:      org.KillCount,
			Sterile:    lin.Sterile,
			Hybrid:     lin.Hybrid,
			Traits:     *traits,
		}
		if b := s.brains[id]; b != nil {
			buf.Reset()
			if err := neural.EncodeGenome(&buf, b.Genome); err != nil {
				return fmt.Errorf("save %s: agent %d: %w", path, id, err)
			}
			rec.Genome = bytes.Clone(buf.Bytes())
			rec.BrainState = b.State()
		}
		f.Agents = append(f.Agents, rec)
	}

	patches := s.food.Patches()
	f.Food = make([]telemetry.FoodRecord, len(patches))
	for i, p := range patches {
		f.Food[i] = telemetry.FoodRecord{X: p.X, Y: p.Y, Z: p.Z, Kind: p.Kind, Residual: p.Biomass, Capacity: p.Capacity}
	}
	q := s.corpseFilter.Query()
	for q.Next() {
		pos, c := q.Get()
		f.Corpses = append(f.Corpses, telemetry.CorpseRecord{X: pos.X, Y: pos.Y, Z: pos.Z, Corpse: *c})
	}

	if err := telemetry.SaveToFile(path, f); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	slog.Info("saved simulation", "path", path, "frame", s.frame, "agents", len(f.Agents), "corpses", len(f.Corpses))
	return nil
}

// restored is one agent decoded from a save, ready to insert.
type restored struct {
	rec   agentRecord
	brain *neural.Brain
}

// Load replaces the simulation state with the save at path. The file is
// fully decoded and validated first; on error the running state is left
// untouched.
func (s *Simulation) Load(path string) error {
	f, err := telemetry.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	agents, err := s.decodeAgents(f)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := s.rng.UnmarshalState(f.Header.RNGState); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	s.pipeline.Drain()
	s.clearAgents()
	s.clearCorpses()

	if f.World.TerrainSeed != s.terrainSeed {
		s.regenerateTerrain(f.World.TerrainSeed)
	}
	s.clock.SetTime(f.Header.SimTime, f.World.DayPhase)
	s.steer.SetSeason(s.clock.Season())
	patches := make([]world.Patch, len(f.Food))
	for i, r := range f.Food {
		patches[i] = world.Patch{X: r.X, Y: r.Y, Z: r.Z, Kind: r.Kind, Biomass: r.Residual, Capacity: r.Capacity}
	}
	s.food.Restore(patches)
	for _, c := range f.Corpses {
		s.carrion.add(components.Position{X: c.X, Y: c.Y, Z: c.Z}, c.Corpse)
	}

	s.frame = f.Header.Frame
	dt := s.cfg.Derived.DT32
	for i := range agents {
		a := &agents[i]
		if a.brain != nil {
			s.tracker.Observe(a.brain.Genome)
		}
		s.insert(a.rec, a.brain)
		born := s.frame
		if dt > 0 {
			born -= min(uint64(a.rec.phys.Age/dt), s.frame)
		}
		s.lifetime.Register(a.rec.org.ID, born, a.rec.lin.Generation)
	}
	s.nextID = max(f.World.NextID, s.nextID)
	if gen := s.cfg.NEAT.GenerationSeconds; gen > 0 {
		s.nextGenAt = s.clock.Time() + gen
	}
	s.publishSnapshot()

	slog.Info("loaded simulation", "path", path, "frame", s.frame, "agents", len(agents), "corpses", len(f.Corpses))
	return nil
}

// decodeAgents rebuilds every agent of f without touching the simulation.
func (s *Simulation) decodeAgents(f *telemetry.SaveFile) ([]restored, error) {
	out := make([]restored, 0, len(f.Agents))
	seen := make(map[uint64]struct{}, len(f.Agents))
	var nextID uint64 = 1
	for i := range f.Agents {
		a := &f.Agents[i]
		if s.pols[a.Species] == nil {
			return nil, fmt.Errorf("agent %d: %s: %w", a.ID, a.Species, ErrUnknownSpecies)
		}
		if _, dup := seen[a.ID]; dup || a.ID == 0 {
			return nil, fmt.Errorf("agent %d: %w: duplicate or zero id", a.ID, telemetry.ErrCorruptSave)
		}
		seen[a.ID] = struct{}{}
		nextID = max(nextID, a.ID+1)
		if !finite32(a.Pos.X) || !finite32(a.Pos.Y) || !finite32(a.Pos.Z) {
			return nil, fmt.Errorf("agent %d: %w: non-finite position", a.ID, telemetry.ErrCorruptSave)
		}

		var brain *neural.Brain
		if len(a.Genome) > 0 {
			g, err := neural.DecodeGenome(bytes.NewReader(a.Genome))
			if err != nil {
				return nil, fmt.Errorf("agent %d: %w", a.ID, err)
			}
			brain, err = neural.NewBrain(g)
			if err != nil {
				return nil, fmt.Errorf("agent %d: %w", a.ID, err)
			}
			brain.RestoreState(a.BrainState)
		}

		r := agentRecord{
			pos: a.Pos,
			vel: a.Vel,
			rot: components.Rotation{Heading: a.Heading},
			org: components.Organism{ID: a.ID, Species: a.Species, KillCount: a.Kills},
			phys: components.Physiology{
				Energy:    a.Energy,
				MaxEnergy: a.MaxEnergy,
				Health:    a.Health,
				MaxHealth: a.MaxHealth,
				Age:       a.Age,
				Alive:     true,
			},
			lin: components.Lineage{
				Generation: a.Generation,
				ParentA:    a.Parents[0],
				ParentB:    a.Parents[1],
				Sterile:    a.Sterile,
				Hybrid:     a.Hybrid,
				Clade:      int(a.Clade),
			},
			traits: a.Traits,
		}
		if r.phys.MaxEnergy > 0 {
			r.phys.Hunger = 1 - r.phys.Energy/r.phys.MaxEnergy
		}
		out = append(out, restored{rec: r, brain: brain})
	}
	if f.World.NextID < nextID {
		return nil, fmt.Errorf("%w: next id %d not above agent ids", telemetry.ErrCorruptSave, f.World.NextID)
	}
	return out, nil
}

// clearAgents removes every agent and resets the bookkeeping keyed by id.
func (s *Simulation) clearAgents() {
	var doomed []ecs.Entity
	q := s.filter.Query()
	for q.Next() {
		doomed = append(doomed, q.Entity())
	}
	for _, e := range doomed {
		s.world.RemoveEntity(e)
	}
	clear(s.byID)
	clear(s.brains)
	clear(s.corpseAt)
	s.census = [components.NumSpecies]int{}
	s.births = s.births[:0]
	s.slots = s.slots[:0]
	s.lifetime.Reset()
	opts := s.params.Options
	for sp := range s.niches {
		s.niches[sp] = neural.NewSpeciesManager(opts)
	}
}

func (s *Simulation) clearCorpses() {
	var doomed []ecs.Entity
	q := s.corpseFilter.Query()
	for q.Next() {
		doomed = append(doomed, q.Entity())
	}
	for _, e := range doomed {
		s.world.RemoveEntity(e)
	}
	s.carrion.rebuild(s.corpseFilter)
}

// regenerateTerrain rebuilds generated terrain for a different seed.
// Supplied terrain is kept as is.
func (s *Simulation) regenerateTerrain(seed int64) {
	if !s.ownTerrain {
		slog.Warn("save terrain seed differs from supplied terrain; keeping current terrain",
			"saved_seed", seed, "current_seed", s.terrainSeed)
		return
	}
	s.terrain = world.NewTerrain(s.cfg.World, seed)
	s.terrainSeed = seed
	s.food = world.NewEmptyFoodField(s.cfg.Food, s.terrain)
	s.foods.field = s.food
	s.perceiver.Terrain = s.terrain
}

