package config

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/forge/components"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects configurations the simulation cannot run with.
func (c *Config) Validate() error {
	w := c.World
	if !(w.MaxX > w.MinX) || !(w.MaxZ > w.MinZ) {
		return invalid("world bounds are empty: x [%g, %g], z [%g, %g]", w.MinX, w.MaxX, w.MinZ, w.MaxZ)
	}
	if w.Terrain != "noise" && w.Terrain != "flat" {
		return invalid("unknown terrain %q", w.Terrain)
	}
	if w.HeightScale <= 0 {
		return invalid("height_scale must be positive")
	}
	if c.Physics.DT <= 0 {
		return invalid("physics.dt must be positive")
	}
	if c.Physics.FineCellSize <= 0 || c.Physics.CoarseCellSize < c.Physics.FineCellSize {
		return invalid("cell sizes must satisfy 0 < fine <= coarse (fine=%g coarse=%g)",
			c.Physics.FineCellSize, c.Physics.CoarseCellSize)
	}
	if c.Population.Initial < 0 {
		return invalid("population.initial must not be negative")
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if c.GPU.TimeoutMS <= 0 {
		return invalid("gpu.timeout_ms must be positive")
	}
	if c.HallOfFame.Enabled && c.HallOfFame.Size < 1 {
		return invalid("hall_of_fame.size must be at least 1 when enabled")
	}
	if len(c.Species) == 0 {
		return invalid("species table is empty")
	}
	seen := make(map[components.Species]bool)
	for i := range c.Species {
		if err := validateSpecies(&c.Species[i]); err != nil {
			return err
		}
		s, _ := components.ParseSpecies(c.Species[i].Tag)
		if seen[s] {
			return invalid("species %q listed twice", c.Species[i].Tag)
		}
		seen[s] = true
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if len(q.Levels) == 0 {
		return invalid("quality.levels is empty")
	}
	if q.Window < 1 || q.TargetFrameMS <= 0 {
		return invalid("quality window and target must be positive")
	}
	found := false
	for _, lvl := range q.Levels {
		if lvl.Name == q.Initial {
			found = true
		}
		if !(lvl.NearDistance <= lvl.MediumDistance && lvl.MediumDistance <= lvl.FarDistance) {
			return invalid("quality level %q distances must be ordered", lvl.Name)
		}
		if lvl.MediumCadence < 1 || lvl.FarCadence < 1 {
			return invalid("quality level %q cadences must be at least 1", lvl.Name)
		}
		if lvl.GridCellSize <= 0 || lvl.MaxAgents < 1 || lvl.DispatchWidth < 1 {
			return invalid("quality level %q has non-positive limits", lvl.Name)
		}
	}
	if !found {
		return invalid("initial quality level %q not in levels", q.Initial)
	}
	return nil
}

func validateSpecies(sp *SpeciesConfig) error {
	if _, ok := components.ParseSpecies(sp.Tag); !ok {
		return invalid("unknown species tag %q", sp.Tag)
	}
	if _, ok := components.ParseHabitat(sp.Habitat); !ok {
		return invalid("species %q: unknown habitat %q", sp.Tag, sp.Habitat)
	}
	if _, ok := components.ParseDiet(sp.Diet); !ok {
		return invalid("species %q: unknown diet %q", sp.Tag, sp.Diet)
	}
	for _, p := range sp.Prey {
		if _, ok := components.ParseSpecies(p); !ok {
			return invalid("species %q: unknown prey %q", sp.Tag, p)
		}
	}
	if sp.Mass <= 0 || sp.MaxSpeed <= 0 || sp.MaxForce <= 0 {
		return invalid("species %q: mass, max_speed and max_force must be positive", sp.Tag)
	}
	if sp.MaxEnergy <= 0 || sp.MaxHealth <= 0 || sp.MaxAge <= 0 {
		return invalid("species %q: max_energy, max_health and max_age must be positive", sp.Tag)
	}
	if sp.KillEnergyGain < 0 || sp.KillEnergyGain > 0.8 {
		return invalid("species %q: kill_energy_gain %g outside [0, 0.8]", sp.Tag, sp.KillEnergyGain)
	}
	if sp.VisionRange <= 0 {
		return invalid("species %q: vision_range must be positive", sp.Tag)
	}
	return nil
}
