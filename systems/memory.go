package systems

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
)

// Modulators holds the neuromodulator rates.
type Modulators struct {
	FearDecay       float32
	CuriosityRise   float32
	CuriosityDecay  float32
	AggressionDecay float32
}

// ModulatorsFromConfig converts the perception section.
func ModulatorsFromConfig(c config.PerceptionConfig) Modulators {
	return Modulators{
		FearDecay:       float32(c.FearDecay),
		CuriosityRise:   float32(c.CuriosityRise),
		CuriosityDecay:  float32(c.CuriosityDecay),
		AggressionDecay: float32(c.AggressionDecay),
	}
}

// UpdateMemory records what an agent just perceived and advances its
// neuromodulators. Bearings are stored world-absolute.
func UpdateMemory(mem *components.Memory, self *Subject, pc *Percept, phys *components.Physiology, m Modulators, dt float32) {
	if pc.Food.Found {
		mem.LastFoodBearing = float32(math.Atan2(float64(pc.Food.Z-self.Z), float64(pc.Food.X-self.X)))
		mem.HasFood = true
	}
	if pc.Threat.Found {
		mem.LastThreatBearing = float32(math.Atan2(float64(pc.Threat.Z-self.Z), float64(pc.Threat.X-self.X)))
		mem.HasThreat = true
	}

	// Fear jumps toward closeness of the threat and decays otherwise.
	if pc.Threat.Found && self.Vision > 0 {
		closeness := 1 - clamp01(float32(math.Sqrt(float64(pc.Threat.DistSq)))/self.Vision)
		mem.Fear = max(mem.Fear, closeness)
	} else {
		mem.Fear -= m.FearDecay * dt
	}

	if !pc.Food.Found && !pc.Prey.Found && !pc.Ally.Found {
		mem.Curiosity += m.CuriosityRise * dt
	} else {
		mem.Curiosity -= m.CuriosityDecay * dt
	}

	if phys != nil && phys.MaxEnergy > 0 && pc.Prey.Found {
		hunger := 1 - phys.Energy/phys.MaxEnergy
		mem.Aggression = max(mem.Aggression, hunger)
	} else {
		mem.Aggression -= m.AggressionDecay * dt
	}

	mem.Fear = clamp01(mem.Fear)
	mem.Curiosity = clamp01(mem.Curiosity)
	mem.Aggression = clamp01(mem.Aggression)
}
