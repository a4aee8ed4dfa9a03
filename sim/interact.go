package sim

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// attackIntent is the attack motor level that commits to a strike.
const attackIntent = 0.5

// interact resolves predation, parasitism and feeding for every agent that
// is not CULLED. Targets are found in the frame-start index and confirmed
// against current positions.
func (s *Simulation) interact(dt float32) {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.tier == lod.TierCulled {
			continue
		}
		pos, _, _, org, phys, _, mem, _ := s.agents.Get(sl.e)
		if !phys.Alive {
			continue
		}
		pol := s.pols[org.Species]
		m := s.motorOf(sl.id, mem)
		if pol.Hunts() {
			if pol.Diet == components.DietParasite {
				s.parasitise(pol, org, phys, pos, dt)
			} else if m.Attack() >= attackIntent && phys.HuntCooldown <= 0 {
				s.strike(pol, org, phys, mem, pos)
			}
		}
		if pol.EatsFood() && m.Eat() >= float32(s.cfg.Food.EatThreshold) {
			s.feed(pol, org, phys, mem, pos, dt)
		}
	}
}

// nearestPrey returns the entity slot of the closest living prey within r
// of pos, measured at current positions, or -1.
func (s *Simulation) nearestPrey(pol *systems.Policy, self uint64, pos *components.Position, r float32) int32 {
	s.near = s.index.QueryRadiusInto(s.near[:0], pos.X, pos.Z, r+s.reach, self)
	best, bestD := int32(-1), r*r
	for _, n := range s.near {
		sl := &s.slots[n.Slot]
		if !pol.PreyMask.Has(sl.species) {
			continue
		}
		vpos, _, _, _, vphys, _, _, _ := s.agents.Get(sl.e)
		if !vphys.Alive {
			continue
		}
		dx, dz := vpos.X-pos.X, vpos.Z-pos.Z
		if d := dx*dx + dz*dz; d <= bestD {
			best, bestD = n.Slot, d
		}
	}
	return best
}

// strike attacks the nearest prey in range. A fatal hit pays the attacker a
// share of the victim's energy; the rest is left as the corpse.
func (s *Simulation) strike(pol *systems.Policy, org *components.Organism, phys *components.Physiology, mem *components.Memory, pos *components.Position) {
	v := s.nearestPrey(pol, org.ID, pos, pol.AttackRange)
	if v < 0 {
		return
	}
	phys.HuntCooldown = pol.HuntCooldown
	victim := &s.slots[v]
	_, _, _, vorg, vphys, _, vmem, _ := s.agents.Get(victim.e)
	vmem.Fear = 1
	if !systems.Damage(vphys, pol.AttackDamage, components.CausePredation) {
		return
	}
	got := systems.GainEnergy(phys, pol.KillGain*vphys.EnergyAtDeath)
	s.corpseAt[vorg.ID] = max(vphys.EnergyAtDeath-got, 0)
	org.KillCount++
	mem.Aggression = 0
	s.emit(telemetry.NewKilledEvent(s.frame, org.ID, org.Species, vorg.ID))
}

// parasitise drains the nearest host in reach.
func (s *Simulation) parasitise(pol *systems.Policy, org *components.Organism, phys *components.Physiology, pos *components.Position, dt float32) {
	h := s.nearestPrey(pol, org.ID, pos, pol.AttackRange)
	if h < 0 {
		return
	}
	_, _, _, _, hphys, _, _, _ := s.agents.Get(s.slots[h].e)
	systems.TransferEnergy(phys, hphys, pol.DrainRate*dt)
}

// feed eats from the nearest food source within reach, trying each kind
// the species eats in order.
func (s *Simulation) feed(pol *systems.Policy, org *components.Organism, phys *components.Physiology, mem *components.Memory, pos *components.Position, dt float32) {
	perUnit := float32(s.cfg.Food.EnergyPerUnit)
	room := phys.MaxEnergy - phys.Energy
	if room <= 0 || perUnit <= 0 {
		return
	}
	r := float32(s.cfg.Food.EatRadius)
	for k, eats := range pol.Food {
		if !eats {
			continue
		}
		kind := world.FoodKind(k)
		s.foodBuf = s.foods.GetFoodNear(s.foodBuf[:0], pos.X, pos.Z, r, kind)
		if len(s.foodBuf) == 0 {
			continue
		}
		item := nearestFood(s.foodBuf, pos.X, pos.Z)
		rate := float32(s.cfg.Food.EatRate)
		if kind == world.FoodCarrion && s.cfg.Lifecycle.ScavengeRate > 0 {
			rate = float32(s.cfg.Lifecycle.ScavengeRate)
		}
		want := min(rate*dt, room/perUnit)
		got := s.foods.ConsumeAt(item.X, item.Z, kind, want)
		if got <= 0 {
			continue
		}
		gained := systems.GainEnergy(phys, got*perUnit)
		mem.Foraged += gained
		s.emit(telemetry.NewAteEvent(s.frame, org.ID, org.Species, kind, gained))
		if pol.Colonial {
			s.pheromones.Deposit(pos.X, pos.Z, dt)
		}
		return
	}
}

func nearestFood(items []world.FoodItem, x, z float32) *world.FoodItem {
	best := 0
	bestD := float32(math.MaxFloat32)
	for i := range items {
		dx, dz := items[i].X-x, items[i].Z-z
		if d := dx*dx + dz*dz; d < bestD {
			best, bestD = i, d
		}
	}
	return &items[best]
}

// maxSpeed is the fastest configured species speed including sprint.
func maxSpeed(pols *systems.PolicyTable) float32 {
	var v float32
	for _, p := range pols {
		if p != nil {
			v = max(v, p.MaxSpeed*(1+p.SprintBoost))
		}
	}
	return v
}

func length2(x, z float32) float32 {
	return float32(math.Sqrt(float64(x*x + z*z)))
}
