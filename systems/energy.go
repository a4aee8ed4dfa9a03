package systems

import (
	"github.com/pthm-cable/forge/components"
)

// UpdateEnergy applies metabolic costs, advances timers and checks for
// death. efficiency is the expressed metabolism trait; higher burns less.
// moveCost comes from the integrator. Returns the energy spent.
func UpdateEnergy(
	ph *components.Physiology,
	pol *Policy,
	efficiency float32,
	moveCost float32,
	healthRegen float32,
	dt float32,
) float32 {
	if !ph.Alive {
		return 0
	}

	// Age
	ph.Age += dt
	ph.SinceAttacked += dt
	ph.SinceAte += dt
	ph.HuntCooldown = max(0, ph.HuntCooldown-dt)
	ph.ReproCooldown = max(0, ph.ReproCooldown-dt)

	if efficiency <= 0 {
		efficiency = 1
	}
	cost := pol.Metabolism/efficiency*dt + moveCost
	before := ph.Energy
	ph.Energy -= cost

	// Well fed agents heal.
	if ph.Energy > 0.5*ph.MaxEnergy && ph.Health < ph.MaxHealth {
		ph.Health = min(ph.MaxHealth, ph.Health+healthRegen*dt)
	}

	// Clamp energy
	if ph.Energy > ph.MaxEnergy {
		ph.Energy = ph.MaxEnergy
	}
	if ph.Energy < 0 {
		ph.Energy = 0
	}
	if ph.MaxEnergy > 0 {
		ph.Hunger = 1 - ph.Energy/ph.MaxEnergy
	}

	// Death check
	switch {
	case ph.Energy <= 0:
		Kill(ph, components.CauseStarvation)
	case ph.Health <= 0:
		Kill(ph, components.CauseInjury)
	case ph.Age > pol.MaxAge:
		Kill(ph, components.CauseOldAge)
	}
	return before - ph.Energy
}

// Kill marks an agent dead and records the energy it died with.
func Kill(ph *components.Physiology, cause components.DeathCause) {
	if !ph.Alive {
		return
	}
	ph.Alive = false
	ph.Cause = cause
	ph.EnergyAtDeath = ph.Energy
}

// GainEnergy adds food energy, clamped to the maximum, and returns the
// amount actually absorbed.
func GainEnergy(ph *components.Physiology, amount float32) float32 {
	if !ph.Alive || amount <= 0 {
		return 0
	}
	room := ph.MaxEnergy - ph.Energy
	got := min(amount, max(room, 0))
	ph.Energy += got
	ph.SinceAte = 0
	return got
}

// TransferEnergy drains a host for a parasite.
// Returns the amount of energy taken from the host.
func TransferEnergy(
	parasite *components.Physiology,
	host *components.Physiology,
	amount float32,
) float32 {
	if !parasite.Alive || !host.Alive {
		return 0
	}

	// Take from host
	actual := min(amount, host.Energy)
	host.Energy -= actual
	host.SinceAttacked = 0
	GainEnergy(parasite, actual)

	// Check host death
	if host.Energy <= 0 {
		host.Energy = 0
		Kill(host, components.CauseStarvation)
	}

	return actual
}

// Damage removes health and reports whether the hit was fatal.
func Damage(ph *components.Physiology, amount float32, cause components.DeathCause) bool {
	if !ph.Alive || amount <= 0 {
		return false
	}
	ph.Health -= amount
	ph.SinceAttacked = 0
	if ph.Health <= 0 {
		ph.Health = 0
		Kill(ph, cause)
		return true
	}
	return false
}
