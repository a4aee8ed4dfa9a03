// Package components defines ECS components for the simulation.
package components

// DeathCause records why an agent died.
type DeathCause uint8

const (
	CauseNone DeathCause = iota
	CauseStarvation
	CauseInjury
	CauseOldAge
	CausePredation
	CauseCulled
	CauseDisaster
)

var deathCauseNames = [...]string{"none", "starvation", "injury", "old_age", "predation", "culled", "disaster"}

func (c DeathCause) String() string {
	if int(c) < len(deathCauseNames) {
		return deathCauseNames[c]
	}
	return "unknown"
}

// Corpse is the residue of a dead agent. Scavengers eat Biomass; when it
// reaches zero the corpse is removed and its nutrients are released.
type Corpse struct {
	Biomass   float32
	Initial   float32
	Source    Species
	Age       float32 // seconds since death
	DecayRate float32 // biomass per second before environmental scaling
}
