package components

// Organism bundles identity and per-agent counters.
type Organism struct {
	ID        uint64
	Species   Species
	Tier      uint8 // LOD tier assigned this frame
	KillCount int32
	Children  int32
}

// Physiology tracks an agent's metabolic state.
// Energy is absolute; perception normalises by MaxEnergy.
type Physiology struct {
	Energy    float32
	MaxEnergy float32
	Health    float32
	MaxHealth float32
	Age       float32 // seconds alive
	Hunger    float32 // 0..1
	Alive     bool
	Cause     DeathCause

	HuntCooldown  float32 // seconds until the agent can attack again
	ReproCooldown float32 // seconds until the agent can reproduce again
	SinceAttacked float32 // seconds since last damage taken
	SinceAte      float32 // seconds since last meal

	Distance      float32 // total distance travelled
	EnergyAtDeath float32
	PhysioTimer   float32 // accumulator for 1 Hz ticks while culled
}

// Lineage is fixed at birth.
type Lineage struct {
	Generation  uint32
	ParentA     uint64 // 0 when absent
	ParentB     uint64
	Sterile     bool
	Hybrid      bool
	GeneticLoad float32 // 0..1, inbreeding and hybrid penalties
	Clade       int     // NEAT species id
}

// Memory holds short-term recall and neuromodulators.
// Bearings are world-absolute and converted to heading-relative on read.
type Memory struct {
	LastFoodBearing   float32
	LastThreatBearing float32
	HasFood           bool
	HasThreat         bool

	Fear       float32
	Curiosity  float32
	Aggression float32

	Foraged float32 // lifetime energy gained from eating
}
