package neural

// Inputs is the canonical sensory vector. Distances and magnitudes are in
// [0, 1]; bearings and signed quantities are in [-1, 1].
type Inputs [NumInputs]float32

// Sensory slots.
const (
	InFoodDist = iota
	InFoodBearing
	InThreatDist
	InThreatBearing
	InPreyDist
	InPreyBearing
	InAllyDist
	InAllyBearing
	InEnergy
	InHealth
	InAge
	InTerrainHeight
	InWaterDepth
	InRecentlyAttacked
	InRecentlyAte
	InTimeSin
	InTimeCos
	InDensity
	InMemoryFood
	InMemoryThreat
	InFear
	InCuriosity
	InAggression
	InReserved0 // pheromone gradient x for colonial species
	InReserved1 // pheromone gradient z for colonial species
	InReserved2
	InReserved3
)

// InputNames returns a short label per slot.
func InputNames() [NumInputs]string {
	return [NumInputs]string{
		"food_dist", "food_bearing", "threat_dist", "threat_bearing",
		"prey_dist", "prey_bearing", "ally_dist", "ally_bearing",
		"energy", "health", "age", "terrain_height", "water_depth",
		"recently_attacked", "recently_ate", "time_sin", "time_cos",
		"density", "memory_food", "memory_threat",
		"fear", "curiosity", "aggression",
		"reserved0", "reserved1", "reserved2", "reserved3",
	}
}

// Reset fills the vector with the "nothing perceived" defaults: distance
// slots at 1, everything else 0.
func (in *Inputs) Reset() {
	*in = Inputs{}
	in[InFoodDist] = 1
	in[InThreatDist] = 1
	in[InPreyDist] = 1
	in[InAllyDist] = 1
}
