package systems

import (
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/world"
)

// Family selects which steering terms the kernel evaluates.
type Family uint8

const (
	FamilyFlock Family = 1 << iota
	FamilyPredatorPrey
	FamilyForage
	FamilyMigrate
)

// Policy is the float32 view of one species record, resolved once at
// startup so hot loops never touch the YAML structs.
type Policy struct {
	Species components.Species
	Habitat components.Habitat
	Diet    components.Diet
	Family  Family

	PreyMask   SpeciesMask // species this one hunts
	ThreatMask SpeciesMask // species that hunt this one
	Food       [world.NumFoodKinds]bool
	Sexual     bool
	Apex       bool
	Colonial   bool
	Migratory  bool
	Capacity   int

	Mass        float32
	MaxSpeed    float32
	MaxForce    float32
	MaxTurnRate float32
	SprintBoost float32

	Vision     float32
	Separation float32
	Mating     float32

	AttackRange    float32
	AttackDamage   float32
	KillGain       float32
	DrainRate      float32
	HuntCooldown   float32
	KillsRequired  int32
	MaxEnergy      float32
	InitialEnergy  float32
	MaxHealth      float32
	MaxAge         float32
	Metabolism     float32
	MoveCost       float32
	ReproThreshold float32
	ReproCost      float32
	Maturity       float32
	ReproCooldown  float32

	PreferredDepth float32
	CruiseAltitude float32
	FlapFrequency  float32

	W Weights
}

// SpeciesMask is a set of species.
type SpeciesMask uint32

// Has reports whether s is in the set.
func (m SpeciesMask) Has(s components.Species) bool { return m&(1<<uint(s)) != 0 }

// With returns the set with s added.
func (m SpeciesMask) With(s components.Species) SpeciesMask { return m | 1<<uint(s) }

// EatsFood reports whether the species eats patches or carrion.
func (p *Policy) EatsFood() bool {
	for _, ok := range p.Food {
		if ok {
			return true
		}
	}
	return false
}

// Hunts reports whether the species attacks live agents.
func (p *Policy) Hunts() bool { return p.PreyMask != 0 }

// Weights are the steering term weights in float32.
type Weights struct {
	Separation, Alignment, Cohesion float32
	Food, Pursue, Evade             float32
	Wander, Boundary, Migration     float32
}

// PolicyTable indexes policies by species. Missing species are nil.
type PolicyTable [components.NumSpecies]*Policy

// NewPolicyTable resolves every species record of cfg.
func NewPolicyTable(cfg *config.Config) *PolicyTable {
	var t PolicyTable
	for i := range cfg.Species {
		sc := &cfg.Species[i]
		s, ok := components.ParseSpecies(sc.Tag)
		if !ok {
			continue
		}
		t[s] = newPolicy(s, sc)
	}
	for s, p := range t {
		if p == nil {
			continue
		}
		for q := components.Species(0); q < components.NumSpecies; q++ {
			if p.PreyMask.Has(q) && t[q] != nil {
				t[q].ThreatMask = t[q].ThreatMask.With(components.Species(s))
				t[q].Family |= FamilyPredatorPrey
			}
		}
	}
	return &t
}

func newPolicy(s components.Species, sc *config.SpeciesConfig) *Policy {
	habitat, _ := components.ParseHabitat(sc.Habitat)
	diet, _ := components.ParseDiet(sc.Diet)
	p := &Policy{
		Species:        s,
		Habitat:        habitat,
		Diet:           diet,
		Sexual:         sc.Sexual,
		Apex:           sc.Apex,
		Colonial:       sc.Colonial,
		Migratory:      sc.Migratory,
		Capacity:       sc.Capacity,
		Mass:           float32(sc.Mass),
		MaxSpeed:       float32(sc.MaxSpeed),
		MaxForce:       float32(sc.MaxForce),
		MaxTurnRate:    float32(sc.MaxTurnRate),
		SprintBoost:    float32(sc.SprintBoost),
		Vision:         float32(sc.VisionRange),
		Separation:     float32(sc.SeparationRadius),
		Mating:         float32(sc.MatingRadius),
		AttackRange:    float32(sc.AttackRange),
		AttackDamage:   float32(sc.AttackDamage),
		KillGain:       float32(sc.KillEnergyGain),
		DrainRate:      float32(sc.DrainRate),
		HuntCooldown:   float32(sc.HuntCooldown),
		KillsRequired:  int32(sc.KillsRequired),
		MaxEnergy:      float32(sc.MaxEnergy),
		InitialEnergy:  float32(sc.InitialEnergy),
		MaxHealth:      float32(sc.MaxHealth),
		MaxAge:         float32(sc.MaxAge),
		Metabolism:     float32(sc.Metabolism),
		MoveCost:       float32(sc.MoveCost),
		ReproThreshold: float32(sc.ReproEnergyThreshold),
		ReproCost:      float32(sc.ReproEnergyCost),
		Maturity:       float32(sc.MaturityAge),
		ReproCooldown:  float32(sc.ReproCooldown),
		PreferredDepth: float32(sc.PreferredDepth),
		CruiseAltitude: float32(sc.CruiseAltitude),
		FlapFrequency:  float32(sc.FlapFrequency),
		W: Weights{
			Separation: float32(sc.Weights.Separation),
			Alignment:  float32(sc.Weights.Alignment),
			Cohesion:   float32(sc.Weights.Cohesion),
			Food:       float32(sc.Weights.Food),
			Pursue:     float32(sc.Weights.Pursue),
			Evade:      float32(sc.Weights.Evade),
			Wander:     float32(sc.Weights.Wander),
			Boundary:   float32(sc.Weights.Boundary),
			Migration:  float32(sc.Weights.Migration),
		},
	}
	for _, tag := range sc.Food {
		if k, ok := world.ParseFoodKind(tag); ok {
			p.Food[k] = true
		}
	}
	if diet == components.DietScavenger {
		p.Food[world.FoodCarrion] = true
	}
	for _, tag := range sc.Prey {
		if q, ok := components.ParseSpecies(tag); ok {
			p.PreyMask = p.PreyMask.With(q)
		}
	}

	if p.W.Separation != 0 || p.W.Alignment != 0 || p.W.Cohesion != 0 {
		p.Family |= FamilyFlock
	}
	if p.PreyMask != 0 {
		p.Family |= FamilyPredatorPrey
	}
	if p.EatsFood() {
		p.Family |= FamilyForage
	}
	if p.Migratory {
		p.Family |= FamilyMigrate
	}
	return p
}
