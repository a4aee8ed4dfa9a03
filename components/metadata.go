package components

import "strings"

// Species is the closed set of agent types. Behaviour per species lives in
// the policy table loaded from configuration.
type Species uint8

const (
	SpeciesGrazer Species = iota
	SpeciesBrowser
	SpeciesHunter
	SpeciesApex
	SpeciesSchoolFish
	SpeciesPredatorFish
	SpeciesFlyer
	SpeciesOmnivore
	SpeciesScavenger
	SpeciesParasite
	SpeciesCleaner

	NumSpecies
)

// SpeciesNames returns the tag for each species, indexed by Species.
func SpeciesNames() []string {
	return []string{
		"grazer", "browser", "hunter", "apex",
		"school_fish", "predator_fish", "flyer",
		"omnivore", "scavenger", "parasite", "cleaner",
	}
}

// String returns the species tag.
func (s Species) String() string {
	names := SpeciesNames()
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// ParseSpecies resolves a tag. The boolean is false for unknown tags.
func ParseSpecies(tag string) (Species, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for i, name := range SpeciesNames() {
		if name == tag {
			return Species(i), true
		}
	}
	return 0, false
}

// Habitat selects the integrator policy.
type Habitat uint8

const (
	HabitatTerrestrial Habitat = iota
	HabitatAquatic
	HabitatAerial
)

var habitatNames = [...]string{"terrestrial", "aquatic", "aerial"}

func (h Habitat) String() string {
	if int(h) < len(habitatNames) {
		return habitatNames[h]
	}
	return "unknown"
}

// ParseHabitat resolves a habitat name.
func ParseHabitat(name string) (Habitat, bool) {
	for i, n := range habitatNames {
		if n == name {
			return Habitat(i), true
		}
	}
	return 0, false
}

// Diet selects what an agent can eat.
type Diet uint8

const (
	DietHerbivore Diet = iota
	DietCarnivore
	DietOmnivore
	DietScavenger
	DietParasite
	DietCleaner
)

var dietNames = [...]string{"herbivore", "carnivore", "omnivore", "scavenger", "parasite", "cleaner"}

func (d Diet) String() string {
	if int(d) < len(dietNames) {
		return dietNames[d]
	}
	return "unknown"
}

// ParseDiet resolves a diet name.
func ParseDiet(name string) (Diet, bool) {
	for i, n := range dietNames {
		if n == name {
			return Diet(i), true
		}
	}
	return 0, false
}

// Hunts reports whether the diet includes live prey.
func (d Diet) Hunts() bool {
	return d == DietCarnivore || d == DietOmnivore || d == DietParasite
}

// Grazes reports whether the diet includes food patches.
func (d Diet) Grazes() bool {
	return d == DietHerbivore || d == DietOmnivore || d == DietCleaner
}
