package components

// Trait indexes heritable scalar traits. Each is a multiplier around 1.
type Trait uint8

const (
	TraitSize Trait = iota
	TraitSpeed
	TraitVision
	TraitMetabolism
	TraitFertility
	NumTraits
)

var traitNames = [NumTraits]string{"size", "speed", "vision", "metabolism", "fertility"}

func (t Trait) String() string {
	if t < NumTraits {
		return traitNames[t]
	}
	return "unknown"
}

// Traits is a diploid genotype: two alleles per trait. The expressed value
// is their mean.
type Traits struct {
	A, B [NumTraits]float32
}

// NeutralTraits returns a genotype expressing 1 for every trait.
func NeutralTraits() Traits {
	var t Traits
	for i := range t.A {
		t.A[i], t.B[i] = 1, 1
	}
	return t
}

// Express returns the phenotypic value of trait i.
func (t *Traits) Express(i Trait) float32 { return (t.A[i] + t.B[i]) * 0.5 }
