package world

import (
	"math"

	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/rng"
)

// FoodKind distinguishes what a food source is made of.
type FoodKind uint8

const (
	FoodPlant FoodKind = iota
	FoodAlgae
	FoodCarrion
	NumFoodKinds
)

var foodKindNames = [...]string{"plant", "algae", "carrion"}

func (k FoodKind) String() string {
	if int(k) < len(foodKindNames) {
		return foodKindNames[k]
	}
	return "unknown"
}

// ParseFoodKind maps a configuration tag to a kind.
func ParseFoodKind(s string) (FoodKind, bool) {
	for i, n := range foodKindNames {
		if n == s {
			return FoodKind(i), true
		}
	}
	return 0, false
}

// FoodItem is one answer of a food query.
type FoodItem struct {
	X, Y, Z  float32
	Kind     FoodKind
	Residual float32
}

// FoodProvider is the food service the core queries. The core never
// creates or removes food; it only looks and eats.
type FoodProvider interface {
	GetFoodNear(dst []FoodItem, x, z, r float32, kind FoodKind) []FoodItem
	ConsumeAt(x, z float32, kind FoodKind, amount float32) float32
}

// Patch is a regrowing plant or algae site.
type Patch struct {
	X, Y, Z  float32
	Kind     FoodKind
	Biomass  float32
	Capacity float32
}

// FoodField is a FoodProvider of plant patches on land and algae mats in
// water, placed on a jittered lattice.
type FoodField struct {
	cfg     config.FoodConfig
	b       Bounds
	terrain Terrain
	spacing float32
	cols    int
	rows    int
	cells   [][]int32
	patches []Patch
}

// NewFoodField scatters patches over the terrain.
func NewFoodField(cfg config.FoodConfig, terrain Terrain, src rng.Source) *FoodField {
	f := newFoodField(cfg, terrain)
	for row := 0; row < f.rows; row++ {
		for col := 0; col < f.cols; col++ {
			if src.Float64() >= cfg.PatchDensity {
				continue
			}
			x := f.b.MinX + (float32(col)+src.Float32())*f.spacing
			z := f.b.MinZ + (float32(row)+src.Float32())*f.spacing
			if !f.b.Contains(x, z) {
				continue
			}
			p := Patch{X: x, Z: z, Kind: FoodPlant, Capacity: float32(cfg.PlantCapacity)}
			p.Y = terrain.Height(x, z)
			if terrain.IsWater(x, z) {
				p.Kind = FoodAlgae
				p.Capacity = float32(cfg.AlgaeCapacity)
			}
			p.Biomass = p.Capacity * rng.Range(src, 0.5, 1)
			f.add(p)
		}
	}
	return f
}

func newFoodField(cfg config.FoodConfig, terrain Terrain) *FoodField {
	b := terrain.Bounds()
	spacing := float32(cfg.PatchSpacing)
	if spacing <= 0 {
		spacing = 8
	}
	f := &FoodField{
		cfg:     cfg,
		b:       b,
		terrain: terrain,
		spacing: spacing,
		cols:    int(math.Ceil(float64(b.Width()/spacing))) + 1,
		rows:    int(math.Ceil(float64(b.Depth()/spacing))) + 1,
	}
	f.cells = make([][]int32, f.cols*f.rows)
	return f
}

func (f *FoodField) cell(x, z float32) (int, int) {
	col := int((x - f.b.MinX) / f.spacing)
	row := int((z - f.b.MinZ) / f.spacing)
	return min(max(col, 0), f.cols-1), min(max(row, 0), f.rows-1)
}

func (f *FoodField) add(p Patch) {
	col, row := f.cell(p.X, p.Z)
	idx := row*f.cols + col
	f.cells[idx] = append(f.cells[idx], int32(len(f.patches)))
	f.patches = append(f.patches, p)
}

// visit calls fn for each patch index whose lattice cell overlaps the
// square of half-extent r around (x, z).
func (f *FoodField) visit(x, z, r float32, fn func(i int32)) {
	c0, r0 := f.cell(x-r, z-r)
	c1, r1 := f.cell(x+r, z+r)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, i := range f.cells[row*f.cols+col] {
				fn(i)
			}
		}
	}
}

// GetFoodNear appends non-empty patches of kind within r of (x, z).
func (f *FoodField) GetFoodNear(dst []FoodItem, x, z, r float32, kind FoodKind) []FoodItem {
	rSq := r * r
	f.visit(x, z, r, func(i int32) {
		p := &f.patches[i]
		if p.Kind != kind || p.Biomass <= 0 {
			return
		}
		dx, dz := p.X-x, p.Z-z
		if dx*dx+dz*dz > rSq {
			return
		}
		dst = append(dst, FoodItem{X: p.X, Y: p.Y, Z: p.Z, Kind: p.Kind, Residual: p.Biomass})
	})
	return dst
}

// ConsumeAt eats from the nearest patch of kind within the eat radius and
// returns the amount granted.
func (f *FoodField) ConsumeAt(x, z float32, kind FoodKind, amount float32) float32 {
	if amount <= 0 {
		return 0
	}
	r := float32(f.cfg.EatRadius)
	best := int32(-1)
	bestSq := r * r
	f.visit(x, z, r, func(i int32) {
		p := &f.patches[i]
		if p.Kind != kind || p.Biomass <= 0 {
			return
		}
		dx, dz := p.X-x, p.Z-z
		if d := dx*dx + dz*dz; d <= bestSq {
			best, bestSq = i, d
		}
	})
	if best < 0 {
		return 0
	}
	p := &f.patches[best]
	granted := min(amount, p.Biomass)
	p.Biomass -= granted
	return granted
}

// Regrow advances regrowth. Plants grow faster in rain and summer; algae
// only follow the season.
func (f *FoodField) Regrow(dt float32, env Environment) {
	season := float32(1)
	rain := float32(0)
	if env != nil {
		season = 0.75 + 0.25*float32(math.Sin(2*math.Pi*float64(env.Season())))
		rain = env.Precipitation()
	}
	rate := float32(f.cfg.RegrowRate) * dt
	for i := range f.patches {
		p := &f.patches[i]
		if p.Biomass >= p.Capacity {
			continue
		}
		k := rate * season
		if p.Kind == FoodPlant {
			k *= 1 + rain
		}
		p.Biomass = min(p.Capacity, p.Biomass+k*p.Capacity)
	}
}

// Patches returns the patch table. Callers must not modify it.
func (f *FoodField) Patches() []Patch { return f.patches }

// Len returns the number of patches.
func (f *FoodField) Len() int { return len(f.patches) }

// TotalBiomass sums the standing biomass of a kind.
func (f *FoodField) TotalBiomass(kind FoodKind) float32 {
	var sum float32
	for i := range f.patches {
		if f.patches[i].Kind == kind {
			sum += f.patches[i].Biomass
		}
	}
	return sum
}

// Restore replaces every patch, as when loading a save file.
func (f *FoodField) Restore(patches []Patch) {
	for i := range f.cells {
		f.cells[i] = f.cells[i][:0]
	}
	f.patches = f.patches[:0]
	for _, p := range patches {
		f.add(p)
	}
}

// NewEmptyFoodField creates a field with no patches; tests add their own.
func NewEmptyFoodField(cfg config.FoodConfig, terrain Terrain) *FoodField {
	return newFoodField(cfg, terrain)
}

// AddPatch places a patch.
func (f *FoodField) AddPatch(p Patch) {
	f.add(p)
}
