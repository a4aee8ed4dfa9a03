// Package world provides the services the simulation core consumes but
// does not own: terrain, climate, food and external commands.
package world

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/forge/config"
)

// Bounds is an axis-aligned rectangle on the XZ plane.
type Bounds struct {
	MinX, MinZ float32
	MaxX, MaxZ float32
}

// BoundsFromConfig returns the configured world rectangle.
func BoundsFromConfig(w config.WorldConfig) Bounds {
	return Bounds{
		MinX: float32(w.MinX),
		MinZ: float32(w.MinZ),
		MaxX: float32(w.MaxX),
		MaxZ: float32(w.MaxZ),
	}
}

func (b Bounds) Width() float32 { return b.MaxX - b.MinX }
func (b Bounds) Depth() float32 { return b.MaxZ - b.MinZ }

// Contains reports whether (x, z) lies inside the bounds.
func (b Bounds) Contains(x, z float32) bool {
	return x >= b.MinX && x <= b.MaxX && z >= b.MinZ && z <= b.MaxZ
}

// Clamp moves (x, z) onto the nearest point inside the bounds.
func (b Bounds) Clamp(x, z float32) (float32, float32) {
	return min(max(x, b.MinX), b.MaxX), min(max(z, b.MinZ), b.MaxZ)
}

// Terrain is the height field agents walk on and swim above.
type Terrain interface {
	// Height returns the ground (or seafloor) height at (x, z).
	Height(x, z float32) float32
	// IsWater reports whether the ground at (x, z) lies below the water surface.
	IsWater(x, z float32) bool
	// WaterLevel returns the absolute height of the water surface.
	WaterLevel() float32
	Bounds() Bounds
}

// FlatTerrain is a constant-height plane. With height below the water level
// the whole world is water.
type FlatTerrain struct {
	B     Bounds
	H     float32
	Water float32
}

// NewFlatTerrain creates a dry plane at height h.
func NewFlatTerrain(b Bounds, h float32) *FlatTerrain {
	return &FlatTerrain{B: b, H: h, Water: h - 1}
}

func (t *FlatTerrain) Height(x, z float32) float32 { return t.H }
func (t *FlatTerrain) IsWater(x, z float32) bool   { return t.H < t.Water }
func (t *FlatTerrain) WaterLevel() float32         { return t.Water }
func (t *FlatTerrain) Bounds() Bounds              { return t.B }

// NoiseTerrain is a fractal simplex height field sampled once into a grid
// with one-unit spacing and bilinearly interpolated afterwards.
type NoiseTerrain struct {
	b          Bounds
	seed       int64
	waterLevel float32
	cols, rows int
	heights    []float32
}

// NewNoiseTerrain builds the height field for seed. Heights span
// [0, HeightScale].
func NewNoiseTerrain(w config.WorldConfig, seed int64) *NoiseTerrain {
	b := BoundsFromConfig(w)
	t := &NoiseTerrain{
		b:          b,
		seed:       seed,
		waterLevel: float32(w.WaterLevel),
		cols:       int(math.Ceil(float64(b.Width()))) + 1,
		rows:       int(math.Ceil(float64(b.Depth()))) + 1,
	}
	t.heights = make([]float32, t.cols*t.rows)

	noise := opensimplex.New(seed)
	octaves := max(w.Octaves, 1)
	var norm float64
	for o, a := 0, 1.0; o < octaves; o++ {
		norm += a
		a *= w.Gain
	}

	for row := 0; row < t.rows; row++ {
		for col := 0; col < t.cols; col++ {
			x := float64(b.MinX) + float64(col)
			z := float64(b.MinZ) + float64(row)
			freq := w.NoiseScale
			amp := 1.0
			var sum float64
			for o := 0; o < octaves; o++ {
				sum += amp * noise.Eval2(x*freq, z*freq)
				freq *= w.Lacunarity
				amp *= w.Gain
			}
			v := (sum/norm + 1) * 0.5
			v = math.Max(0, math.Min(1, v))
			t.heights[row*t.cols+col] = float32(v * w.HeightScale)
		}
	}
	return t
}

// Seed returns the seed the field was generated from.
func (t *NoiseTerrain) Seed() int64 { return t.seed }

// Height bilinearly interpolates the sampled field. Positions outside the
// bounds read the nearest edge.
func (t *NoiseTerrain) Height(x, z float32) float32 {
	fx := float64(x - t.b.MinX)
	fz := float64(z - t.b.MinZ)
	fx = math.Max(0, math.Min(fx, float64(t.cols-1)))
	fz = math.Max(0, math.Min(fz, float64(t.rows-1)))
	c0, r0 := int(fx), int(fz)
	c1, r1 := min(c0+1, t.cols-1), min(r0+1, t.rows-1)
	tx, tz := float32(fx-float64(c0)), float32(fz-float64(r0))

	h00 := t.heights[r0*t.cols+c0]
	h10 := t.heights[r0*t.cols+c1]
	h01 := t.heights[r1*t.cols+c0]
	h11 := t.heights[r1*t.cols+c1]
	top := h00 + (h10-h00)*tx
	bottom := h01 + (h11-h01)*tx
	return top + (bottom-top)*tz
}

func (t *NoiseTerrain) IsWater(x, z float32) bool { return t.Height(x, z) < t.waterLevel }
func (t *NoiseTerrain) WaterLevel() float32       { return t.waterLevel }
func (t *NoiseTerrain) Bounds() Bounds            { return t.b }

// WaterFraction samples the share of the world below the water surface.
func (t *NoiseTerrain) WaterFraction() float32 {
	wet := 0
	for _, h := range t.heights {
		if h < t.waterLevel {
			wet++
		}
	}
	return float32(wet) / float32(len(t.heights))
}

// NewTerrain builds the terrain named in the configuration.
func NewTerrain(w config.WorldConfig, seed int64) Terrain {
	if w.Terrain == "flat" {
		return NewFlatTerrain(BoundsFromConfig(w), float32(w.FlatHeight))
	}
	return NewNoiseTerrain(w, seed)
}
