// Package renderer draws the simulation from the published snapshot.
package renderer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/camera"
	"github.com/pthm-cable/forge/world"
)

// TerrainRenderer bakes the height field into a texture once and draws it
// under the camera.
type TerrainRenderer struct {
	res     int32
	terrain world.Terrain
	tex     rl.Texture2D
	baked   bool
	pixels  []color.RGBA
}

// NewTerrainRenderer creates a renderer that samples the terrain on a
// res x res lattice.
func NewTerrainRenderer(res int32) *TerrainRenderer {
	return &TerrainRenderer{res: res, pixels: make([]color.RGBA, res*res)}
}

// Draw renders the terrain, rebaking when the simulation swaps terrains.
func (r *TerrainRenderer) Draw(t world.Terrain, cam *camera.Camera) {
	if t == nil {
		return
	}
	if !r.baked || t != r.terrain {
		r.bake(t)
	}

	b := t.Bounds()
	x0, y0 := cam.WorldToScreen(b.MinX, b.MinZ)
	x1, y1 := cam.WorldToScreen(b.MaxX, b.MaxZ)
	src := rl.Rectangle{Width: float32(r.res), Height: float32(r.res)}
	dst := rl.Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	rl.DrawTexturePro(r.tex, src, dst, rl.Vector2{}, 0, rl.White)
}

func (r *TerrainRenderer) bake(t world.Terrain) {
	b := t.Bounds()
	water := t.WaterLevel()

	lo, hi := water, water
	for i := range r.pixels {
		x, z := r.sample(b, i)
		h := t.Height(x, z)
		lo = min(lo, h)
		hi = max(hi, h)
	}

	for i := range r.pixels {
		x, z := r.sample(b, i)
		r.pixels[i] = shade(t.Height(x, z), water, lo, hi)
	}

	if !r.baked {
		img := rl.GenImageColor(int(r.res), int(r.res), rl.Black)
		r.tex = rl.LoadTextureFromImage(img)
		rl.UnloadImage(img)
		rl.SetTextureFilter(r.tex, rl.FilterBilinear)
	}
	rl.UpdateTexture(r.tex, r.pixels)
	r.terrain = t
	r.baked = true
}

// sample returns the world point at the centre of texel i.
func (r *TerrainRenderer) sample(b world.Bounds, i int) (float32, float32) {
	px := int32(i) % r.res
	pz := int32(i) / r.res
	x := b.MinX + (float32(px)+0.5)/float32(r.res)*b.Width()
	z := b.MinZ + (float32(pz)+0.5)/float32(r.res)*b.Depth()
	return x, z
}

// shade colours water by depth and land by elevation.
func shade(h, water, lo, hi float32) color.RGBA {
	if h < water {
		d := float32(1)
		if water > lo {
			d = (water - h) / (water - lo)
		}
		return lerp(color.RGBA{R: 60, G: 130, B: 170, A: 255}, color.RGBA{R: 15, G: 40, B: 80, A: 255}, d)
	}
	e := float32(0)
	if hi > water {
		e = (h - water) / (hi - water)
	}
	switch {
	case e < 0.04:
		return color.RGBA{R: 194, G: 178, B: 128, A: 255}
	case e < 0.6:
		return lerp(color.RGBA{R: 70, G: 130, B: 60, A: 255}, color.RGBA{R: 50, G: 90, B: 45, A: 255}, (e-0.04)/0.56)
	}
	return lerp(color.RGBA{R: 110, G: 100, B: 90, A: 255}, color.RGBA{R: 235, G: 235, B: 240, A: 255}, (e-0.6)/0.4)
}

func lerp(a, b color.RGBA, t float32) color.RGBA {
	t = max(0, min(1, t))
	mix := func(x, y uint8) uint8 { return uint8(float32(x) + (float32(y)-float32(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// Unload releases the GPU texture.
func (r *TerrainRenderer) Unload() {
	if r.baked {
		rl.UnloadTexture(r.tex)
		r.baked = false
	}
}
