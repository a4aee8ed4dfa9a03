package renderer

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/camera"
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/sim"
	"github.com/pthm-cable/forge/world"
)

// ColorMode picks how agent bodies are tinted.
type ColorMode uint8

const (
	ColorBySpecies ColorMode = iota
	ColorByTier
	ColorByClade
)

// AgentRenderer draws agents, corpses and food from a snapshot.
type AgentRenderer struct {
	Palette func(components.Species) rl.Color
	Mode    ColorMode
}

// NewAgentRenderer creates an agent renderer with the given species palette.
func NewAgentRenderer(palette func(components.Species) rl.Color) *AgentRenderer {
	return &AgentRenderer{Palette: palette}
}

var tierColors = [lod.NumTiers]rl.Color{
	lod.TierNear:   {R: 90, G: 230, B: 120, A: 255},
	lod.TierMedium: {R: 240, G: 200, B: 70, A: 255},
	lod.TierFar:    {R: 230, G: 110, B: 60, A: 255},
	lod.TierCulled: {R: 120, G: 120, B: 120, A: 255},
}

// DrawAgents draws every visible agent as an oriented triangle. The body
// fades as energy runs out.
func (r *AgentRenderer) DrawAgents(snap *sim.Snapshot, cam *camera.Camera, selected uint64) {
	radius := max(3, cam.Zoom*1.2)
	for i := range snap.Agents {
		a := &snap.Agents[i]
		if !cam.IsVisible(a.X, a.Z, radius/cam.Zoom*2) {
			continue
		}
		c := r.color(a)
		c.A = uint8(90 + 165*clamp01(a.Energy))
		sx, sy := cam.WorldToScreen(a.X, a.Z)
		drawOrientedTriangle(sx, sy, a.Heading, radius, c)
		if a.ID == selected {
			rl.DrawCircleLines(int32(sx), int32(sy), radius*2.5, rl.White)
		}
	}
}

func (r *AgentRenderer) color(a *sim.AgentSnapshot) rl.Color {
	switch r.Mode {
	case ColorByTier:
		if int(a.Tier) < len(tierColors) {
			return tierColors[a.Tier]
		}
	case ColorByClade:
		return cladeColor(a.Clade)
	}
	return r.Palette(a.Species)
}

// cladeColor spreads clade ids around the hue circle.
func cladeColor(clade int) rl.Color {
	hue := float32((clade * 137) % 360)
	return rl.ColorFromHSV(hue, 0.7, 0.9)
}

// DrawCorpses draws carrion as small squares scaled by biomass.
func (r *AgentRenderer) DrawCorpses(snap *sim.Snapshot, cam *camera.Camera) {
	for _, c := range snap.Corpses {
		if !cam.IsVisible(c.X, c.Z, 2) {
			continue
		}
		sx, sy := cam.WorldToScreen(c.X, c.Z)
		s := max(2, min(8, float32(math.Sqrt(float64(c.Biomass)))*cam.Zoom*0.3))
		rl.DrawRectangleV(rl.Vector2{X: sx - s/2, Y: sy - s/2}, rl.Vector2{X: s, Y: s}, rl.Color{R: 120, G: 60, B: 50, A: 220})
	}
}

// DrawFood draws food patches as discs whose alpha follows fill level.
func (r *AgentRenderer) DrawFood(patches []world.Patch, cam *camera.Camera) {
	for _, p := range patches {
		if p.Biomass <= 0 || !cam.IsVisible(p.X, p.Z, 4) {
			continue
		}
		fill := float32(1)
		if p.Capacity > 0 {
			fill = clamp01(p.Biomass / p.Capacity)
		}
		c := rl.Color{R: 60, G: 200, B: 60}
		switch p.Kind {
		case world.FoodAlgae:
			c = rl.Color{R: 60, G: 200, B: 170}
		case world.FoodCarrion:
			c = rl.Color{R: 150, G: 70, B: 60}
		}
		c.A = uint8(40 + 150*fill)
		sx, sy := cam.WorldToScreen(p.X, p.Z)
		rl.DrawCircleV(rl.Vector2{X: sx, Y: sy}, max(1.5, cam.Zoom*1.5*fill), c)
	}
}

// DrawVision draws the perception radius around a world point.
func DrawVision(cam *camera.Camera, x, z, radius float32) {
	sx, sy := cam.WorldToScreen(x, z)
	rl.DrawCircleLines(int32(sx), int32(sy), radius*cam.Zoom, rl.Color{R: 255, G: 255, B: 255, A: 90})
}

// DrawTierRings draws the scheduler's distance bands around the camera focus.
func DrawTierRings(cam *camera.Camera, th lod.Thresholds) {
	sx, sy := cam.WorldToScreen(cam.X, cam.Z)
	for i, d := range [...]float32{th.Near, th.Medium, th.Far} {
		c := tierColors[i]
		c.A = 140
		rl.DrawCircleLines(int32(sx), int32(sy), d*cam.Zoom, c)
	}
}

// DrawGrid draws spatial index cell boundaries over the visible area.
func DrawGrid(cam *camera.Camera, b world.Bounds, cell float32) {
	if cell <= 0 || cell*cam.Zoom < 6 {
		return
	}
	minX, minZ, maxX, maxZ := cam.VisibleWorldBounds()
	minX, minZ = max(minX, b.MinX), max(minZ, b.MinZ)
	maxX, maxZ = min(maxX, b.MaxX), min(maxZ, b.MaxZ)
	c := rl.Color{R: 255, G: 255, B: 255, A: 30}

	start := b.MinX + float32(math.Floor(float64((minX-b.MinX)/cell)))*cell
	for x := start; x <= maxX; x += cell {
		x0, y0 := cam.WorldToScreen(x, minZ)
		x1, y1 := cam.WorldToScreen(x, maxZ)
		rl.DrawLineV(rl.Vector2{X: x0, Y: y0}, rl.Vector2{X: x1, Y: y1}, c)
	}
	start = b.MinZ + float32(math.Floor(float64((minZ-b.MinZ)/cell)))*cell
	for z := start; z <= maxZ; z += cell {
		x0, y0 := cam.WorldToScreen(minX, z)
		x1, y1 := cam.WorldToScreen(maxX, z)
		rl.DrawLineV(rl.Vector2{X: x0, Y: y0}, rl.Vector2{X: x1, Y: y1}, c)
	}
}

// drawOrientedTriangle draws a triangle pointing along heading.
func drawOrientedTriangle(x, y, heading, radius float32, color rl.Color) {
	cos := float32(math.Cos(float64(heading)))
	sin := float32(math.Sin(float64(heading)))

	front := rl.Vector2{X: x + cos*radius*1.5, Y: y + sin*radius*1.5}

	backAngle := float64(heading) + math.Pi*0.8
	backLeft := rl.Vector2{
		X: x + float32(math.Cos(backAngle))*radius,
		Y: y + float32(math.Sin(backAngle))*radius,
	}
	backAngle = float64(heading) - math.Pi*0.8
	backRight := rl.Vector2{
		X: x + float32(math.Cos(backAngle))*radius,
		Y: y + float32(math.Sin(backAngle))*radius,
	}

	// DrawTriangle requires counter-clockwise winding.
	rl.DrawTriangle(front, backRight, backLeft, color)
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
