package renderer

import (
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/camera"
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/sim"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/ui"
	"github.com/pthm-cable/forge/world"
)

const (
	pickRadius      = 12 // pixels
	disasterRadius  = 20
	disasterDamage  = 60
	spawnBatch      = 10
	panSpeed        = 600 // pixels per second
	terrainTexels   = 512
	controlsLegend  = "Space pause | . step | , / speed | arrows pan | wheel zoom | Home reset | Tab species | N spawn | X disaster | F5/F9 save/load | P perf | O overlays"
	inspectorWidth  = 260
	qualityWidth    = 160
	quitKeyDisabled = 0
)

// Viewer is the interactive front end. It steps the simulation and draws
// the published snapshot on the same goroutine.
type Viewer struct {
	sim *sim.Simulation
	cam *camera.Camera

	terrain *TerrainRenderer
	agents  *AgentRenderer

	hud       *ui.HUD
	perf      *ui.PerfPanel
	inspector *ui.Inspector
	controls  *ui.ControlsPanel
	quality   *ui.QualityPanel
	overlays  *ui.OverlaySet

	paused    bool
	showPerf  bool
	steps     int
	selected  uint64
	spawnKind components.Species

	// SavePath is where F5 writes and F9 reads.
	SavePath string
	// Publish, when set, receives the metrics of every frame.
	Publish func(telemetry.Metrics)
}

// NewViewer creates a viewer over s. The raylib window must already be
// open.
func NewViewer(s *sim.Simulation, stepsPerFrame int) *Viewer {
	w, h := float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight())
	return &Viewer{
		sim:       s,
		cam:       camera.New(w, h, s.Bounds()),
		terrain:   NewTerrainRenderer(terrainTexels),
		agents:    NewAgentRenderer(ui.SpeciesColor),
		hud:       ui.NewHUD(),
		perf:      ui.NewPerfPanel(10, 300),
		inspector: ui.NewInspector(int32(w)-inspectorWidth-10, 10, inspectorWidth),
		controls:  ui.NewControlsPanel(10, 300, 200),
		quality:   ui.NewQualityPanel(int32(w)-qualityWidth-10, 10, qualityWidth),
		overlays:  ui.NewOverlaySet(),
		steps:     max(1, stepsPerFrame),
		SavePath:  "forge.save",
	}
}

// Run loops until the window is closed.
func (v *Viewer) Run() {
	rl.SetExitKey(quitKeyDisabled)
	defer v.terrain.Unload()
	for !rl.WindowShouldClose() {
		v.handleInput()
		if !v.paused {
			v.advance(v.steps)
		}
		v.sim.SetCamera(v.cam.X, v.ground(), v.cam.Z)
		v.Draw()
	}
}

func (v *Viewer) advance(n int) {
	for range n {
		v.sim.Step()
		if v.Publish != nil {
			v.Publish(v.sim.Metrics())
		}
	}
}

// ground is the terrain height under the camera focus.
func (v *Viewer) ground() float32 {
	t := v.sim.Terrain()
	if t == nil {
		return 0
	}
	return max(t.Height(v.cam.X, v.cam.Z), t.WaterLevel())
}

func (v *Viewer) handleInput() {
	if rl.IsWindowResized() {
		w, h := float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight())
		v.cam.Resize(w, h)
		v.inspector.SetPosition(int32(w)-inspectorWidth-10, 10)
		v.quality.SetPosition(int32(w)-qualityWidth-10, 10)
	}

	switch {
	case rl.IsKeyPressed(rl.KeySpace):
		v.paused = !v.paused
	case rl.IsKeyPressed(rl.KeyPeriod):
		v.advance(1)
	case rl.IsKeyPressed(rl.KeyComma):
		v.steps = max(1, v.steps/2)
	case rl.IsKeyPressed(rl.KeySlash):
		v.steps = min(16, v.steps*2)
	case rl.IsKeyPressed(rl.KeyHome):
		v.cam.Reset()
	case rl.IsKeyPressed(rl.KeyTab):
		v.spawnKind = (v.spawnKind + 1) % components.NumSpecies
	case rl.IsKeyPressed(rl.KeyP):
		v.showPerf = !v.showPerf
	case rl.IsKeyPressed(rl.KeyO):
		v.controls.Toggle()
	case rl.IsKeyPressed(rl.KeyF11):
		rl.ToggleFullscreen()
	case rl.IsKeyPressed(rl.KeyF5):
		v.save()
	case rl.IsKeyPressed(rl.KeyF9):
		v.load()
	}

	if key := rl.GetKeyPressed(); key != 0 {
		if id, on, ok := v.overlays.HandleKey(key); ok {
			slog.Debug("overlay toggled", "overlay", id, "enabled", on)
		}
	}

	dt := rl.GetFrameTime()
	var dx, dy float32
	if rl.IsKeyDown(rl.KeyLeft) {
		dx -= panSpeed * dt
	}
	if rl.IsKeyDown(rl.KeyRight) {
		dx += panSpeed * dt
	}
	if rl.IsKeyDown(rl.KeyUp) {
		dy -= panSpeed * dt
	}
	if rl.IsKeyDown(rl.KeyDown) {
		dy += panSpeed * dt
	}
	if dx != 0 || dy != 0 {
		v.cam.Pan(dx, dy)
	}

	mouse := rl.GetMousePosition()
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		factor := float32(1.15)
		if wheel < 0 {
			factor = 1 / factor
		}
		v.cam.ZoomAt(mouse.X, mouse.Y, factor)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		v.cam.Pan(-d.X, -d.Y)
	}

	wx, wz := v.cam.ScreenToWorld(mouse.X, mouse.Y)
	if rl.IsKeyPressed(rl.KeyN) {
		v.sim.Commands().Push(world.SpawnCommand(v.spawnKind, spawnBatch, wx, v.sim.Terrain().Height(wx, wz), wz))
	}
	if rl.IsKeyPressed(rl.KeyX) {
		v.sim.Commands().Push(world.DisasterCommand(wx, wz, disasterRadius, disasterDamage))
	}
	if rl.IsMouseButtonPressed(rl.MouseButtonLeft) && !v.overUI(mouse) {
		v.selected = v.pick(mouse.X, mouse.Y)
	}
}

// overUI reports whether the cursor is over a panel that takes clicks.
func (v *Viewer) overUI(p rl.Vector2) bool {
	w := float32(rl.GetScreenWidth())
	if v.overlays.Enabled(ui.OverlayQualityPanel) && p.X > w-qualityWidth-10 && p.Y < 300 {
		return true
	}
	return false
}

// pick returns the agent closest to the cursor within pickRadius pixels.
func (v *Viewer) pick(sx, sy float32) uint64 {
	snap := v.sim.Snapshot()
	if snap == nil {
		return 0
	}
	var best uint64
	bestD := float32(pickRadius * pickRadius)
	for i := range snap.Agents {
		a := &snap.Agents[i]
		ax, ay := v.cam.WorldToScreen(a.X, a.Z)
		dx, dy := ax-sx, ay-sy
		if d := dx*dx + dy*dy; d <= bestD {
			best, bestD = a.ID, d
		}
	}
	return best
}

func (v *Viewer) save() {
	reply := make(chan error, 1)
	v.sim.Commands().Push(world.Command{Kind: world.CmdSave, Path: v.SavePath, Reply: reply})
	v.sim.Step()
	if err := <-reply; err != nil {
		slog.Error("save failed", "path", v.SavePath, "error", err)
		return
	}
	slog.Info("saved", "path", v.SavePath, "frame", v.sim.Frame())
}

func (v *Viewer) load() {
	reply := make(chan error, 1)
	v.sim.Commands().Push(world.Command{Kind: world.CmdLoad, Path: v.SavePath, Reply: reply})
	v.sim.Step()
	if err := <-reply; err != nil {
		slog.Error("load failed", "path", v.SavePath, "error", err)
		return
	}
	v.selected = 0
	slog.Info("loaded", "path", v.SavePath, "frame", v.sim.Frame())
}

// Draw renders one frame.
func (v *Viewer) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Color{R: 12, G: 16, B: 22, A: 255})

	v.terrain.Draw(v.sim.Terrain(), v.cam)

	snap := v.sim.Snapshot()
	if v.overlays.Enabled(ui.OverlayIndexGrid) {
		DrawGrid(v.cam, v.sim.Bounds(), v.sim.Index().Fine.CellSize())
	}
	if v.overlays.Enabled(ui.OverlayFood) {
		v.agents.DrawFood(v.sim.Food().Patches(), v.cam)
	}
	if snap != nil {
		if v.overlays.Enabled(ui.OverlayCorpses) {
			v.agents.DrawCorpses(snap, v.cam)
		}
		v.agents.Mode = ColorBySpecies
		if v.overlays.Enabled(ui.OverlayTierColors) {
			v.agents.Mode = ColorByTier
		} else if v.overlays.Enabled(ui.OverlayCladeColors) {
			v.agents.Mode = ColorByClade
		}
		v.agents.DrawAgents(snap, v.cam, v.selected)
	}
	if v.overlays.Enabled(ui.OverlayTierRings) {
		DrawTierRings(v.cam, v.sim.QualityLevel().Thresholds)
	}

	v.drawSelection()
	v.drawPanels(snap)

	rl.EndDrawing()
	v.sim.Perf().RecordRender()
}

func (v *Viewer) drawSelection() {
	if v.selected == 0 {
		return
	}
	a, ok := v.sim.Agent(v.selected)
	if !ok {
		v.selected = 0
		return
	}
	if v.overlays.Enabled(ui.OverlayVision) {
		if pol := v.sim.Policies()[a.Species]; pol != nil {
			DrawVision(v.cam, a.Pos.X, a.Pos.Z, pol.Vision)
		}
	}
	data := &ui.InspectorData{Info: a}
	if b := v.sim.Brain(v.selected); b != nil {
		data.Genome = b.Genome
	}
	v.inspector.Draw(data)
}

func (v *Viewer) drawPanels(snap *sim.Snapshot) {
	hd := ui.HUDData{
		Title:   fmt.Sprintf("forge | spawn: %s", v.spawnKind),
		Metrics: v.sim.Metrics(),
		Pinned:  v.sim.QualityPinned(),
		Steps:   v.steps,
		FPS:     rl.GetFPS(),
		Paused:  v.paused,
	}
	if snap != nil {
		for i := range snap.Agents {
			hd.Species[snap.Agents[i].Species]++
		}
	}
	v.hud.Draw(hd)
	v.hud.DrawControls(int32(rl.GetScreenWidth()), int32(rl.GetScreenHeight()), controlsLegend)

	y := v.controls.Draw(v.overlays)
	if v.showPerf {
		v.perf.SetPosition(10, y+10)
		v.perf.Draw(v.sim.Perf().Stats())
	}

	if v.overlays.Enabled(ui.OverlayQualityPanel) && v.selected == 0 {
		v.drawQuality()
	}
}

func (v *Viewer) drawQuality() {
	levels := v.sim.QualityLevels()
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.Name
	}
	act := v.quality.Draw(ui.QualityState{
		Levels:  names,
		Current: v.sim.Level(),
		Pinned:  v.sim.QualityPinned(),
		Paused:  v.paused,
		Steps:   v.steps,
	})
	switch {
	case act.Pin >= 0:
		v.sim.PinQuality(act.Pin)
	case act.Unpin:
		v.sim.UnpinQuality()
	case act.TogglePause:
		v.paused = !v.paused
	}
	v.steps = act.Steps
}
