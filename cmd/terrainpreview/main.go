// Terrain preview tool - interactive tuning of the world height field.
//
// Usage: go run ./cmd/terrainpreview [-config path]
package main

import (
	"flag"
	"fmt"
	"log"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/camera"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/renderer"
	"github.com/pthm-cable/forge/world"
)

const (
	windowWidth  = 1000
	windowHeight = 720
	previewSize  = 600
	panelWidth   = windowWidth - previewSize - 30
)

// slider is one tunable world parameter.
type slider struct {
	label    string
	min, max float32
	format   string
	get      func(*config.WorldConfig) float32
	set      func(*config.WorldConfig, float32)
}

var sliders = []slider{
	{"Noise scale (base frequency)", 0.001, 0.05, "%.4f",
		func(w *config.WorldConfig) float32 { return float32(w.NoiseScale) },
		func(w *config.WorldConfig, v float32) { w.NoiseScale = float64(v) }},
	{"Octaves", 1, 8, "%.0f",
		func(w *config.WorldConfig) float32 { return float32(w.Octaves) },
		func(w *config.WorldConfig, v float32) { w.Octaves = int(v + 0.5) }},
	{"Lacunarity (frequency multiplier)", 1.5, 4, "%.2f",
		func(w *config.WorldConfig) float32 { return float32(w.Lacunarity) },
		func(w *config.WorldConfig, v float32) { w.Lacunarity = float64(v) }},
	{"Gain (amplitude multiplier)", 0.2, 0.9, "%.2f",
		func(w *config.WorldConfig) float32 { return float32(w.Gain) },
		func(w *config.WorldConfig, v float32) { w.Gain = float64(v) }},
	{"Height scale", 5, 80, "%.1f",
		func(w *config.WorldConfig) float32 { return float32(w.HeightScale) },
		func(w *config.WorldConfig, v float32) { w.HeightScale = float64(v) }},
	{"Water level", 0, 60, "%.1f",
		func(w *config.WorldConfig) float32 { return float32(w.WaterLevel) },
		func(w *config.WorldConfig, v float32) { w.WaterLevel = float64(v) }},
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defaults := cfg.World
	w := defaults
	seed := w.TerrainSeed
	if seed == 0 {
		seed = 12345
	}

	rl.InitWindow(windowWidth, windowHeight, "Terrain Preview")
	defer rl.CloseWindow()
	rl.SetTargetFPS(30)

	cam := camera.New(previewSize, previewSize, world.BoundsFromConfig(w))
	view := renderer.NewTerrainRenderer(previewSize)
	defer view.Unload()

	terrain := world.NewNoiseTerrain(w, seed)
	needsRegen := false

	for !rl.WindowShouldClose() {
		// Regenerate once the slider is released; a full rebuild per drag
		// step is too slow.
		if needsRegen && !rl.IsMouseButtonDown(rl.MouseButtonLeft) {
			terrain = world.NewNoiseTerrain(w, seed)
			needsRegen = false
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		view.Draw(terrain, cam)
		rl.DrawRectangleLines(0, 0, previewSize, previewSize, rl.DarkGray)

		statsY := int32(previewSize + 15)
		rl.DrawText(fmt.Sprintf("Water: %.0f%%  Seed: %d", terrain.WaterFraction()*100, seed), 15, statsY, 16, rl.DarkGray)
		if needsRegen {
			rl.DrawText("release to regenerate", 15, statsY+20, 14, rl.Gray)
		}

		panelX := float32(previewSize + 20)
		panelY := float32(10)

		rl.DrawText("Terrain Parameters", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		for _, s := range sliders {
			rl.DrawText(s.label, int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 18
			cur := s.get(&w)
			v := gui.SliderBar(
				rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
				"", "",
				cur, s.min, s.max,
			)
			rl.DrawText(fmt.Sprintf(s.format, cur), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
			if v != cur {
				s.set(&w, v)
				needsRegen = true
			}
			panelY += 35
		}
		panelY += 10

		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 120, Height: 30}, "Random Seed") {
			seed = int64(rl.GetRandomValue(1, 99999))
			needsRegen = true
		}
		if gui.Button(rl.Rectangle{X: panelX + 130, Y: panelY, Width: 120, Height: 30}, "Reset All") {
			w = defaults
			needsRegen = true
		}
		panelY += 55

		yaml := worldYAML(w, seed)
		rl.DrawText("YAML Config:", int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 25
		rl.DrawText(yaml, int32(panelX), int32(panelY), 14, rl.Gray)

		rl.DrawText("Press C to copy YAML to clipboard", int32(panelX), int32(windowHeight-30), 12, rl.LightGray)
		if rl.IsKeyPressed(rl.KeyC) {
			rl.SetClipboardText(yaml)
		}

		rl.EndDrawing()
	}
}

func worldYAML(w config.WorldConfig, seed int64) string {
	return fmt.Sprintf(`world:
  terrain_seed: %d
  noise_scale: %.4f
  octaves: %d
  lacunarity: %.2f
  gain: %.2f
  height_scale: %.1f
  water_level: %.1f`,
		seed, w.NoiseScale, w.Octaves, w.Lacunarity, w.Gain, w.HeightScale, w.WaterLevel)
}
