package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title   string
	Metrics telemetry.Metrics
	Species [components.NumSpecies]int
	Pinned  bool
	Steps   int
	FPS     int32
	Paused  bool
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{
		renderer: NewRenderer(),
	}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	m := data.Metrics
	rl.DrawText(data.Title, 10, 10, 20, rl.White)

	rl.DrawText(
		fmt.Sprintf("Pop: %d | Corpses: %d | Near %d  Med %d  Far %d  Culled %d",
			m.Population, m.Corpses, m.Near, m.Medium, m.Far, m.Culled),
		10, 35, 16, rl.LightGray,
	)

	quality := m.QualityName
	if data.Pinned {
		quality += " (pinned)"
	}
	rl.DrawText(
		fmt.Sprintf("Frame: %d | t=%.1fs | Steps: %dx | FPS: %d | %s | %.2fms",
			m.Frame, m.SimTime, data.Steps, data.FPS, quality, m.MeanFrameMS),
		10, 55, 16, rl.LightGray,
	)

	statusText := "Running"
	if data.Paused {
		statusText = "PAUSED"
	}
	rl.DrawText(statusText, 10, 75, 16, rl.Yellow)

	y := int32(97)
	for sp, n := range data.Species {
		if n == 0 {
			continue
		}
		s := components.Species(sp)
		rl.DrawRectangle(10, y+2, 8, 8, SpeciesColor(s))
		rl.DrawText(fmt.Sprintf("%s %d", s, n), 22, y, 12, rl.LightGray)
		y += 14
	}
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenWidth, screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// SpeciesColor is the display colour for a species.
func SpeciesColor(s components.Species) rl.Color {
	if int(s) < len(speciesPalette) {
		return speciesPalette[s]
	}
	return rl.White
}

var speciesPalette = [components.NumSpecies]rl.Color{
	components.SpeciesGrazer:       {R: 120, G: 200, B: 90, A: 255},
	components.SpeciesBrowser:      {R: 170, G: 210, B: 80, A: 255},
	components.SpeciesHunter:       {R: 220, G: 90, B: 70, A: 255},
	components.SpeciesApex:         {R: 170, G: 30, B: 40, A: 255},
	components.SpeciesSchoolFish:   {R: 90, G: 170, B: 230, A: 255},
	components.SpeciesPredatorFish: {R: 40, G: 90, B: 200, A: 255},
	components.SpeciesFlyer:        {R: 240, G: 230, B: 140, A: 255},
	components.SpeciesOmnivore:     {R: 220, G: 150, B: 70, A: 255},
	components.SpeciesScavenger:    {R: 150, G: 120, B: 100, A: 255},
	components.SpeciesParasite:     {R: 190, G: 90, B: 200, A: 255},
	components.SpeciesCleaner:      {R: 100, G: 230, B: 200, A: 255},
}

// PerfPanel renders the per-phase tick timings.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y int32) *PerfPanel {
	return &PerfPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
	}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	x := p.x
	y := p.y

	rl.DrawText("Tick Performance", x, y, 16, rl.White)
	y += 20

	rl.DrawText(
		fmt.Sprintf("Avg: %s  Min: %s  Max: %s",
			stats.AvgFrame.Round(time.Microsecond),
			stats.MinFrame.Round(time.Microsecond),
			stats.MaxFrame.Round(time.Microsecond)),
		x, y, 14, rl.Yellow,
	)
	y += 16
	rl.DrawText(fmt.Sprintf("%.0f ticks/s | %.0f fps", stats.TicksPerSecond, stats.FPS), x, y, 12, rl.LightGray)
	y += 16

	for ph := range telemetry.NumPhases {
		pct := stats.PhasePct[ph]
		color := rl.LightGray
		if pct > 40 {
			color = rl.Red
		} else if pct > 20 {
			color = rl.Orange
		}
		rl.DrawText(
			fmt.Sprintf("%-10s %8s %5.1f%%", telemetry.Phase(ph), stats.PhaseAvg[ph].Round(time.Microsecond), pct),
			x, y, 12, color,
		)
		y += 14
	}
}
