package telemetry

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

// Collector folds events into per-window counters and produces WindowStats.
type Collector struct {
	windowFrames uint64
	dt           float64
	windowStart  uint64

	births, deaths, kills  int
	starved, oldAge, culled int
	meals, carrion         int
	nutrients, diagnostics int
}

// NewCollector creates a collector with windows of windowSec simulated
// seconds.
func NewCollector(windowSec float64, dt float32) *Collector {
	frames := uint64(math.Round(windowSec / float64(dt)))
	if frames < 1 {
		frames = 1
	}
	return &Collector{windowFrames: frames, dt: float64(dt)}
}

// Record counts one event.
func (c *Collector) Record(e Event) {
	switch e.Type {
	case EventBorn:
		c.births++
	case EventDied:
		c.deaths++
		switch e.Cause {
		case components.CauseStarvation:
			c.starved++
		case components.CauseOldAge:
			c.oldAge++
		case components.CauseCulled:
			c.culled++
		}
	case EventKilled:
		c.kills++
	case EventAte:
		c.meals++
		if e.Food == world.FoodCarrion {
			c.carrion++
		}
	case EventNutrient:
		c.nutrients++
	case EventDiagnostic:
		c.diagnostics++
	}
}

// ShouldFlush reports whether the window ending at frame is complete.
func (c *Collector) ShouldFlush(frame uint64) bool {
	return frame-c.windowStart >= c.windowFrames
}

// WindowFrames returns the window length in frames.
func (c *Collector) WindowFrames() uint64 { return c.windowFrames }

// Population is the end-of-window census handed to Flush.
type Population struct {
	Species     [components.NumSpecies]int
	Corpses     int
	Energies    []float64 // energy fraction per living agent; sorted in place
	Generations []float64
	NEATSpecies int
}

// Flush produces the stats for the window ending at frame and starts a new
// one.
func (c *Collector) Flush(frame uint64, pop Population) WindowStats {
	s := WindowStats{
		WindowStart:   c.windowStart,
		WindowEnd:     frame,
		SimTimeSec:    float64(frame) * c.dt,
		SpeciesCounts: pop.Species,
		Corpses:       pop.Corpses,
		Births:        c.births,
		Deaths:        c.deaths,
		Kills:         c.kills,
		Starved:       c.starved,
		OldAge:        c.oldAge,
		Culled:        c.culled,
		Meals:         c.meals,
		CarrionEats:   c.carrion,
		Nutrients:     c.nutrients,
		Diagnostics:   c.diagnostics,
		NEATSpecies:   pop.NEATSpecies,
	}
	for _, n := range pop.Species {
		s.Population += n
		if n > 0 {
			s.SpeciesAlive++
		}
	}
	s.EnergyMean, s.EnergyStd, s.EnergyP10, s.EnergyP50, s.EnergyP90 = ComputeEnergyStats(pop.Energies)
	if len(pop.Generations) > 0 {
		var sum float64
		for _, g := range pop.Generations {
			sum += g
		}
		s.MeanGeneration = sum / float64(len(pop.Generations))
	}

	*c = Collector{windowFrames: c.windowFrames, dt: c.dt, windowStart: frame}
	return s
}
