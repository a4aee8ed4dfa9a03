// Package sim is the ecosystem manager. It owns the agent store and runs
// one frame at a time: snapshot and index, tier classification, compute
// dispatch, NEAR agents on the CPU, fence collection, integration, and
// the lifecycle.
package sim

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/compute"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/rng"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// InitParams are the process-wide initialisation values. Zero fields fall
// back to the configuration.
type InitParams struct {
	Seed              uint64
	TerrainSeed       int64
	InitialPopulation int
	WorldBounds       *world.Bounds
	Quality           string // initial quality level name
	PinQuality        bool   // hold the level instead of autoscaling

	// Optional services. Terrain and Food default to the configured noise
	// terrain and a scattered food field; Device defaults to the software
	// device when gpu.enabled is set.
	Terrain world.Terrain
	Food    *world.FoodField
	Device  compute.Device

	Output   *telemetry.OutputManager
	LogStats bool
}

// agentMap stores every living agent.
type agentMap = ecs.Map8[
	components.Position,
	components.Velocity,
	components.Rotation,
	components.Organism,
	components.Physiology,
	components.Lineage,
	components.Memory,
	components.Traits,
]

type agentFilter = ecs.Filter8[
	components.Position,
	components.Velocity,
	components.Rotation,
	components.Organism,
	components.Physiology,
	components.Lineage,
	components.Memory,
	components.Traits,
]

// Simulation is the ecosystem manager. All methods except Snapshot,
// Commands and Events must be called from the simulation goroutine.
type Simulation struct {
	cfg  *config.Config
	pols *systems.PolicyTable
	rng  *rng.Rand

	world        *ecs.World
	agents       *agentMap
	filter       *agentFilter
	corpseFilter *ecs.Filter2[components.Position, components.Corpse]
	byID         map[uint64]ecs.Entity
	brains       map[uint64]*neural.Brain

	bounds      world.Bounds
	terrain     world.Terrain
	terrainSeed int64
	ownTerrain  bool // generated from terrainSeed, not supplied
	food        *world.FoodField
	carrion     *carrionField
	foods       *foodSources
	clock       *world.Clock
	pheromones  *world.PheromoneGrid
	commands    *world.CommandQueue

	index     *systems.HierarchicalIndex
	perceiver *systems.Perceiver
	steer     systems.SteerParams
	integ     systems.IntegratorParams
	mods      systems.Modulators
	state     systems.KernelState

	sched    *lod.Scheduler
	auto     *lod.Autoscaler
	pool     *compute.Pool
	pipeline *compute.Pipeline

	tracker *neural.InnovationTracker
	params  neural.Params
	niches  [components.NumSpecies]*neural.SpeciesManager

	events    *telemetry.EventRing
	lifetime  *telemetry.LifetimeTracker
	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	bookmarks *telemetry.BookmarkDetector
	hall      *telemetry.HallOfFame
	output    *telemetry.OutputManager
	logStats  bool
	diag      *diagnostics

	frame      uint64
	nextID     uint64
	reach      float32 // furthest an agent moves in a frame
	maxAgents  int
	cellSize   float32 // fine grid cell size, applied at the next index build
	nextGenAt  float64
	closed     bool
	lastWindow telemetry.WindowStats

	// Per-frame tables, reused.
	slots    []agentSlot
	entries  []systems.Entry
	views    []systems.AgentView
	slotOf   map[uint64]int32
	census   [components.NumSpecies]int
	births   []birthRequest
	corpseAt map[uint64]float32 // victim id -> corpse biomass after predation
	pending  []telemetry.Event
	inputs   neural.Inputs
	near     []systems.Neighbor
	foodBuf  []world.FoodItem
	flatPos  []float32
	flatVel  []float32
	culled   []int32
	cmdBuf   []world.Command

	snapshot atomic.Pointer[Snapshot]
	metrics  telemetry.Metrics
}

// New creates a simulation. Configuration errors are returned before any
// state is built.
func New(cfg *config.Config, p InitParams) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new simulation: %w: nil config", config.ErrInvalid)
	}
	if p.WorldBounds != nil {
		c := *cfg
		c.World.MinX, c.World.MaxX = float64(p.WorldBounds.MinX), float64(p.WorldBounds.MaxX)
		c.World.MinZ, c.World.MaxZ = float64(p.WorldBounds.MinZ), float64(p.WorldBounds.MaxZ)
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	if p.InitialPopulation < 0 {
		return nil, fmt.Errorf("new simulation: %w: negative initial population %d", config.ErrInvalid, p.InitialPopulation)
	}

	auto := lod.NewAutoscaler(cfg)
	if p.Quality != "" {
		idx, ok := cfg.Derived.LevelIndex[p.Quality]
		if !ok {
			return nil, fmt.Errorf("new simulation: %w: unknown quality level %q", config.ErrInvalid, p.Quality)
		}
		auto.Pin(idx)
		if !p.PinQuality {
			auto.Unpin()
		}
	} else if p.PinQuality {
		auto.Pin(auto.Level())
	}

	bounds := world.BoundsFromConfig(cfg.World)
	terrainSeed := p.TerrainSeed
	if terrainSeed == 0 {
		terrainSeed = cfg.World.TerrainSeed
	}
	if terrainSeed == 0 {
		terrainSeed = int64(p.Seed)
	}
	terrain := p.Terrain
	if terrain == nil {
		terrain = world.NewTerrain(cfg.World, terrainSeed)
	} else {
		bounds = terrain.Bounds()
	}

	src := rng.New(p.Seed)
	food := p.Food
	if food == nil {
		food = world.NewFoodField(cfg.Food, terrain, src)
	}

	pols := systems.NewPolicyTable(cfg)
	level := auto.Current()
	pool := compute.NewPool(cfg.GPU.Workers)
	dev := p.Device
	if dev == nil && cfg.GPU.Enabled {
		dev = compute.NewSoftwareDevice(pols, pool, level.DispatchWidth)
	}
	capacity := max(p.InitialPopulation, 256)

	s := &Simulation{
		cfg:         cfg,
		pols:        pols,
		rng:         src,
		world:       ecs.NewWorld(),
		byID:        make(map[uint64]ecs.Entity, capacity),
		brains:      make(map[uint64]*neural.Brain, capacity),
		bounds:      bounds,
		terrain:     terrain,
		terrainSeed: terrainSeed,
		ownTerrain:  p.Terrain == nil,
		food:        food,
		clock:       world.NewClock(cfg.Environment),
		pheromones:  world.NewPheromoneGrid(cfg.Pheromone, bounds),
		commands:    world.NewCommandQueue(),
		index: systems.NewHierarchicalIndex(bounds.MinX, bounds.MinZ, bounds.MaxX, bounds.MaxZ,
			level.GridCellSize, float32(cfg.Physics.CoarseCellSize), 8),
		perceiver: systems.NewPerceiver(cfg, pols),
		steer:     systems.NewSteerParams(cfg, bounds),
		integ:     systems.NewIntegratorParams(cfg, bounds),
		mods:      systems.ModulatorsFromConfig(cfg.Perception),
		sched:     lod.NewScheduler(cfg, level.Thresholds),
		auto:      auto,
		pool:      pool,
		pipeline:  compute.NewPipeline(dev, pols, pool, cfg.Derived.GPUTimeout, capacity),
		tracker:   neural.NewInnovationTracker(),
		params:    neural.ParamsFromConfig(cfg.NEAT),
		events:    telemetry.NewEventRing(cfg.Telemetry.EventCapacity),
		lifetime:  telemetry.NewLifetimeTracker(),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks: telemetry.NewBookmarkDetector(10),
		output:    p.Output,
		logStats:  p.LogStats,
		diag:      newDiagnostics(),
		nextID:    1,
		nextGenAt: cfg.NEAT.GenerationSeconds,
		slotOf:    make(map[uint64]int32, capacity),
		corpseAt:  make(map[uint64]float32),
	}
	s.agents = ecs.NewMap8[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Organism,
		components.Physiology,
		components.Lineage,
		components.Memory,
		components.Traits,
	](s.world)
	s.filter = ecs.NewFilter8[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Organism,
		components.Physiology,
		components.Lineage,
		components.Memory,
		components.Traits,
	](s.world)
	s.corpseFilter = ecs.NewFilter2[components.Position, components.Corpse](s.world)

	s.carrion = newCarrionField(bounds, float32(cfg.Physics.CoarseCellSize), s.world)
	s.foods = &foodSources{field: s.food, carrion: s.carrion}
	s.perceiver.Food = s.foods
	s.perceiver.Terrain = terrain
	s.perceiver.Env = s.clock
	s.perceiver.Pheromones = s.pheromones
	s.perceiver.Index = s.index
	s.steer.SetSeason(s.clock.Season())
	s.reach = 2 * cfg.Derived.DT32 * maxSpeed(pols)

	opts := s.params.Options
	for sp := range s.niches {
		s.niches[sp] = neural.NewSpeciesManager(opts)
	}
	if cfg.HallOfFame.Enabled {
		s.hall = telemetry.NewHallOfFame(cfg.HallOfFame)
	}
	s.sched.Attach(s.pipeline)
	s.applyLevel(level)

	if err := s.populate(p.InitialPopulation); err != nil {
		s.Shutdown()
		return nil, err
	}
	s.publishSnapshot()

	slog.Info("simulation initialised",
		"agents", len(s.byID),
		"terrain_seed", terrainSeed,
		"quality_level", level.Name,
		"device", deviceName(dev),
		"food_patches", food.Len(),
	)
	return s, nil
}

func deviceName(d compute.Device) string {
	if d == nil {
		return "cpu"
	}
	return d.Name()
}

// Shutdown drains in-flight batches, clears queued commands and stops the
// workers. It is safe to call more than once.
func (s *Simulation) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	s.sched.Drain()
	if err := s.pipeline.Close(); err != nil {
		slog.Warn("closing compute device", "error", err)
	}
	s.pool.Stop()
	s.commands.Clear()
	s.births = s.births[:0]
}

// Config returns the configuration the simulation runs with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Policies returns the resolved species policies.
func (s *Simulation) Policies() *systems.PolicyTable { return s.pols }

// Frame returns the number of completed frames.
func (s *Simulation) Frame() uint64 { return s.frame }

// SimTime returns elapsed simulated seconds.
func (s *Simulation) SimTime() float64 { return s.clock.Time() }

// Population returns the number of living agents.
func (s *Simulation) Population() int { return len(s.byID) }

// Terrain returns the terrain.
func (s *Simulation) Terrain() world.Terrain { return s.terrain }

// Bounds returns the world bounds.
func (s *Simulation) Bounds() world.Bounds { return s.bounds }

// Food returns the food field.
func (s *Simulation) Food() *world.FoodField { return s.food }

// Environment returns the clock environment.
func (s *Simulation) Environment() world.Environment { return s.clock }

// Commands returns the inbound command queue. It is safe for concurrent
// use.
func (s *Simulation) Commands() *world.CommandQueue { return s.commands }

// Events returns the outbound event ring. Subscribe to read it.
func (s *Simulation) Events() *telemetry.EventRing { return s.events }

// Metrics returns the metrics of the last completed frame.
func (s *Simulation) Metrics() telemetry.Metrics { return s.metrics }

// LastWindow returns the most recent telemetry window.
func (s *Simulation) LastWindow() telemetry.WindowStats { return s.lastWindow }

// Perf returns the frame phase timings.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// HallOfFame returns the genome archive, or nil when disabled.
func (s *Simulation) HallOfFame() *telemetry.HallOfFame { return s.hall }

// Scheduler returns the tier scheduler.
func (s *Simulation) Scheduler() *lod.Scheduler { return s.sched }

// Index returns the spatial index built at the start of the last frame.
func (s *Simulation) Index() *systems.HierarchicalIndex { return s.index }

// Device returns the compute device, or nil when running CPU only.
func (s *Simulation) Device() compute.Device { return s.pipeline.Device() }

// PipelineStats returns compute pipeline counters.
func (s *Simulation) PipelineStats() compute.PipelineStats { return s.pipeline.Stats() }

// Level returns the active quality level index; higher is cheaper.
func (s *Simulation) Level() int { return s.auto.Level() }

// QualityLevel returns the active quality level.
func (s *Simulation) QualityLevel() lod.Level { return s.auto.Current() }

// SetCamera moves the point tiers are measured from.
func (s *Simulation) SetCamera(x, y, z float32) { s.sched.SetCamera(x, y, z) }

// PinQuality holds the quality ladder at level.
func (s *Simulation) PinQuality(level int) {
	ch := s.auto.Pin(level)
	if ch.From != ch.To {
		s.onLevelChange(ch)
	}
}

// UnpinQuality resumes autoscaling.
func (s *Simulation) UnpinQuality() { s.auto.Unpin() }

// QualityPinned reports whether the autoscaler is held at one level.
func (s *Simulation) QualityPinned() bool { return s.auto.Pinned() }

// QualityLevels returns the quality table, best level first.
func (s *Simulation) QualityLevels() []lod.Level { return s.auto.Levels() }

// applyLevel pushes a quality level to everything that reads it. The grid
// cell size waits for the next index build so a change in the middle of a
// frame never empties the index that frame is reading.
func (s *Simulation) applyLevel(l lod.Level) {
	s.sched.SetThresholds(l.Thresholds)
	s.cellSize = l.GridCellSize
	s.maxAgents = l.MaxAgents
	if hard := s.cfg.Population.MaxAgents; hard > 0 && (s.maxAgents <= 0 || hard < s.maxAgents) {
		s.maxAgents = hard
	}
	if w, ok := s.pipeline.Device().(interface{ SetWidth(int) }); ok {
		w.SetWidth(l.DispatchWidth)
	}
}

func (s *Simulation) onLevelChange(ch lod.Change) {
	l := s.auto.Levels()[ch.To]
	s.applyLevel(l)
	s.emit(telemetry.NewQualityEvent(s.frame, ch.To, ch.Reason))
	slog.Info("quality level changed",
		"tick", s.frame,
		"from", s.auto.Levels()[ch.From].Name,
		"to", l.Name,
		"reason", ch.Reason,
	)
}
