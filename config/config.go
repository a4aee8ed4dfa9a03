// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/forge/components"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Screen      ScreenConfig      `yaml:"screen"`
	World       WorldConfig       `yaml:"world"`
	Physics     PhysicsConfig     `yaml:"physics"`
	Population  PopulationConfig  `yaml:"population"`
	Perception  PerceptionConfig  `yaml:"perception"`
	Steering    SteeringConfig    `yaml:"steering"`
	Integrator  IntegratorConfig  `yaml:"integrator"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Quality     QualityConfig     `yaml:"quality"`
	GPU         GPUConfig         `yaml:"gpu"`
	NEAT        NEATConfig        `yaml:"neat"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Environment EnvironmentConfig `yaml:"environment"`
	Food        FoodConfig        `yaml:"food"`
	Pheromone   PheromoneConfig   `yaml:"pheromone"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	HallOfFame  HallOfFameConfig  `yaml:"hall_of_fame"`
	Species     []SpeciesConfig   `yaml:"species"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings for the viewer.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// WorldConfig holds world bounds and terrain parameters.
// Bounds are on the horizontal XZ plane.
type WorldConfig struct {
	MinX        float64 `yaml:"min_x"`
	MaxX        float64 `yaml:"max_x"`
	MinZ        float64 `yaml:"min_z"`
	MaxZ        float64 `yaml:"max_z"`
	Terrain     string  `yaml:"terrain"`      // "noise" or "flat"
	TerrainSeed int64   `yaml:"terrain_seed"` // 0 = use run seed
	WaterLevel  float64 `yaml:"water_level"`  // absolute height of the water surface
	HeightScale float64 `yaml:"height_scale"` // terrain heights span [0, height_scale]
	FlatHeight  float64 `yaml:"flat_height"`
	NoiseScale  float64 `yaml:"noise_scale"`
	Octaves     int     `yaml:"octaves"`
	Lacunarity  float64 `yaml:"lacunarity"`
	Gain        float64 `yaml:"gain"`
	RefDepth    float64 `yaml:"ref_depth"` // depth normaliser for the water proximity sense
}

// PhysicsConfig holds simulation physics parameters.
type PhysicsConfig struct {
	DT             float64 `yaml:"dt"`
	FineCellSize   float64 `yaml:"fine_cell_size"`
	CoarseCellSize float64 `yaml:"coarse_cell_size"`
	MaxNeighbors   int     `yaml:"max_neighbors"` // flocking neighbour cap per agent
	Gravity        float64 `yaml:"gravity"`
}

// PopulationConfig holds population management parameters.
type PopulationConfig struct {
	Initial   int `yaml:"initial"`
	MaxAgents int `yaml:"max_agents"` // hard cap; 0 = quality level decides
}

// PerceptionConfig holds sensor parameters.
type PerceptionConfig struct {
	ReducedNeighbors int     `yaml:"reduced_neighbors"` // MEDIUM tier neighbour budget
	DensityNorm      float64 `yaml:"density_norm"`      // neighbour count that reads as full density
	RecentWindow     float64 `yaml:"recent_window"`     // seconds for "recently attacked/ate"
	FearDecay        float64 `yaml:"fear_decay"`
	CuriosityRise    float64 `yaml:"curiosity_rise"`
	CuriosityDecay   float64 `yaml:"curiosity_decay"`
	AggressionDecay  float64 `yaml:"aggression_decay"`
}

// SteeringConfig holds steering primitive parameters.
type SteeringConfig struct {
	LegacyModifiers bool    `yaml:"legacy_modifiers"` // apply fear/social multipliers to brainless agents
	WanderRadius    float64 `yaml:"wander_radius"`
	WanderDistance  float64 `yaml:"wander_distance"`
	WanderJitter    float64 `yaml:"wander_jitter"` // radians per second
	BoundaryMargin  float64 `yaml:"boundary_margin"`
	ArriveRadius    float64 `yaml:"arrive_radius"`
	PursuitLead     float64 `yaml:"pursuit_lead"` // max prediction seconds
}

// IntegratorConfig holds habitat dynamics parameters.
type IntegratorConfig struct {
	WaterDrag       float64 `yaml:"water_drag"`
	BuoyancyGain    float64 `yaml:"buoyancy_gain"`
	FlapImpulse     float64 `yaml:"flap_impulse"`
	GlideCostFactor float64 `yaml:"glide_cost_factor"`
	AirDrag         float64 `yaml:"air_drag"`
	NaNPenalty      float64 `yaml:"nan_penalty"` // energy fraction kept after sanitising
}

// SchedulerConfig holds tier scheduling parameters.
type SchedulerConfig struct {
	CulledPhysiologyHz float64 `yaml:"culled_physiology_hz"`
	CameraX            float64 `yaml:"camera_x"`
	CameraY            float64 `yaml:"camera_y"`
	CameraZ            float64 `yaml:"camera_z"`
}

// QualityConfig holds the autoscaler and the ordered quality levels.
type QualityConfig struct {
	Initial              string               `yaml:"initial"`
	TargetFrameMS        float64              `yaml:"target_frame_ms"`
	Window               int                  `yaml:"window"`
	StepDownRatio        float64              `yaml:"step_down_ratio"`
	StepDownFrames       int                  `yaml:"step_down_frames"`
	StepUpRatio          float64              `yaml:"step_up_ratio"`
	StepUpFrames         int                  `yaml:"step_up_frames"`
	ResourceStepCooldown int                  `yaml:"resource_step_cooldown"` // frames between forced step-downs
	Levels               []QualityLevelConfig `yaml:"levels"`
}

// QualityLevelConfig is one row of the quality ladder, best first.
type QualityLevelConfig struct {
	Name           string  `yaml:"name"`
	NearDistance   float64 `yaml:"near_distance"`
	MediumDistance float64 `yaml:"medium_distance"`
	FarDistance    float64 `yaml:"far_distance"`
	MediumCadence  int     `yaml:"medium_cadence"`
	FarCadence     int     `yaml:"far_cadence"`
	MaxAgents      int     `yaml:"max_agents"`
	GridCellSize   float64 `yaml:"grid_cell_size"`
	RenderLODBias  float64 `yaml:"render_lod_bias"`
	DispatchWidth  int     `yaml:"dispatch_width"`
}

// GPUConfig holds compute device parameters.
type GPUConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMS int  `yaml:"timeout_ms"`
	Workers   int  `yaml:"workers"` // 0 = GOMAXPROCS
}

// NEATConfig holds mutation and speciation parameters.
type NEATConfig struct {
	WeightMutProb         float64 `yaml:"weight_mut_prob"`
	WeightSigma           float64 `yaml:"weight_sigma"`
	WeightResampleProb    float64 `yaml:"weight_resample_prob"`
	AddEdgeProb           float64 `yaml:"add_edge_prob"`
	AddNodeProb           float64 `yaml:"add_node_prob"`
	ToggleProb            float64 `yaml:"toggle_prob"`
	MaxWeight             float64 `yaml:"max_weight"`
	InitialConnectionProb float64 `yaml:"initial_connection_prob"`
	CompatThreshold       float64 `yaml:"compat_threshold"`
	HybridCap             float64 `yaml:"hybrid_cap"`
	ExcessCoeff           float64 `yaml:"excess_coeff"`
	DisjointCoeff         float64 `yaml:"disjoint_coeff"`
	WeightCoeff           float64 `yaml:"weight_coeff"`
	DropOffAge            int     `yaml:"drop_off_age"`
	GenerationSeconds     float64 `yaml:"generation_seconds"` // species bookkeeping period
}

// LifecycleConfig holds birth, death and corpse parameters.
type LifecycleConfig struct {
	CorpseFraction     float64 `yaml:"corpse_fraction"`      // biomass = fraction * energy at death
	CorpseDecayRate    float64 `yaml:"corpse_decay_rate"`    // biomass per second at reference climate
	CorpseMinBiomass   float64 `yaml:"corpse_min_biomass"`   // below this no corpse is left
	ScavengeRate       float64 `yaml:"scavenge_rate"`        // biomass per second eaten
	ChildEnergyShare   float64 `yaml:"child_energy_share"`   // fraction of paid energy given to the child
	HybridLoad         float64 `yaml:"hybrid_load"`          // genetic load added to hybrids
	HealthRegen        float64 `yaml:"health_regen"`         // health per second when well fed
	TraitMutationSigma float64 `yaml:"trait_mutation_sigma"`
	SpawnJitter        float64 `yaml:"spawn_jitter"`
}

// EnvironmentConfig holds the built-in clock environment.
type EnvironmentConfig struct {
	DayLength        float64 `yaml:"day_length"`    // seconds
	SeasonLength     float64 `yaml:"season_length"` // seconds
	BaseTemperature  float64 `yaml:"base_temperature"`
	TemperatureSwing float64 `yaml:"temperature_swing"`
	BaseMoisture     float64 `yaml:"base_moisture"`
	WindSpeed        float64 `yaml:"wind_speed"`
}

// FoodConfig holds food patch parameters.
type FoodConfig struct {
	PatchSpacing  float64 `yaml:"patch_spacing"`
	PatchDensity  float64 `yaml:"patch_density"` // fraction of candidate sites that host a patch
	PlantCapacity float64 `yaml:"plant_capacity"`
	AlgaeCapacity float64 `yaml:"algae_capacity"`
	RegrowRate    float64 `yaml:"regrow_rate"`   // fraction of capacity per second
	EatRadius     float64 `yaml:"eat_radius"`
	EatRate       float64 `yaml:"eat_rate"`      // units per second
	EnergyPerUnit float64 `yaml:"energy_per_unit"`
	EatThreshold  float64 `yaml:"eat_threshold"` // minimum eatIntent
}

// PheromoneConfig holds the colony pheromone field parameters.
type PheromoneConfig struct {
	CellSize float64 `yaml:"cell_size"`
	Decay    float64 `yaml:"decay"`   // fraction per second
	Deposit  float64 `yaml:"deposit"` // units per second while foraging
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	EventCapacity       int     `yaml:"event_capacity"`
}

// HallOfFameConfig controls the per-species archive of successful genomes
// used to reseed species that fall below a floor.
type HallOfFameConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Size        int     `yaml:"size"`
	MinFitness  float64 `yaml:"min_fitness"`
	ReseedFloor int     `yaml:"reseed_floor"` // reseed when a species has fewer living agents
	ReseedCount int     `yaml:"reseed_count"`
}

// SteeringWeights are the per-species weights of the steering terms.
type SteeringWeights struct {
	Separation float64 `yaml:"separation"`
	Alignment  float64 `yaml:"alignment"`
	Cohesion   float64 `yaml:"cohesion"`
	Food       float64 `yaml:"food"`
	Pursue     float64 `yaml:"pursue"`
	Evade      float64 `yaml:"evade"`
	Wander     float64 `yaml:"wander"`
	Boundary   float64 `yaml:"boundary"`
	Migration  float64 `yaml:"migration"`
}

// SpeciesConfig is one policy record. Behaviour differences between species
// are expressed here rather than in code.
type SpeciesConfig struct {
	Tag          string   `yaml:"tag"`
	Habitat      string   `yaml:"habitat"`
	Diet         string   `yaml:"diet"`
	Food         []string `yaml:"food"`
	Prey         []string `yaml:"prey"`
	Sexual       bool     `yaml:"sexual"`
	Apex         bool     `yaml:"apex"`
	Colonial     bool     `yaml:"colonial"`
	Migratory    bool     `yaml:"migratory"`
	InitialShare float64  `yaml:"initial_share"`
	Capacity     int      `yaml:"carrying_capacity"`

	Mass        float64 `yaml:"mass"`
	MaxSpeed    float64 `yaml:"max_speed"`
	MaxForce    float64 `yaml:"max_force"`
	MaxTurnRate float64 `yaml:"max_turn_rate"`
	SprintBoost float64 `yaml:"sprint_boost"`

	VisionRange      float64 `yaml:"vision_range"`
	SeparationRadius float64 `yaml:"separation_radius"`
	MatingRadius     float64 `yaml:"mating_radius"`

	AttackRange    float64 `yaml:"attack_range"`
	AttackDamage   float64 `yaml:"attack_damage"`
	KillEnergyGain float64 `yaml:"kill_energy_gain"` // fraction of victim energy, at most 0.8
	DrainRate      float64 `yaml:"drain_rate"`       // parasites: energy per second while attached
	HuntCooldown   float64 `yaml:"hunt_cooldown"`
	KillsRequired  int     `yaml:"kills_required"`

	MaxEnergy     float64 `yaml:"max_energy"`
	InitialEnergy float64 `yaml:"initial_energy"`
	MaxHealth     float64 `yaml:"max_health"`
	MaxAge        float64 `yaml:"max_age"`
	Metabolism    float64 `yaml:"metabolism"` // energy per second at rest
	MoveCost      float64 `yaml:"move_cost"`  // energy per second at full speed

	ReproEnergyThreshold float64 `yaml:"repro_energy_threshold"`
	ReproEnergyCost      float64 `yaml:"repro_energy_cost"`
	MaturityAge          float64 `yaml:"maturity_age"`
	ReproCooldown        float64 `yaml:"repro_cooldown"`

	PreferredDepth float64 `yaml:"preferred_depth"` // aquatic, below surface
	CruiseAltitude float64 `yaml:"cruise_altitude"` // aerial, above ground
	FlapFrequency  float64 `yaml:"flap_frequency"`  // aerial, flaps per second

	Weights SteeringWeights `yaml:"weights"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32         float32                    // Physics.DT as float32
	GPUTimeout   time.Duration              // GPU.TimeoutMS as a duration
	TargetFrame  time.Duration              // Quality.TargetFrameMS as a duration
	SpeciesIndex [components.NumSpecies]int // species -> index into Species, -1 when absent
	LevelIndex   map[string]int             // quality level name -> index
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize validates the configuration and recomputes derived values.
// Call it again after editing a loaded Config in place.
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.GPUTimeout = time.Duration(c.GPU.TimeoutMS) * time.Millisecond
	c.Derived.TargetFrame = time.Duration(c.Quality.TargetFrameMS * float64(time.Millisecond))

	for i := range c.Derived.SpeciesIndex {
		c.Derived.SpeciesIndex[i] = -1
	}
	for i, sp := range c.Species {
		if s, ok := components.ParseSpecies(sp.Tag); ok {
			c.Derived.SpeciesIndex[s] = i
		}
	}

	c.Derived.LevelIndex = make(map[string]int, len(c.Quality.Levels))
	for i, lvl := range c.Quality.Levels {
		c.Derived.LevelIndex[lvl.Name] = i
	}
}

// SpeciesPolicy returns the policy record for a species, or nil when the
// table has no entry for it.
func (c *Config) SpeciesPolicy(s components.Species) *SpeciesConfig {
	if int(s) >= len(c.Derived.SpeciesIndex) {
		return nil
	}
	idx := c.Derived.SpeciesIndex[s]
	if idx < 0 {
		return nil
	}
	return &c.Species[idx]
}

// WorldWidth returns the X extent of the world.
func (c *Config) WorldWidth() float64 { return c.World.MaxX - c.World.MinX }

// WorldDepth returns the Z extent of the world.
func (c *Config) WorldDepth() float64 { return c.World.MaxZ - c.World.MinZ }

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
