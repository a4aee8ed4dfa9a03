package main

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/rng"
	"github.com/pthm-cable/forge/sim"
	"github.com/pthm-cable/forge/world"
)

// Scenario describes the flocking run every evaluation scores.
type Scenario struct {
	Agents int     // flock size
	Spread float32 // initial half-width of the spawn square
	Frames int
}

// FitnessEvaluator runs headless flocking scenarios and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	scenario   Scenario
	seeds      []uint64
	configPath string

	mu          sync.Mutex
	lastMetrics flockMetrics // mean over seeds of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. Each run loads a fresh copy
// of the config at configPath.
func NewFitnessEvaluator(params *ParamVector, sc Scenario, seeds []uint64, configPath string) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		scenario:   sc,
		seeds:      seeds,
		configPath: configPath,
	}
}

// flockMetrics summarises the final state of one run.
type flockMetrics struct {
	Contraction float64 // final diameter / initial diameter
	Crowding    float64 // how far the mean spacing falls below the separation radius, in radii
	Survivors   float64 // fraction of the flock alive at the end
}

// LastMetrics returns the seed-averaged metrics of the most recent
// evaluation.
func (fe *FitnessEvaluator) LastMetrics() flockMetrics {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMetrics
}

// Evaluate computes fitness for a parameter vector (lower = better). A tight
// flock that keeps its spacing scores best.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]flockMetrics, len(fe.seeds))
	errs := make([]error, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint64) {
			defer wg.Done()
			results[idx], errs[idx] = fe.runScenario(x, s)
		}(i, seed)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return math.Inf(1)
		}
	}

	contraction := make([]float64, len(results))
	crowding := make([]float64, len(results))
	survivors := make([]float64, len(results))
	for i, r := range results {
		contraction[i] = r.Contraction
		crowding[i] = r.Crowding
		survivors[i] = r.Survivors
	}
	mean := flockMetrics{
		Contraction: stat.Mean(contraction, nil),
		Crowding:    stat.Mean(crowding, nil),
		Survivors:   stat.Mean(survivors, nil),
	}

	fe.mu.Lock()
	fe.lastMetrics = mean
	fe.mu.Unlock()

	return fitness(mean)
}

// fitness weighs contraction against crowding and losses.
func fitness(m flockMetrics) float64 {
	return m.Contraction + 4*m.Crowding + 2*(1-m.Survivors)
}

// runScenario executes one flocking run on an empty flat world.
func (fe *FitnessEvaluator) runScenario(x []float64, seed uint64) (flockMetrics, error) {
	cfg, err := config.Load(fe.configPath)
	if err != nil {
		return flockMetrics{}, err
	}
	cfg.HallOfFame.Enabled = false
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return flockMetrics{}, err
	}

	b := world.BoundsFromConfig(cfg.World)
	terrain := world.NewFlatTerrain(b, 0)
	s, err := sim.New(cfg, sim.InitParams{
		Seed:       seed,
		Quality:    cfg.Quality.Levels[0].Name,
		PinQuality: true,
		Terrain:    terrain,
		Food:       world.NewEmptyFoodField(cfg.Food, terrain),
	})
	if err != nil {
		return flockMetrics{}, err
	}
	defer s.Shutdown()
	s.SetCamera(0, 0, 0)

	src := rng.New(seed)
	sc := fe.scenario
	ids := make([]uint64, 0, sc.Agents)
	for range sc.Agents {
		id, err := s.Spawn(sim.SpawnSpec{
			Species:   fe.params.Species,
			Pos:       components.Position{X: rng.Range(src, -sc.Spread, sc.Spread), Z: rng.Range(src, -sc.Spread, sc.Spread)},
			Heading:   rng.Range(src, -math.Pi, math.Pi),
			Energy:    float32(cfg.SpeciesPolicy(fe.params.Species).MaxEnergy),
			Brainless: true,
		})
		if err != nil {
			return flockMetrics{}, fmt.Errorf("spawning flock: %w", err)
		}
		ids = append(ids, id)
	}

	d0 := diameter(positions(s, ids))
	s.Run(sc.Frames)
	after := positions(s, ids)

	m := flockMetrics{Survivors: float64(len(after)) / float64(len(ids))}
	if len(after) < 2 || d0 == 0 {
		m.Contraction = 1
		return m, nil
	}
	m.Contraction = diameter(after) / d0
	sep := float64(cfg.SpeciesPolicy(fe.params.Species).SeparationRadius)
	if gap := sep - meanPairwise(after); gap > 0 && sep > 0 {
		m.Crowding = gap / sep
	}
	return m, nil
}

// positions returns the XZ positions of the ids still alive.
func positions(s *sim.Simulation, ids []uint64) [][2]float64 {
	out := make([][2]float64, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.Agent(id); ok {
			out = append(out, [2]float64{float64(a.Pos.X), float64(a.Pos.Z)})
		}
	}
	return out
}

// diameter is twice the largest distance from the centroid.
func diameter(ps [][2]float64) float64 {
	if len(ps) == 0 {
		return 0
	}
	xs := make([]float64, len(ps))
	zs := make([]float64, len(ps))
	for i, p := range ps {
		xs[i], zs[i] = p[0], p[1]
	}
	cx, cz := stat.Mean(xs, nil), stat.Mean(zs, nil)
	var r float64
	for _, p := range ps {
		r = max(r, math.Hypot(p[0]-cx, p[1]-cz))
	}
	return 2 * r
}

func meanPairwise(ps [][2]float64) float64 {
	var sum float64
	var n int
	for i := range ps {
		for j := i + 1; j < len(ps); j++ {
			sum += math.Hypot(ps[i][0]-ps[j][0], ps[i][1]-ps[j][1])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
