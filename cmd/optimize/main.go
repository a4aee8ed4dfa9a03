// Package main tunes flocking steering weights with CMA-ES. Each
// evaluation runs a headless flock on an empty plane and scores how tight
// it ends up without collapsing below its separation radius.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
)

type options struct {
	configPath string
	species    string
	scenario   Scenario
	seeds      int
	maxEvals   int
	population int
	outputDir  string
}

func main() {
	var o options
	var spread float64
	flag.StringVar(&o.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.StringVar(&o.species, "species", "grazer", "Species whose weights are tuned")
	flag.IntVar(&o.scenario.Agents, "agents", 50, "Flock size")
	flag.Float64Var(&spread, "spread", 20, "Half-width of the spawn square")
	flag.IntVar(&o.scenario.Frames, "frames", 900, "Frames per run")
	flag.IntVar(&o.seeds, "seeds", 3, "Evaluation seeds per candidate")
	flag.IntVar(&o.maxEvals, "max-evals", 200, "Evaluation budget")
	flag.IntVar(&o.population, "population", 0, "CMA-ES population size (0 = 4 + 3n/2)")
	flag.StringVar(&o.outputDir, "output", "", "Directory for the log and best config (required)")
	flag.Parse()
	o.scenario.Spread = float32(spread)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := run(o); err != nil {
		slog.Error("optimize", "error", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.outputDir == "" {
		return errors.New("-output is required")
	}
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return err
	}
	base, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	sp, ok := components.ParseSpecies(o.species)
	if !ok || base.SpeciesPolicy(sp) == nil {
		return fmt.Errorf("unknown species %q", o.species)
	}

	params := NewParamVector(sp, base)
	seeds := make([]uint64, o.seeds)
	for i := range seeds {
		seeds[i] = uint64(42 + 1000*i)
	}
	eval := NewFitnessEvaluator(params, o.scenario, seeds, o.configPath)

	logFile, err := os.Create(filepath.Join(o.outputDir, "optimize_log.csv"))
	if err != nil {
		return err
	}
	defer logFile.Close()
	tr := newTracker(params, csv.NewWriter(logFile), o.maxEvals)
	defer tr.log.Flush()
	if err := tr.writeHeader(); err != nil {
		return err
	}

	pop := o.population
	if pop == 0 {
		pop = 4 + 3*params.Dim()/2
	}
	slog.Info("starting CMA-ES",
		"species", sp, "params", params.Dim(), "population", pop,
		"max_evals", o.maxEvals, "seeds", o.seeds,
		"flock", o.scenario.Agents, "frames", o.scenario.Frames)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			f := eval.Evaluate(raw)
			tr.observe(raw, f, eval.LastMetrics())
			return f
		},
	}
	result, err := optimize.Minimize(problem,
		params.Normalize(params.DefaultVector()),
		&optimize.Settings{FuncEvaluations: o.maxEvals},
		&optimize.CmaEsChol{InitStepSize: 0.3, Population: pop})
	if err != nil {
		slog.Warn("optimization stopped early", "error", err)
	}

	best := tr.best
	if best == nil && result != nil {
		best = params.Clamp(params.Denormalize(result.X))
	}
	slog.Info("optimization complete",
		"evals", tr.evals, "elapsed", time.Since(tr.start).Round(time.Second), "best_fitness", tr.bestFitness)
	if best == nil {
		return nil
	}
	for i, spec := range params.Specs {
		slog.Info("best parameter", "path", spec.Path, "value", best[i])
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if err := params.ApplyToConfig(cfg, best); err != nil {
		return fmt.Errorf("best parameters rejected: %w", err)
	}
	out := filepath.Join(o.outputDir, "best_config.yaml")
	if err := cfg.WriteYAML(out); err != nil {
		return err
	}
	slog.Info("best config written", "path", out)
	return nil
}

// tracker records every evaluation to the CSV log and keeps the best
// candidate seen. CMA-ES calls the objective serially.
type tracker struct {
	params      *ParamVector
	log         *csv.Writer
	budget      int
	start       time.Time
	evals       int
	best        []float64
	bestFitness float64
}

func newTracker(pv *ParamVector, w *csv.Writer, budget int) *tracker {
	return &tracker{params: pv, log: w, budget: budget, start: time.Now(), bestFitness: 1e9}
}

func (t *tracker) writeHeader() error {
	header := []string{"eval", "fitness", "contraction", "crowding", "survivors"}
	for _, spec := range t.params.Specs {
		header = append(header, spec.Name)
	}
	return t.log.Write(header)
}

func (t *tracker) observe(raw []float64, fitness float64, m flockMetrics) {
	t.evals++
	if fitness < t.bestFitness {
		t.bestFitness = fitness
		t.best = raw
	}

	row := []string{
		strconv.Itoa(t.evals),
		strconv.FormatFloat(fitness, 'f', 6, 64),
		strconv.FormatFloat(m.Contraction, 'f', 4, 64),
		strconv.FormatFloat(m.Crowding, 'f', 4, 64),
		strconv.FormatFloat(m.Survivors, 'f', 4, 64),
	}
	for _, v := range raw {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := t.log.Write(row); err != nil {
		slog.Warn("writing log row", "error", err)
	}
	t.log.Flush()

	elapsed := time.Since(t.start)
	eta := time.Duration(t.budget-t.evals) * (elapsed / time.Duration(t.evals))
	slog.Info("eval",
		"n", t.evals, "of", t.budget, "fitness", fitness,
		"contraction", m.Contraction, "crowding", m.Crowding, "best", t.bestFitness,
		"elapsed", elapsed.Round(time.Second), "eta", eta.Round(time.Second))
}
