package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/renderer"
	"github.com/pthm-cable/forge/sim"
	"github.com/pthm-cable/forge/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N frames (0 = unlimited)")
	population := flag.Int("population", 0, "Initial agent count (0 = use config)")
	quality := flag.String("quality", "", "Initial quality level; pins the level when set")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	metricsAddr := flag.String("metrics-addr", "", "Serve live metrics over websocket at this address (e.g. :8080)")
	saveOnExit := flag.String("save-on-exit", "", "Write a save file here on exit")
	loadPath := flag.String("load", "", "Resume from a save file")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation frames per rendered frame")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}
	pop := *population
	if pop == 0 {
		pop = cfg.Population.Initial
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	if err := out.WriteConfig(cfg); err != nil {
		slog.Warn("failed to write config snapshot", "error", err)
	}

	s, err := sim.New(cfg, sim.InitParams{
		Seed:              rngSeed,
		InitialPopulation: pop,
		Quality:           *quality,
		PinQuality:        *quality != "",
		Output:            out,
		LogStats:          *logStats,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	if *loadPath != "" {
		if err := s.Load(*loadPath); err != nil {
			slog.Error("failed to load save", "path", *loadPath, "error", err)
			os.Exit(1)
		}
		slog.Info("resumed", "path", *loadPath, "frame", s.Frame(), "population", s.Population())
	}

	publish := func(telemetry.Metrics) {}
	if *metricsAddr != "" {
		hub := telemetry.NewMetricsHub()
		srv := &http.Server{Addr: *metricsAddr, Handler: hub}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			hub.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		publish = hub.Publish
		slog.Info("serving metrics", "addr", *metricsAddr)
	}

	defer func() {
		if *saveOnExit != "" {
			if err := s.Save(*saveOnExit); err != nil {
				slog.Error("failed to save", "path", *saveOnExit, "error", err)
			} else {
				slog.Info("saved", "path", *saveOnExit, "frame", s.Frame())
			}
		}
		if err := out.WriteHallOfFame(s.HallOfFame()); err != nil {
			slog.Warn("failed to write hall of fame", "error", err)
		}
		s.Shutdown()
		if err := out.Close(); err != nil {
			slog.Warn("closing output", "error", err)
		}
	}()

	if *headless {
		slog.Info("starting headless simulation",
			"seed", rngSeed,
			"population", pop,
			"max_ticks", *maxTicks,
			"steps_per_update", *stepsPerUpdate,
		)
		runHeadless(s, *maxTicks, publish)
		return
	}

	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Forge")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	v := renderer.NewViewer(s, *stepsPerUpdate)
	v.Publish = publish
	if p := out.SavePath(s.Frame()); p != "" {
		v.SavePath = p
	}
	if *saveOnExit != "" {
		v.SavePath = *saveOnExit
	}
	v.Run()
}

// runHeadless steps until maxTicks frames have run or the process is
// interrupted.
func runHeadless(s *sim.Simulation, maxTicks int, publish func(telemetry.Metrics)) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	for {
		select {
		case <-stop:
			slog.Info("interrupted", "frame", s.Frame())
			return
		default:
		}

		s.Step()
		publish(s.Metrics())

		if maxTicks > 0 && s.Frame() >= uint64(maxTicks) {
			slog.Info("max ticks reached", "frame", s.Frame())
			return
		}
	}
}
