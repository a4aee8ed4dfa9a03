package sim

import (
	"log/slog"
	"slices"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/telemetry"
)

// emit records an event for this frame. Events reach the ring together at
// the end of the frame so subscribers never see a half-finished frame.
func (s *Simulation) emit(e telemetry.Event) {
	s.lifetime.Observe(e)
	s.collector.Record(e)
	s.pending = append(s.pending, e)
}

func (s *Simulation) flushEvents() {
	if len(s.pending) == 0 {
		return
	}
	s.events.Append(s.pending...)
	s.pending = s.pending[:0]
}

// finishFrame closes the perf sample, fills the metrics, runs the
// autoscaler and flushes the telemetry window when it is due.
func (s *Simulation) finishFrame() {
	elapsed := s.perf.EndTick()

	classified := s.sched.Classified()
	ticked := s.sched.Ticked()
	ps := s.pipeline.Stats()
	level := s.auto.Current()
	s.metrics = telemetry.Metrics{
		Frame:        s.frame,
		SimTime:      s.clock.Time(),
		Near:         classified[0],
		Medium:       classified[1],
		Far:          classified[2],
		Culled:       classified[3],
		NearTicks:    ticked[0],
		MediumTicks:  ticked[1],
		FarTicks:     ticked[2],
		FrameMS:      float64(elapsed.Microseconds()) / 1000,
		MeanFrameMS:  s.auto.Mean(),
		KernelMS:     float64(s.pipeline.KernelTime().Microseconds()) / 1000,
		LoadFactor:   float64(s.index.Fine.LoadFactor()),
		QualityLevel: s.auto.Level(),
		QualityName:  level.Name,
		Population:   len(s.byID),
		Corpses:      s.carrion.Len(),
		Dispatches:   uint64(ps.Dispatches),
		Fallbacks:    uint64(ps.Fallbacks),
		Timeouts:     uint64(ps.Timeouts),
	}

	if ch, ok := s.auto.Observe(elapsed); ok {
		s.onLevelChange(ch)
		s.metrics.QualityLevel = s.auto.Level()
		s.metrics.QualityName = s.auto.Current().Name
	}
	s.metrics.MeanFrameMS = s.auto.Mean()

	if err := s.output.WriteMetrics(s.metrics); err != nil && s.diag.once("metrics_write") {
		slog.Warn("metrics write failed", "error", err)
	}

	if s.collector.ShouldFlush(s.frame) {
		s.flushWindow()
	}
	s.flushEvents()
}

// flushWindow closes the telemetry window and writes its artefacts.
func (s *Simulation) flushWindow() {
	pop := telemetry.Population{
		Energies:    make([]float64, 0, len(s.byID)),
		Generations: make([]float64, 0, len(s.byID)),
		Corpses:     s.carrion.Len(),
	}
	q := s.filter.Query()
	for q.Next() {
		_, _, _, org, phys, lin, _, _ := q.Get()
		pop.Species[org.Species]++
		if phys.MaxEnergy > 0 {
			pop.Energies = append(pop.Energies, float64(phys.Energy/phys.MaxEnergy))
		}
		pop.Generations = append(pop.Generations, float64(lin.Generation))
	}
	for _, n := range s.niches {
		pop.NEATSpecies += len(n.Species)
	}

	ws := s.collector.Flush(s.frame, pop)
	s.lastWindow = ws
	if s.logStats {
		ws.LogStats()
	}
	if err := s.output.WriteTelemetry(ws); err != nil {
		slog.Warn("telemetry write failed", "error", err)
	}
	if err := s.output.WritePerf(s.perf.Stats(), s.frame, s.auto.Current().Name); err != nil {
		slog.Warn("perf write failed", "error", err)
	}
	for _, b := range s.bookmarks.Check(ws) {
		b.LogBookmark()
		if err := s.output.WriteBookmark(b); err != nil {
			slog.Warn("bookmark write failed", "error", err)
		}
	}
	if err := s.output.WriteHallOfFame(s.hall); err != nil {
		slog.Warn("hall of fame write failed", "error", err)
	}
}

// fitness scores an agent for culling, speciation and the hall of fame.
func (s *Simulation) fitness(id uint64) float32 {
	return s.lifetime.Fitness(id, s.frame, s.cfg.Derived.DT32)
}

// speciesCounts returns the living population per species.
func (s *Simulation) speciesCounts() [components.NumSpecies]int {
	return s.census
}

// sortedIDs returns every living agent id in ascending order.
func (s *Simulation) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
