package telemetry

import (
	"log/slog"
	"time"
)

// Phase is one stage of a simulation frame.
type Phase uint8

const (
	PhaseIndex Phase = iota
	PhaseClassify
	PhaseDispatch
	PhaseNear
	PhaseCollect
	PhaseIntegrate
	PhaseLifecycle
	PhaseTelemetry
	NumPhases
)

var phaseNames = [NumPhases]string{
	"index", "classify", "dispatch", "near", "collect", "integrate", "lifecycle", "telemetry",
}

func (p Phase) String() string {
	if p < NumPhases {
		return phaseNames[p]
	}
	return "unknown"
}

const noPhase = NumPhases

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	Frame  time.Duration
	Phases [NumPhases]time.Duration
}

// PerfCollector tracks frame timings over a rolling window. It is driven
// from the simulation goroutine only.
type PerfCollector struct {
	samples     []PerfSample
	next        int
	count       int
	cur         PerfSample
	tickStart   time.Time
	phaseStart  time.Time
	lastPhase   Phase
	lastRender  time.Time
	renderDelta time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize frames.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{samples: make([]PerfSample, windowSize), lastPhase: noPhase}
}

// StartTick begins timing a frame.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.cur = PerfSample{}
	p.lastPhase = noPhase
}

// StartPhase closes the running phase and opens ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	if p.lastPhase != noPhase {
		p.cur.Phases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = ph
}

// EndTick closes the frame and returns its wall time.
func (p *PerfCollector) EndTick() time.Duration {
	now := time.Now()
	if p.lastPhase != noPhase {
		p.cur.Phases[p.lastPhase] += now.Sub(p.phaseStart)
		p.lastPhase = noPhase
	}
	p.cur.Frame = now.Sub(p.tickStart)

	p.samples[p.next] = p.cur
	p.next = (p.next + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
	return p.cur.Frame
}

// Last returns the most recently completed sample.
func (p *PerfCollector) Last() PerfSample {
	if p.count == 0 {
		return PerfSample{}
	}
	return p.samples[(p.next+len(p.samples)-1)%len(p.samples)]
}

// RecordRender records the interval between rendered frames in the viewer.
func (p *PerfCollector) RecordRender() {
	now := time.Now()
	if !p.lastRender.IsZero() {
		p.renderDelta = now.Sub(p.lastRender)
	}
	p.lastRender = now
}

// PerfStats holds aggregated timings over the window.
type PerfStats struct {
	AvgFrame time.Duration
	MinFrame time.Duration
	MaxFrame time.Duration

	PhaseAvg [NumPhases]time.Duration
	PhasePct [NumPhases]float64

	TicksPerSecond float64
	FPS            float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.renderDelta > 0 {
		s.FPS = float64(time.Second) / float64(p.renderDelta)
	}
	if p.count == 0 {
		return s
	}

	var total time.Duration
	var phaseSum [NumPhases]time.Duration
	for i := 0; i < p.count; i++ {
		smp := p.samples[i]
		total += smp.Frame
		if i == 0 || smp.Frame < s.MinFrame {
			s.MinFrame = smp.Frame
		}
		s.MaxFrame = max(s.MaxFrame, smp.Frame)
		for ph, d := range smp.Phases {
			phaseSum[ph] += d
		}
	}

	s.AvgFrame = total / time.Duration(p.count)
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / time.Duration(p.count)
		if s.AvgFrame > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgFrame) * 100
		}
	}
	if s.AvgFrame > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgFrame)
	}
	return s
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrame.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrame.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrame.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the flat CSV row for perf.csv.
type PerfStatsCSV struct {
	Frame        uint64  `csv:"frame"`
	QualityLevel string  `csv:"quality_level"`
	AvgFrameUS   int64   `csv:"avg_frame_us"`
	MinFrameUS   int64   `csv:"min_frame_us"`
	MaxFrameUS   int64   `csv:"max_frame_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	IndexPct     float64 `csv:"index_pct"`
	ClassifyPct  float64 `csv:"classify_pct"`
	DispatchPct  float64 `csv:"dispatch_pct"`
	NearPct      float64 `csv:"near_pct"`
	CollectPct   float64 `csv:"collect_pct"`
	IntegratePct float64 `csv:"integrate_pct"`
	LifecyclePct float64 `csv:"lifecycle_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens s for export.
func (s PerfStats) ToCSV(frame uint64, level string) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:        frame,
		QualityLevel: level,
		AvgFrameUS:   s.AvgFrame.Microseconds(),
		MinFrameUS:   s.MinFrame.Microseconds(),
		MaxFrameUS:   s.MaxFrame.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		IndexPct:     s.PhasePct[PhaseIndex],
		ClassifyPct:  s.PhasePct[PhaseClassify],
		DispatchPct:  s.PhasePct[PhaseDispatch],
		NearPct:      s.PhasePct[PhaseNear],
		CollectPct:   s.PhasePct[PhaseCollect],
		IntegratePct: s.PhasePct[PhaseIntegrate],
		LifecyclePct: s.PhasePct[PhaseLifecycle],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
