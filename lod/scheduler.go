package lod

import (
	"math"

	"github.com/pthm-cable/forge/config"
)

// Drainer is something with work in flight that must finish before
// shutdown, such as a compute pipeline.
type Drainer interface {
	Drain()
}

// TierCounts holds one value per tier.
type TierCounts [NumTiers]int

// Scheduler classifies agents into tiers each frame and decides which of
// them tick. For a tier with cadence N, an agent ticks on frame F when
// id mod N == F mod N, so every agent of the tier is visited once per N
// frames and per-frame work is even.
type Scheduler struct {
	th         Thresholds
	camX, camY float32
	camZ       float32
	frame      uint64

	physioEvery uint64

	classified TierCounts
	ticked     TierCounts
	totals     [NumTiers]uint64

	drainers []Drainer
	tally    map[uint64]int
}

// NewScheduler creates a scheduler with the configured camera and
// thresholds th.
func NewScheduler(cfg *config.Config, th Thresholds) *Scheduler {
	s := &Scheduler{
		th:   th,
		camX: float32(cfg.Scheduler.CameraX),
		camY: float32(cfg.Scheduler.CameraY),
		camZ: float32(cfg.Scheduler.CameraZ),
	}
	s.physioEvery = 1
	if hz := cfg.Scheduler.CulledPhysiologyHz; hz > 0 && cfg.Physics.DT > 0 {
		s.physioEvery = uint64(max(1, math.Round(1/(hz*cfg.Physics.DT))))
	}
	return s
}

// SetThresholds replaces the thresholds; the autoscaler calls this when
// the quality level changes.
func (s *Scheduler) SetThresholds(th Thresholds) { s.th = th }

// Thresholds returns the active thresholds.
func (s *Scheduler) Thresholds() Thresholds { return s.th }

// SetCamera moves the classification origin.
func (s *Scheduler) SetCamera(x, y, z float32) { s.camX, s.camY, s.camZ = x, y, z }

// Camera returns the classification origin.
func (s *Scheduler) Camera() (x, y, z float32) { return s.camX, s.camY, s.camZ }

// BeginFrame resets the per-frame counters.
func (s *Scheduler) BeginFrame(frame uint64) {
	s.frame = frame
	s.classified = TierCounts{}
	s.ticked = TierCounts{}
}

// Frame returns the current frame.
func (s *Scheduler) Frame() uint64 { return s.frame }

// Classify returns the tier of a position and counts it.
func (s *Scheduler) Classify(x, y, z float32) Tier {
	dx, dy, dz := x-s.camX, y-s.camY, z-s.camZ
	t := s.th.Classify(dx*dx + dy*dy + dz*dz)
	s.classified[t]++
	return t
}

// Due reports whether agent id of tier t runs its AI this frame, and
// counts the tick when it does.
func (s *Scheduler) Due(t Tier, id uint64) bool {
	n := uint64(s.th.Cadence(t))
	if n == 0 || id%n != s.frame%n {
		return false
	}
	s.ticked[t]++
	s.totals[t]++
	if s.tally != nil {
		s.tally[id]++
	}
	return true
}

// PhysiologyDue reports whether a culled agent's physiology ticks this
// frame. Agents are staggered by id across the period.
func (s *Scheduler) PhysiologyDue(id uint64) bool {
	return (id+s.frame)%s.physioEvery == 0
}

// PhysiologyPeriod is the number of frames between culled physiology
// ticks.
func (s *Scheduler) PhysiologyPeriod() uint64 { return s.physioEvery }

// Classified returns this frame's per-tier agent counts.
func (s *Scheduler) Classified() TierCounts { return s.classified }

// Ticked returns this frame's per-tier tick counts.
func (s *Scheduler) Ticked() TierCounts { return s.ticked }

// Totals returns cumulative ticks per tier.
func (s *Scheduler) Totals() [NumTiers]uint64 { return s.totals }

// Track turns per-agent tick counting on or off. It is a fairness
// diagnostic and costs a map write per tick.
func (s *Scheduler) Track(on bool) {
	if on {
		s.tally = make(map[uint64]int)
	} else {
		s.tally = nil
	}
}

// TickCount returns the tracked tick count for id.
func (s *Scheduler) TickCount(id uint64) int { return s.tally[id] }

// Attach registers d to be drained on shutdown.
func (s *Scheduler) Attach(d Drainer) { s.drainers = append(s.drainers, d) }

// Drain waits for every attached drainer and clears the counters.
func (s *Scheduler) Drain() {
	for _, d := range s.drainers {
		d.Drain()
	}
	s.classified = TierCounts{}
	s.ticked = TierCounts{}
}
