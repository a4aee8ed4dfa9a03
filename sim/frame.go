package sim

import (
	"errors"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/compute"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/telemetry"
)

// agentSlot is one agent's row in the per-frame tables. The slot index is
// shared by views, entries and the kernel state.
type agentSlot struct {
	e       ecs.Entity
	id      uint64
	species components.Species
	tier    lod.Tier
	due     bool // AI runs this frame
	steered bool // a kernel result was applied this frame
	bred    bool
	vx, vz  float32
	wander  float32
}

// Step advances the simulation by one frame.
func (s *Simulation) Step() {
	if s.closed {
		return
	}
	dt := s.cfg.Derived.DT32
	s.perf.StartTick()

	s.processCommands()

	s.perf.StartPhase(telemetry.PhaseIndex)
	s.buildIndex()

	s.perf.StartPhase(telemetry.PhaseClassify)
	s.classify()

	s.perf.StartPhase(telemetry.PhaseDispatch)
	s.dispatch(dt)

	s.perf.StartPhase(telemetry.PhaseNear)
	s.runNear(dt)

	s.perf.StartPhase(telemetry.PhaseCollect)
	s.collect()

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	s.integrate(dt)

	s.perf.StartPhase(telemetry.PhaseLifecycle)
	s.interact(dt)
	s.lifecycle(dt)

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.publishSnapshot()
	s.finishFrame()
	s.frame++
}

// Run steps n frames.
func (s *Simulation) Run(n int) {
	for range n {
		s.Step()
	}
}

// buildIndex snapshots frame-start state into the per-frame tables and
// rebuilds the spatial index over it.
func (s *Simulation) buildIndex() {
	s.slots = s.slots[:0]
	s.entries = s.entries[:0]
	s.views = s.views[:0]
	s.state.Reset()
	clear(s.slotOf)
	s.census = [components.NumSpecies]int{}

	q := s.filter.Query()
	for q.Next() {
		pos, vel, rot, org, phys, _, _, _ := q.Get()
		s.census[org.Species]++
		if !phys.Alive {
			continue
		}
		v := systems.AgentView{
			ID:      org.ID,
			Species: org.Species,
			X:       pos.X, Y: pos.Y, Z: pos.Z,
			VX:      vel.X, VZ: vel.Z,
			Heading: rot.Heading,
			Energy:  phys.Energy,
			Health:  phys.Health,
		}
		slot := s.state.Append(&v)
		s.views = append(s.views, v)
		s.entries = append(s.entries, systems.Entry{ID: org.ID, Slot: slot, X: pos.X, Y: pos.Y, Z: pos.Z})
		s.slots = append(s.slots, agentSlot{e: q.Entity(), id: org.ID, species: org.Species})
		s.slotOf[org.ID] = slot
	}

	s.index.SetFineCellSize(s.cellSize)
	s.index.Rebuild(s.entries)
	s.index.Fine.ExportCells(&s.state.Cells)
	s.carrion.rebuild(s.corpseFilter)

	s.perceiver.Agents = s.views
	s.perceiver.Frame = s.frame
	s.steer.Frame = s.frame
}

func (s *Simulation) classify() {
	s.sched.BeginFrame(s.frame)
	for i := range s.slots {
		sl := &s.slots[i]
		v := &s.views[i]
		sl.tier = s.sched.Classify(v.X, v.Y, v.Z)
		sl.due = s.sched.Due(sl.tier, sl.id)
	}
}

// think perceives and runs the brain of the agent in slot i, returning its
// kernel input. dt is the time the memory update covers.
func (s *Simulation) think(i int, fid systems.Fidelity, neighborCap int, dt float32) systems.SteerInput {
	sl := &s.slots[i]
	pos, _, rot, org, phys, _, mem, traits := s.agents.Get(sl.e)
	pol := s.pols[org.Species]
	vision := pol.Vision * traits.Express(components.TraitVision)

	subj := systems.Subject{
		ID:      org.ID,
		Slot:    int32(i),
		Species: org.Species,
		X:       pos.X, Y: pos.Y, Z: pos.Z,
		Heading: rot.Heading,
		Vision:  vision,
		Phys:    phys,
		Mem:     mem,
	}
	var pc systems.Percept
	s.perceiver.Build(&subj, fid, &s.inputs, &pc)
	systems.UpdateMemory(mem, &subj, &pc, phys, s.mods, dt)

	in := systems.SteerInput{
		Slot:        int32(i),
		Species:     org.Species,
		Heading:     rot.Heading,
		WanderPhase: rot.WanderPhase,
		MaxSpeed:    pol.MaxSpeed * traits.Express(components.TraitSpeed),
		Vision:      vision,
		NeighborCap: int32(neighborCap),
		Fear:        mem.Fear,
		Aggression:  mem.Aggression,
		Percept:     pc,
	}
	if b := s.brains[sl.id]; b != nil {
		in.HasBrain = true
		in.Motor = b.Think(&s.inputs)
	}
	return in
}

// dispatch packs the due MEDIUM and FAR agents into this frame's batch and
// submits it.
func (s *Simulation) dispatch(dt float32) {
	buf := s.pipeline.Begin(s.frame)
	copyKernelState(&buf.State, &s.state)
	buf.Params = s.steer

	th := s.sched.Thresholds()
	reduced := s.cfg.Perception.ReducedNeighbors
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.due {
			continue
		}
		var fid systems.Fidelity
		var neighbors int
		switch sl.tier {
		case lod.TierMedium:
			fid, neighbors = systems.FidelityReduced, reduced
		case lod.TierFar:
			fid, neighbors = systems.FidelityMinimal, 1
		default:
			continue
		}
		in := s.think(i, fid, neighbors, dt*float32(th.Cadence(sl.tier)))
		buf.AddJob(sl.e, in)
	}

	res, err := s.pipeline.Submit(buf)
	if err != nil {
		s.diagnose("dispatch_failed", 0, "compute dispatch failed, batch evaluated on cpu", "error", err)
		s.stepDown("compute dispatch failed")
	}
	if res != nil {
		s.applyResults(res)
	}
}

// runNear steers every NEAR agent on the calling goroutine at full
// fidelity.
func (s *Simulation) runNear(dt float32) {
	neighbors := s.cfg.Physics.MaxNeighbors
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.tier != lod.TierNear || !sl.due {
			continue
		}
		in := s.think(i, systems.FidelityFull, neighbors, dt)
		out := systems.Steer(&s.state, s.pols, &s.steer, &in)
		sl.steered = true
		sl.vx, sl.vz, sl.wander = out.VX, out.VZ, out.WanderPhase
	}
}

// collect waits on last frame's fence and applies its results.
func (s *Simulation) collect() {
	res, err := s.pipeline.Collect()
	if errors.Is(err, compute.ErrFenceTimeout) {
		s.diagnose("fence_timeout", 0, "compute fence timed out, batch evaluated on cpu", "error", err)
		s.stepDown("compute fence timeout")
	}
	if res != nil {
		s.applyResults(res)
	}
}

// applyResults copies kernel outputs onto this frame's slots. Results are
// matched by agent id because a batch may come from the previous frame;
// agents that died since, or were already steered this frame, are skipped.
func (s *Simulation) applyResults(b *compute.AgentBuffer) {
	for j := range b.Results {
		out := &b.Results[j]
		if !s.world.Alive(b.Entities[j]) || out.Slot < 0 || int(out.Slot) >= len(b.State.ID) {
			continue
		}
		slot, ok := s.slotOf[b.State.ID[out.Slot]]
		if !ok {
			continue
		}
		sl := &s.slots[slot]
		if sl.steered {
			continue
		}
		sl.steered = true
		sl.vx, sl.vz, sl.wander = out.VX, out.VZ, out.WanderPhase
	}
}

func (s *Simulation) stepDown(reason string) {
	if ch, ok := s.auto.StepDown(reason); ok {
		s.onLevelChange(ch)
	}
}

// integrate moves every agent and runs its physiology. Reads come from the
// frame-start views; writes go to the components.
func (s *Simulation) integrate(dt float32) {
	t := float32(s.clock.Time())
	regen := float32(s.cfg.Lifecycle.HealthRegen)
	penalty := float32(s.cfg.Integrator.NaNPenalty)
	s.culled = s.culled[:0]

	for i := range s.slots {
		sl := &s.slots[i]
		pos, vel, rot, org, phys, lin, _, traits := s.agents.Get(sl.e)
		org.Tier = uint8(sl.tier)
		if !phys.Alive {
			continue
		}
		if sl.tier == lod.TierCulled {
			s.culled = append(s.culled, int32(i))
			continue
		}
		pol := s.pols[org.Species]
		vx, vz := vel.X, vel.Z
		if sl.steered {
			vx, vz = sl.vx, sl.vz
			rot.WanderPhase = sl.wander
		}
		m := systems.Integrate(systems.Kinematics{Pos: *pos, Vel: *vel, Rot: *rot}, vx, vz, pol, s.terrain, &s.integ, dt, t)
		*pos, *vel, *rot = m.Pos, m.Vel, m.Rot
		phys.Distance += m.Distance
		if m.Sanitised {
			phys.Energy *= penalty
			s.diagnose("sanitised", org.ID, "non-finite agent state repaired", "species", org.Species.String())
		}
		systems.UpdateEnergy(phys, pol, efficiency(traits, lin), m.MoveCost, regen, dt)
		s.lifetime.UpdateEnergy(org.ID, phys.Energy)
	}
	s.advanceCulled(dt)
}

// advanceCulled dead-reckons CULLED agents on flat arrays and ticks their
// physiology at the culled rate.
func (s *Simulation) advanceCulled(dt float32) {
	if len(s.culled) == 0 {
		return
	}
	n := len(s.culled)
	s.flatPos = resizeFloats(s.flatPos, 2*n)
	s.flatVel = resizeFloats(s.flatVel, 2*n)
	for k, i := range s.culled {
		v := &s.views[i]
		s.flatPos[2*k], s.flatPos[2*k+1] = v.X, v.Z
		s.flatVel[2*k], s.flatVel[2*k+1] = v.VX, v.VZ
	}
	compute.Advance(s.flatPos, s.flatVel, dt)

	period := s.sched.PhysiologyPeriod()
	pdt := dt * float32(period)
	regen := float32(s.cfg.Lifecycle.HealthRegen)
	for k, i := range s.culled {
		sl := &s.slots[i]
		pos, vel, _, org, phys, lin, _, traits := s.agents.Get(sl.e)
		pol := s.pols[org.Species]

		nx, nz := s.flatPos[2*k], s.flatPos[2*k+1]
		cx, cz := s.bounds.Clamp(nx, nz)
		if cx != nx {
			vel.X = 0
		}
		if cz != nz {
			vel.Z = 0
		}
		if !finite32(cx) || !finite32(cz) || !habitatAllows(pol, s.terrain, cx, cz) {
			cx, cz = pos.X, pos.Z
			vel.X, vel.Z = 0, 0
		}
		moved := length2(cx-pos.X, cz-pos.Z)
		pos.X, pos.Z = cx, cz
		pos.Y = s.habitatY(pol, cx, cz)
		phys.Distance += moved

		if !s.sched.PhysiologyDue(org.ID) {
			continue
		}
		var moveCost float32
		if pol.MaxSpeed > 0 {
			r := length2(vel.X, vel.Z) / pol.MaxSpeed
			moveCost = pol.MoveCost * r * r * pdt
		}
		systems.UpdateEnergy(phys, pol, efficiency(traits, lin), moveCost, regen, pdt)
		s.lifetime.UpdateEnergy(org.ID, phys.Energy)
	}
}

// efficiency is the metabolic efficiency of an agent: its metabolism trait
// reduced by genetic load.
func efficiency(t *components.Traits, lin *components.Lineage) float32 {
	return t.Express(components.TraitMetabolism) * (1 - min(max(lin.GeneticLoad, 0), 0.9))
}

// motorOf returns what the agent's brain last decided, or the fallback
// motor for brainless agents.
func (s *Simulation) motorOf(id uint64, mem *components.Memory) neural.Motor {
	if b := s.brains[id]; b != nil {
		return b.LastMotor()
	}
	var m neural.Motor
	m[neural.MotorSpeed] = 0.5
	m[neural.MotorEat] = 1
	m[neural.MotorSocial] = 1
	if s.steer.Legacy {
		m[neural.MotorFlee] = min(max(mem.Fear, 0), 1)
		m[neural.MotorAttack] = min(max(mem.Aggression, 0), 1)
	}
	return m
}

func copyKernelState(dst, src *systems.KernelState) {
	dst.ID = append(dst.ID[:0], src.ID...)
	dst.Species = append(dst.Species[:0], src.Species...)
	dst.X = append(dst.X[:0], src.X...)
	dst.Z = append(dst.Z[:0], src.Z...)
	dst.VX = append(dst.VX[:0], src.VX...)
	dst.VZ = append(dst.VZ[:0], src.VZ...)
	c := &dst.Cells
	c.MinX, c.MinZ = src.Cells.MinX, src.Cells.MinZ
	c.CellSize = src.Cells.CellSize
	c.Cols, c.Rows = src.Cells.Cols, src.Cells.Rows
	c.Start = append(c.Start[:0], src.Cells.Start...)
	c.Count = append(c.Count[:0], src.Cells.Count...)
	c.Slots = append(c.Slots[:0], src.Cells.Slots...)
}

func resizeFloats(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}
