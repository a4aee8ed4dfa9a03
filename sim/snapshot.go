package sim

import (
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/lod"
	"github.com/pthm-cable/forge/neural"
)

// AgentSnapshot is the render view of one agent.
type AgentSnapshot struct {
	ID         uint64
	Species    components.Species
	X, Y, Z    float32
	Heading    float32
	Pitch      float32
	Speed      float32
	Energy     float32 // fraction of max
	Health     float32 // fraction of max
	Tier       lod.Tier
	Generation uint32
	Clade      int
	Hybrid     bool
}

// CorpseSnapshot is the render view of one corpse.
type CorpseSnapshot struct {
	X, Y, Z float32
	Biomass float32
	Source  components.Species
}

// Snapshot is an immutable view of one committed frame. A new snapshot is
// published every frame, so readers on other goroutines never see it
// change.
type Snapshot struct {
	Frame         uint64
	SimTime       float64
	TimeOfDay     float32
	Level         int
	LevelName     string
	RenderLODBias float32
	Agents        []AgentSnapshot
	Corpses       []CorpseSnapshot
}

// Snapshot returns the last committed frame. It is safe to call from any
// goroutine.
func (s *Simulation) Snapshot() *Snapshot { return s.snapshot.Load() }

func (s *Simulation) publishSnapshot() {
	level := s.auto.Current()
	snap := &Snapshot{
		Frame:         s.frame,
		SimTime:       s.clock.Time(),
		TimeOfDay:     s.clock.TimeOfDay(),
		Level:         s.auto.Level(),
		LevelName:     level.Name,
		RenderLODBias: level.RenderLODBias,
		Agents:        make([]AgentSnapshot, 0, len(s.byID)),
		Corpses:       make([]CorpseSnapshot, 0, s.carrion.Len()),
	}
	q := s.filter.Query()
	for q.Next() {
		pos, vel, rot, org, phys, lin, _, _ := q.Get()
		a := AgentSnapshot{
			ID:         org.ID,
			Species:    org.Species,
			X:          pos.X, Y: pos.Y, Z: pos.Z,
			Heading:    rot.Heading,
			Pitch:      rot.Pitch,
			Speed:      length2(vel.X, vel.Z),
			Tier:       lod.Tier(org.Tier),
			Generation: lin.Generation,
			Clade:      lin.Clade,
			Hybrid:     lin.Hybrid,
		}
		if phys.MaxEnergy > 0 {
			a.Energy = phys.Energy / phys.MaxEnergy
		}
		if phys.MaxHealth > 0 {
			a.Health = phys.Health / phys.MaxHealth
		}
		snap.Agents = append(snap.Agents, a)
	}
	cq := s.corpseFilter.Query()
	for cq.Next() {
		pos, c := cq.Get()
		snap.Corpses = append(snap.Corpses, CorpseSnapshot{X: pos.X, Y: pos.Y, Z: pos.Z, Biomass: c.Biomass, Source: c.Source})
	}
	s.snapshot.Store(snap)
}

// AgentInfo is the full state of one agent, for inspection.
type AgentInfo struct {
	ID       uint64
	Species  components.Species
	Pos      components.Position
	Vel      components.Velocity
	Rot      components.Rotation
	Org      components.Organism
	Phys     components.Physiology
	Lineage  components.Lineage
	Memory   components.Memory
	Traits   components.Traits
	HasBrain bool
	Motor    neural.Motor
	Nodes    int
	Links    int
}

// Agent returns the state of a living agent.
func (s *Simulation) Agent(id uint64) (AgentInfo, bool) {
	e, ok := s.byID[id]
	if !ok || !s.world.Alive(e) {
		return AgentInfo{}, false
	}
	pos, vel, rot, org, phys, lin, mem, traits := s.agents.Get(e)
	info := AgentInfo{
		ID:      id,
		Species: org.Species,
		Pos:     *pos,
		Vel:     *vel,
		Rot:     *rot,
		Org:     *org,
		Phys:    *phys,
		Lineage: *lin,
		Memory:  *mem,
		Traits:  *traits,
	}
	if b := s.brains[id]; b != nil {
		info.HasBrain = true
		info.Motor = b.LastMotor()
		info.Nodes = b.NodeCount()
		info.Links = b.LinkCount()
	}
	return info, true
}

// Brain returns the brain of a living agent, or nil.
func (s *Simulation) Brain(id uint64) *neural.Brain { return s.brains[id] }

// AgentIDs returns every living agent id in ascending order.
func (s *Simulation) AgentIDs() []uint64 { return s.sortedIDs() }

// SetEnergy overwrites an agent's energy, clamped to its maximum. It is a
// scripting hook for tools and tests.
func (s *Simulation) SetEnergy(id uint64, energy float32) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	_, _, _, _, phys, _, _, _ := s.agents.Get(e)
	phys.Energy = min(max(energy, 0), phys.MaxEnergy)
	return true
}
