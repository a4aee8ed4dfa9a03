package systems

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/world"
)

// Fidelity selects how much of the sensory vector is computed.
type Fidelity uint8

const (
	// FidelityFull computes every slot.
	FidelityFull Fidelity = iota
	// FidelityReduced limits agent queries to the nearest few neighbours.
	FidelityReduced
	// FidelityMinimal computes self state, time and nearest food only.
	FidelityMinimal
)

// AgentView is the frame-start state of one agent as other agents see it.
// The per-frame table of views is indexed by Entry.Slot.
type AgentView struct {
	ID      uint64
	Species components.Species
	X, Y, Z float32
	VX, VZ  float32
	Heading float32
	Energy  float32
	Health  float32
}

// Subject is the agent whose senses are being built.
type Subject struct {
	ID      uint64
	Slot    int32
	Species components.Species
	X, Y, Z float32
	Heading float32
	Vision  float32 // effective vision range after traits
	Phys    *components.Physiology
	Mem     *components.Memory
}

// Target is one resolved perception answer.
type Target struct {
	Found  bool
	Slot   int32 // agent slot, -1 for food
	ID     uint64
	X, Z   float32
	VX, VZ float32
	DistSq float32
	Kind   world.FoodKind
}

// Percept carries the answers behind the sensory vector so the steering
// kernel consumes exactly what the brain saw.
type Percept struct {
	Food   Target
	Threat Target
	Prey   Target
	Ally   Target

	HasPheromone bool
	PherX        float32 // world-space gradient direction
	PherZ        float32
}

// Perceiver builds sensory vectors against the frame-start snapshot. It
// keeps scratch buffers and is not safe for concurrent use.
type Perceiver struct {
	Index      *HierarchicalIndex
	Agents     []AgentView
	Policies   *PolicyTable
	Food       world.FoodProvider
	Terrain    world.Terrain
	Env        world.Environment
	Pheromones *world.PheromoneGrid
	Frame      uint64

	heightScale  float32
	refDepth     float32
	recentWindow float32
	densityNorm  float32
	reducedK     int

	near []Neighbor
	food []world.FoodItem
}

// NewPerceiver creates a perceiver with normalisers from cfg. The caller
// fills the world references and refreshes Agents and Frame every frame.
func NewPerceiver(cfg *config.Config, policies *PolicyTable) *Perceiver {
	return &Perceiver{
		Policies:     policies,
		heightScale:  float32(cfg.World.HeightScale),
		refDepth:     float32(cfg.World.RefDepth),
		recentWindow: float32(cfg.Perception.RecentWindow),
		densityNorm:  float32(max(cfg.Perception.DensityNorm, 1)),
		reducedK:     max(cfg.Perception.ReducedNeighbors, 1),
		near:         make([]Neighbor, 0, neighborCap),
		food:         make([]world.FoodItem, 0, 32),
	}
}

// Build fills in and out for self. Slots without an answer read distance 1
// and bearing 0.
func (p *Perceiver) Build(self *Subject, fid Fidelity, in *neural.Inputs, out *Percept) {
	in.Reset()
	*out = Percept{}
	out.Food.Slot, out.Threat.Slot, out.Prey.Slot, out.Ally.Slot = -1, -1, -1, -1

	pol := p.Policies[self.Species]
	if pol == nil {
		return
	}
	vision := self.Vision
	if vision <= 0 {
		vision = pol.Vision
	}

	p.nearestFood(self, pol, vision, out)
	p.writeTarget(in, neural.InFoodDist, self, vision, &out.Food)

	if fid != FidelityMinimal {
		k := 1
		if fid == FidelityReduced {
			k = p.reducedK
		}
		if pol.ThreatMask != 0 {
			p.nearestAgent(self, vision, k, &out.Threat, func(v *AgentView) bool { return pol.ThreatMask.Has(v.Species) })
			p.writeTarget(in, neural.InThreatDist, self, vision, &out.Threat)
		}
		if pol.PreyMask != 0 {
			p.nearestAgent(self, vision, k, &out.Prey, func(v *AgentView) bool { return pol.PreyMask.Has(v.Species) })
			p.writeTarget(in, neural.InPreyDist, self, vision, &out.Prey)
		}
		p.nearestAgent(self, vision, k, &out.Ally, func(v *AgentView) bool { return v.Species == self.Species })
		p.writeTarget(in, neural.InAllyDist, self, vision, &out.Ally)
	}

	ph := self.Phys
	if ph != nil {
		in[neural.InEnergy] = clamp01(ph.Energy / max(ph.MaxEnergy, 1e-6))
		in[neural.InHealth] = clamp01(ph.Health / max(ph.MaxHealth, 1e-6))
		in[neural.InAge] = clamp01(ph.Age / max(pol.MaxAge, 1e-6))
		if ph.SinceAttacked < p.recentWindow {
			in[neural.InRecentlyAttacked] = 1
		}
		if ph.SinceAte < p.recentWindow {
			in[neural.InRecentlyAte] = 1
		}
	}

	if p.Env != nil {
		tod := 2 * math.Pi * float64(p.Env.TimeOfDay())
		in[neural.InTimeSin] = float32(math.Sin(tod))
		in[neural.InTimeCos] = float32(math.Cos(tod))
	}

	if fid == FidelityMinimal {
		return
	}

	if p.Terrain != nil {
		h := p.Terrain.Height(self.X, self.Z)
		in[neural.InTerrainHeight] = clampFloat(h/max(p.heightScale, 1e-6), -1, 1)
		depth := p.Terrain.WaterLevel() - h
		in[neural.InWaterDepth] = clampFloat(depth/max(p.refDepth, 1e-6), -1, 1)
	}

	if p.Index != nil {
		n := p.Index.CountInRadius(self.X, self.Z, vision) - 1 // self is indexed
		in[neural.InDensity] = clamp01(float32(max(n, 0)) / p.densityNorm)
	}

	if m := self.Mem; m != nil {
		if m.HasFood {
			in[neural.InMemoryFood] = normalizeAngle(m.LastFoodBearing-self.Heading) / math.Pi
		}
		if m.HasThreat {
			in[neural.InMemoryThreat] = normalizeAngle(m.LastThreatBearing-self.Heading) / math.Pi
		}
		in[neural.InFear] = clamp01(m.Fear)
		in[neural.InCuriosity] = clamp01(m.Curiosity)
		in[neural.InAggression] = clamp01(m.Aggression)
	}

	if pol.Colonial && p.Pheromones != nil {
		gx, gz, ok := p.Pheromones.Gradient(self.X, self.Z, p.Frame)
		if ok && (gx != 0 || gz != 0) {
			out.HasPheromone = true
			out.PherX, out.PherZ = normalize(gx, gz)
			sin, cos := math.Sincos(float64(self.Heading))
			fwd := out.PherX*float32(cos) + out.PherZ*float32(sin)
			side := -out.PherX*float32(sin) + out.PherZ*float32(cos)
			in[neural.InReserved0] = clampFloat(fwd, -1, 1)
			in[neural.InReserved1] = clampFloat(side, -1, 1)
		}
	}
}

// nearestFood picks the closest item across every kind the species eats.
func (p *Perceiver) nearestFood(self *Subject, pol *Policy, vision float32, out *Percept) {
	if p.Food == nil {
		return
	}
	for kind := world.FoodKind(0); kind < world.NumFoodKinds; kind++ {
		if !pol.Food[kind] {
			continue
		}
		p.food = p.Food.GetFoodNear(p.food[:0], self.X, self.Z, vision, kind)
		for i := range p.food {
			it := &p.food[i]
			dx, dz := it.X-self.X, it.Z-self.Z
			d := dx*dx + dz*dz
			if !out.Food.Found || d < out.Food.DistSq {
				out.Food = Target{Found: true, Slot: -1, X: it.X, Z: it.Z, DistSq: d, Kind: it.Kind}
			}
		}
	}
}

// nearestAgent resolves the closest accepted agent. With k > 1 the k
// nearest accepted agents are gathered and the closest one reported,
// which keeps MEDIUM-tier cost bounded by k.
func (p *Perceiver) nearestAgent(self *Subject, vision float32, k int, t *Target, accept func(*AgentView) bool) {
	if p.Index == nil {
		return
	}
	filter := func(e *Entry) bool {
		if int(e.Slot) >= len(p.Agents) || e.Slot < 0 {
			return false
		}
		return accept(&p.Agents[e.Slot])
	}
	p.near = p.Index.QueryKNearest(p.near[:0], self.X, self.Z, k, vision, self.ID, filter)
	if len(p.near) == 0 {
		return
	}
	n := &p.near[0]
	v := &p.Agents[n.Slot]
	*t = Target{Found: true, Slot: n.Slot, ID: v.ID, X: v.X, Z: v.Z, VX: v.VX, VZ: v.VZ, DistSq: n.DistSq}
}

// writeTarget fills the distance and bearing pair starting at slot.
func (p *Perceiver) writeTarget(in *neural.Inputs, slot int, self *Subject, vision float32, t *Target) {
	if !t.Found {
		return
	}
	d := float32(math.Sqrt(float64(t.DistSq)))
	in[slot] = clamp01(d / vision)
	if d > 1e-6 {
		in[slot+1] = bearing(self.X, self.Z, self.Heading, t.X, t.Z) / math.Pi
	}
}
