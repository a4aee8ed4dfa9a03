package systems

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/world"
)

// MaxFlockMates bounds the neighbour list the kernel keeps per agent.
const MaxFlockMates = 64

// SteerParams are the uniforms shared by one dispatch.
type SteerParams struct {
	DT             float32
	Frame          uint64
	Bounds         world.Bounds
	BoundaryMargin float32
	Wander         WanderParams
	ArriveRadius   float32
	PursuitLead    float32
	MigrationX     float32 // unit direction of the seasonal migration
	MigrationZ     float32
	Legacy         bool
}

// NewSteerParams fills the static uniforms from cfg.
func NewSteerParams(cfg *config.Config, b world.Bounds) SteerParams {
	s := cfg.Steering
	return SteerParams{
		DT:             cfg.Derived.DT32,
		Bounds:         b,
		BoundaryMargin: float32(s.BoundaryMargin),
		Wander: WanderParams{
			Radius:   float32(s.WanderRadius),
			Distance: float32(s.WanderDistance),
			Jitter:   float32(s.WanderJitter),
		},
		ArriveRadius: float32(s.ArriveRadius),
		PursuitLead:  float32(s.PursuitLead),
		Legacy:       s.LegacyModifiers,
	}
}

// SetSeason points the migration direction around the compass once per
// season cycle.
func (p *SteerParams) SetSeason(season float32) {
	s, c := math.Sincos(2 * math.Pi * float64(season))
	p.MigrationX, p.MigrationZ = float32(c), float32(s)
}

// KernelState is the read-only frame-start state in structure-of-arrays
// form. Cells is the fine grid exported over the same slots.
type KernelState struct {
	ID      []uint64
	Species []components.Species
	X, Z    []float32
	VX, VZ  []float32
	Cells   CellTable
}

// Len returns the number of slots.
func (s *KernelState) Len() int { return len(s.ID) }

// Reset truncates every column.
func (s *KernelState) Reset() {
	s.ID = s.ID[:0]
	s.Species = s.Species[:0]
	s.X, s.Z = s.X[:0], s.Z[:0]
	s.VX, s.VZ = s.VX[:0], s.VZ[:0]
}

// Append adds one slot and returns its index.
func (s *KernelState) Append(v *AgentView) int32 {
	s.ID = append(s.ID, v.ID)
	s.Species = append(s.Species, v.Species)
	s.X = append(s.X, v.X)
	s.Z = append(s.Z, v.Z)
	s.VX = append(s.VX, v.VX)
	s.VZ = append(s.VZ, v.VZ)
	return int32(len(s.ID) - 1)
}

// SteerInput is one agent's kernel input.
type SteerInput struct {
	Slot        int32
	Species     components.Species
	Heading     float32
	WanderPhase float32
	MaxSpeed    float32 // after traits
	Vision      float32 // after traits
	NeighborCap int32
	HasBrain    bool
	Motor       neural.Motor
	Fear        float32 // read only by the legacy path
	Aggression  float32
	Percept     Percept
}

// SteerOutput is one agent's kernel result.
type SteerOutput struct {
	Slot        int32
	VX, VZ      float32
	WanderPhase float32
}

// Steer is the behaviour kernel. It is a pure function of its inputs so
// the CPU path and the compute device produce identical results.
func Steer(st *KernelState, pols *PolicyTable, p *SteerParams, in *SteerInput) SteerOutput {
	out := SteerOutput{Slot: in.Slot, WanderPhase: in.WanderPhase}
	pol := pols[in.Species]
	i := in.Slot
	if pol == nil || i < 0 || int(i) >= st.Len() {
		return out
	}
	out.VX, out.VZ = st.VX[i], st.VZ[i]

	maxSpeed := in.MaxSpeed
	if maxSpeed <= 0 {
		maxSpeed = pol.MaxSpeed
	}
	vision := in.Vision
	if vision <= 0 {
		vision = pol.Vision
	}
	b := Body{
		X: st.X[i], Z: st.Z[i],
		VX: st.VX[i], VZ: st.VZ[i],
		Mass:     pol.Mass,
		MaxSpeed: maxSpeed,
		MaxForce: pol.MaxForce,
	}

	m := in.Motor
	if !in.HasBrain {
		m = fallbackMotor(in, p.Legacy)
	}

	// Brain term.
	dh := in.Heading + m.TurnAngle()
	hs, hc := math.Sincos(float64(dh))
	desiredX := float32(hc) * m.Speed() * maxSpeed
	desiredZ := float32(hs) * m.Speed() * maxSpeed

	var sx, sz float32
	add := func(w, fx, fz float32) {
		sx += w * fx
		sz += w * fz
	}
	pc := &in.Percept
	w := &pol.W

	if pol.Family&FamilyFlock != 0 {
		var buf [MaxFlockMates]FlockMate
		mates := gatherMates(st, i, vision, int(in.NeighborCap), buf[:0])
		social := m.Social()
		fx, fz := Flock(&b, mates, pol.Separation, vision, p.ArriveRadius, FlockWeights{
			Separation: w.Separation,
			Alignment:  w.Alignment * social,
			Cohesion:   w.Cohesion * social,
		})
		add(1, fx, fz)
	}
	if pol.Family&FamilyPredatorPrey != 0 {
		if pc.Prey.Found && w.Pursue != 0 {
			fx, fz := Pursue(&b, pc.Prey.X, pc.Prey.Z, pc.Prey.VX, pc.Prey.VZ, p.PursuitLead)
			add(w.Pursue*m.Attack(), fx, fz)
		}
		if pc.Threat.Found && w.Evade != 0 {
			fx, fz := Evade(&b, pc.Threat.X, pc.Threat.Z, pc.Threat.VX, pc.Threat.VZ, p.PursuitLead)
			add(w.Evade*m.Flee(), fx, fz)
		}
	}
	if pol.Family&FamilyForage != 0 && w.Food != 0 {
		switch {
		case pc.Food.Found:
			fx, fz := Arrive(&b, pc.Food.X, pc.Food.Z, p.ArriveRadius)
			add(w.Food*m.Eat(), fx, fz)
		case pc.HasPheromone:
			fx, fz := steerToward(&b, pc.PherX*maxSpeed, pc.PherZ*maxSpeed)
			add(0.5*w.Food*m.Eat(), fx, fz)
		}
	}
	if pol.Family&FamilyMigrate != 0 && w.Migration != 0 {
		fx, fz := steerToward(&b, p.MigrationX*maxSpeed, p.MigrationZ*maxSpeed)
		add(w.Migration, fx, fz)
	}
	if w.Wander != 0 {
		if wt := 1 - m.Rest(); wt > 0 {
			noise := WanderNoise(st.ID[i], p.Frame)
			fx, fz := Wander(&b, in.Heading, &out.WanderPhase, noise, p.Wander, p.DT)
			add(w.Wander*wt, fx, fz)
		}
	}
	if w.Boundary != 0 {
		fx, fz := AvoidBoundary(&b, p.Bounds, p.BoundaryMargin)
		add(w.Boundary, fx, fz)
	}

	fx := (desiredX-b.VX)*b.Mass + sx
	fz := (desiredZ-b.VZ)*b.Mass + sz
	fx, fz = clampNorm(fx, fz, b.MaxForce)

	vx := b.VX + fx/b.Mass*p.DT
	vz := b.VZ + fz/b.Mass*p.DT
	boost := 1 + pol.SprintBoost*max(m.Flee(), m.Attack())
	vx, vz = clampNorm(vx, vz, maxSpeed*boost)

	if !finite(vx) || !finite(vz) {
		vx, vz = 0, 0
	}
	out.VX, out.VZ = vx, vz
	return out
}

// fallbackMotor stands in for a missing brain. The fear and aggression
// multipliers apply only when legacy is set.
func fallbackMotor(in *SteerInput, legacy bool) neural.Motor {
	var m neural.Motor
	m[neural.MotorSpeed] = 0.5
	m[neural.MotorEat] = 1
	m[neural.MotorSocial] = 1
	if legacy {
		m[neural.MotorFlee] = clamp01(in.Fear)
		m[neural.MotorAttack] = clamp01(in.Aggression)
		m[neural.MotorSocial] = 1 - clamp01(in.Fear)
	}
	return m
}

// gatherMates collects up to limit nearest same-species agents within
// radius, walking the exported cell table. Ties keep scan order, so the
// result depends only on the table.
func gatherMates(st *KernelState, self int32, radius float32, limit int, dst []FlockMate) []FlockMate {
	limit = min(max(limit, 0), MaxFlockMates)
	t := &st.Cells
	if limit == 0 || t.Cols == 0 || len(t.Start) == 0 {
		return dst
	}
	x, z := st.X[self], st.Z[self]
	sp := st.Species[self]
	c0, r0 := t.Cell(x-radius, z-radius)
	c1, r1 := t.Cell(x+radius, z+radius)
	rSq := radius * radius
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			cell := row*t.Cols + col
			start, n := t.Start[cell], t.Count[cell]
			for _, j := range t.Slots[start : start+n] {
				if j == self || st.Species[j] != sp {
					continue
				}
				dx, dz := st.X[j]-x, st.Z[j]-z
				d := dx*dx + dz*dz
				if d > rSq {
					continue
				}
				dst = insertMate(dst, limit, FlockMate{DX: dx, DZ: dz, VX: st.VX[j], VZ: st.VZ[j], DistSq: d})
			}
		}
	}
	return dst
}

// insertMate keeps dst sorted by distance and at most limit long.
func insertMate(dst []FlockMate, limit int, m FlockMate) []FlockMate {
	if len(dst) == limit && m.DistSq >= dst[len(dst)-1].DistSq {
		return dst
	}
	pos := len(dst)
	for pos > 0 && dst[pos-1].DistSq > m.DistSq {
		pos--
	}
	if len(dst) < limit {
		dst = append(dst, FlockMate{})
	}
	copy(dst[pos+1:], dst[pos:len(dst)-1])
	dst[pos] = m
	return dst
}

// WanderNoise is a deterministic value in [-1, 1] for an agent and frame.
func WanderNoise(id, frame uint64) float32 {
	h := id*0x9E3779B97F4A7C15 ^ frame*0xC2B2AE3D27D4EB4F
	h ^= h >> 30
	h *= 0xBF58476D1CE4E5B9
	h ^= h >> 27
	h *= 0x94D049BB133111EB
	h ^= h >> 31
	return float32(h>>40)/float32(1<<24)*2 - 1
}
