package systems

import (
	"math"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/world"
)

// IntegratorParams holds the habitat dynamics constants.
type IntegratorParams struct {
	Bounds       world.Bounds
	Gravity      float32
	WaterDrag    float32
	BuoyancyGain float32
	FlapImpulse  float32
	GlideFactor  float32
	AirDrag      float32
}

// NewIntegratorParams converts the integrator section of cfg.
func NewIntegratorParams(cfg *config.Config, b world.Bounds) IntegratorParams {
	c := cfg.Integrator
	return IntegratorParams{
		Bounds:       b,
		Gravity:      float32(cfg.Physics.Gravity),
		WaterDrag:    float32(c.WaterDrag),
		BuoyancyGain: float32(c.BuoyancyGain),
		FlapImpulse:  float32(c.FlapImpulse),
		GlideFactor:  float32(c.GlideCostFactor),
		AirDrag:      float32(c.AirDrag),
	}
}

// Kinematics is the integrated state of one agent.
type Kinematics struct {
	Pos components.Position
	Vel components.Velocity
	Rot components.Rotation
}

// Motion is the result of one integration step.
type Motion struct {
	Kinematics
	Distance  float32
	MoveCost  float32 // energy spent moving this step
	Blocked   bool    // the move was rejected by the habitat
	Sanitised bool    // NaN or infinite state was repaired
}

// Integrate advances one agent by dt. vx and vz are the commanded
// horizontal velocity; vertical motion is owned by the habitat policy.
// t is simulation time, used for flap timing.
func Integrate(k Kinematics, vx, vz float32, pol *Policy, terr world.Terrain, p *IntegratorParams, dt, t float32) Motion {
	m := Motion{Kinematics: k}
	if pol == nil {
		return m
	}
	if !finite(vx) || !finite(vz) || !finite(k.Vel.Y) || !finitePos(k.Pos) {
		vx, vz = 0, 0
		k.Vel = components.Velocity{}
		if !finitePos(k.Pos) {
			cx := (p.Bounds.MinX + p.Bounds.MaxX) * 0.5
			cz := (p.Bounds.MinZ + p.Bounds.MaxZ) * 0.5
			k.Pos = components.Position{X: cx, Y: groundHeight(terr, cx, cz), Z: cz}
		}
		m.Sanitised = true
	}

	vel := components.Velocity{X: vx, Y: k.Vel.Y, Z: vz}
	pos := k.Pos
	nx := pos.X + vel.X*dt
	nz := pos.Z + vel.Z*dt

	// Bounds: clamp and kill the outward component.
	if nx < p.Bounds.MinX || nx > p.Bounds.MaxX {
		nx = clampFloat(nx, p.Bounds.MinX, p.Bounds.MaxX)
		vel.X = 0
	}
	if nz < p.Bounds.MinZ || nz > p.Bounds.MaxZ {
		nz = clampFloat(nz, p.Bounds.MinZ, p.Bounds.MaxZ)
		vel.Z = 0
	}

	switch pol.Habitat {
	case components.HabitatAquatic:
		m.Blocked = integrateAquatic(&pos, &vel, nx, nz, pol, terr, p, dt)
	case components.HabitatAerial:
		integrateAerial(&pos, &vel, nx, nz, pol, terr, p, dt, t)
	default:
		m.Blocked = integrateTerrestrial(&pos, &vel, nx, nz, terr)
	}

	dx, dy, dz := pos.X-k.Pos.X, pos.Y-k.Pos.Y, pos.Z-k.Pos.Z
	m.Distance = float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))

	speed := length(vel.X, vel.Z)
	if pol.MaxSpeed > 0 {
		r := speed / pol.MaxSpeed
		cost := pol.MoveCost * r * r * dt
		if pol.Habitat == components.HabitatAerial && vel.Y < 0 {
			cost *= p.GlideFactor
		}
		m.MoveCost = cost
	}

	m.Rot = turnToward(k.Rot, vel, pol.MaxTurnRate, dt)
	if pol.Habitat != components.HabitatTerrestrial {
		m.Rot.Pitch = float32(math.Atan2(float64(vel.Y), float64(max(speed, 1e-3))))
	} else {
		m.Rot.Pitch = 0
	}
	m.Pos, m.Vel = pos, vel
	return m
}

// integrateTerrestrial keeps the agent on the ground and refuses moves
// into water.
func integrateTerrestrial(pos *components.Position, vel *components.Velocity, nx, nz float32, terr world.Terrain) bool {
	blocked := false
	if terr != nil && terr.IsWater(nx, nz) && !terr.IsWater(pos.X, pos.Z) {
		nx, nz = pos.X, pos.Z
		vel.X, vel.Z = 0, 0
		blocked = true
	}
	pos.X, pos.Z = nx, nz
	pos.Y = groundHeight(terr, nx, nz)
	vel.Y = 0
	return blocked
}

// integrateAquatic applies buoyancy toward the preferred depth and water
// drag, keeps the agent between seafloor and surface, and refuses moves
// onto land.
func integrateAquatic(pos *components.Position, vel *components.Velocity, nx, nz float32, pol *Policy, terr world.Terrain, p *IntegratorParams, dt float32) bool {
	blocked := false
	if terr != nil && !terr.IsWater(nx, nz) && terr.IsWater(pos.X, pos.Z) {
		nx, nz = pos.X, pos.Z
		vel.X, vel.Z = 0, 0
		blocked = true
	}
	surface := waterSurface(terr)
	depth := surface - pos.Y
	vel.Y -= p.BuoyancyGain * (pol.PreferredDepth - depth) * dt

	drag := 1 - p.WaterDrag*dt
	vel.X *= drag
	vel.Y *= drag
	vel.Z *= drag

	pos.X, pos.Z = nx, nz
	pos.Y += vel.Y * dt
	floor := groundHeight(terr, nx, nz)
	if pos.Y < floor {
		pos.Y = floor
		vel.Y = max(vel.Y, 0)
	}
	if pos.Y > surface {
		pos.Y = surface
		vel.Y = min(vel.Y, 0)
	}
	return blocked
}

// integrateAerial integrates gravity and flaps. A flap fires on each beat
// of the species flap frequency while the agent is below cruise altitude.
func integrateAerial(pos *components.Position, vel *components.Velocity, nx, nz float32, pol *Policy, terr world.Terrain, p *IntegratorParams, dt, t float32) {
	ground := groundHeight(terr, nx, nz)
	vel.Y -= p.Gravity * dt
	if pol.FlapFrequency > 0 {
		before := math.Floor(float64((t - dt) * pol.FlapFrequency))
		after := math.Floor(float64(t * pol.FlapFrequency))
		if after > before && pos.Y-ground < pol.CruiseAltitude {
			vel.Y += p.FlapImpulse
		}
	}
	vel.Y *= 1 - p.AirDrag*dt

	pos.X, pos.Z = nx, nz
	pos.Y += vel.Y * dt
	if pos.Y < ground+minAirGap {
		pos.Y = ground + minAirGap
		vel.Y = max(vel.Y, 0)
	}
}

const minAirGap = 0.5

// turnToward rotates the heading toward the XZ velocity at no more than
// maxRate radians per second.
func turnToward(r components.Rotation, vel components.Velocity, maxRate, dt float32) components.Rotation {
	r.AngVel = 0
	if vel.X*vel.X+vel.Z*vel.Z < 1e-4 || dt <= 0 {
		return r
	}
	target := float32(math.Atan2(float64(vel.Z), float64(vel.X)))
	delta := normalizeAngle(target - r.Heading)
	if limit := maxRate * dt; maxRate > 0 {
		delta = clampFloat(delta, -limit, limit)
	}
	r.Heading = normalizeAngle(r.Heading + delta)
	r.AngVel = delta / dt
	return r
}

func groundHeight(terr world.Terrain, x, z float32) float32 {
	if terr == nil {
		return 0
	}
	return terr.Height(x, z)
}

func waterSurface(terr world.Terrain) float32 {
	if terr == nil {
		return 0
	}
	return terr.WaterLevel()
}

func finitePos(p components.Position) bool {
	return finite(p.X) && finite(p.Y) && finite(p.Z)
}
