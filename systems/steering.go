package systems

import (
	"math"

	"github.com/pthm-cable/forge/world"
)

// Body is the kinematic state a steering primitive acts on.
type Body struct {
	X, Z     float32
	VX, VZ   float32
	Mass     float32
	MaxSpeed float32
	MaxForce float32
}

// FlockMate is a neighbour relative to the steering agent.
type FlockMate struct {
	DX, DZ float32 // neighbour position minus self
	VX, VZ float32
	DistSq float32
}

// steerToward converts a desired velocity into a force clamped to maxForce.
func steerToward(b *Body, dvx, dvz float32) (float32, float32) {
	return clampNorm((dvx-b.VX)*b.Mass, (dvz-b.VZ)*b.Mass, b.MaxForce)
}

// Seek steers at full speed toward (tx, tz).
func Seek(b *Body, tx, tz float32) (float32, float32) {
	dx, dz := normalize(tx-b.X, tz-b.Z)
	return steerToward(b, dx*b.MaxSpeed, dz*b.MaxSpeed)
}

// Flee steers at full speed away from (tx, tz).
func Flee(b *Body, tx, tz float32) (float32, float32) {
	dx, dz := normalize(b.X-tx, b.Z-tz)
	return steerToward(b, dx*b.MaxSpeed, dz*b.MaxSpeed)
}

// Arrive seeks (tx, tz) and slows linearly inside slowR.
func Arrive(b *Body, tx, tz, slowR float32) (float32, float32) {
	ox, oz := tx-b.X, tz-b.Z
	d := length(ox, oz)
	if d < 1e-6 {
		return steerToward(b, 0, 0)
	}
	speed := b.MaxSpeed
	if slowR > 0 && d < slowR {
		speed *= d / slowR
	}
	return steerToward(b, ox/d*speed, oz/d*speed)
}

// Pursue seeks the predicted position of a moving target. The prediction
// horizon grows with distance and is capped at maxLead seconds.
func Pursue(b *Body, tx, tz, tvx, tvz, maxLead float32) (float32, float32) {
	t := leadTime(b, tx, tz, maxLead)
	return Seek(b, tx+tvx*t, tz+tvz*t)
}

// Evade flees the predicted position of a moving threat.
func Evade(b *Body, tx, tz, tvx, tvz, maxLead float32) (float32, float32) {
	t := leadTime(b, tx, tz, maxLead)
	return Flee(b, tx+tvx*t, tz+tvz*t)
}

func leadTime(b *Body, tx, tz, maxLead float32) float32 {
	if b.MaxSpeed <= 0 {
		return 0
	}
	return min(length(tx-b.X, tz-b.Z)/b.MaxSpeed, maxLead)
}

// WanderParams shape the wander circle.
type WanderParams struct {
	Radius   float32
	Distance float32
	Jitter   float32 // radians per second at full noise
}

// Wander advances *phase by noise in [-1, 1] scaled by jitter and seeks a
// point on a circle projected ahead of the agent.
func Wander(b *Body, heading float32, phase *float32, noise float32, p WanderParams, dt float32) (float32, float32) {
	*phase = normalizeAngle(*phase + noise*p.Jitter*dt)
	hs, hc := math.Sincos(float64(heading))
	ws, wc := math.Sincos(float64(heading + *phase))
	tx := b.X + float32(hc)*p.Distance + float32(wc)*p.Radius
	tz := b.Z + float32(hs)*p.Distance + float32(ws)*p.Radius
	return Seek(b, tx, tz)
}

// Separate steers away from mates closer than r, weighting nearer ones
// more heavily.
func Separate(b *Body, mates []FlockMate, r float32) (float32, float32) {
	var sx, sz float32
	n := 0
	rSq := r * r
	for i := range mates {
		m := &mates[i]
		if m.DistSq >= rSq {
			continue
		}
		if m.DistSq < 1e-8 {
			// Coincident mates push along an arbitrary fixed axis.
			sx += 1
			n++
			continue
		}
		sx -= m.DX / m.DistSq
		sz -= m.DZ / m.DistSq
		n++
	}
	if n == 0 {
		return 0, 0
	}
	dx, dz := normalize(sx, sz)
	return steerToward(b, dx*b.MaxSpeed, dz*b.MaxSpeed)
}

// Align steers toward the mean velocity of mates within r.
func Align(b *Body, mates []FlockMate, r float32) (float32, float32) {
	var ax, az float32
	n := 0
	rSq := r * r
	for i := range mates {
		if mates[i].DistSq > rSq {
			continue
		}
		ax += mates[i].VX
		az += mates[i].VZ
		n++
	}
	if n == 0 {
		return 0, 0
	}
	inv := 1 / float32(n)
	return steerToward(b, ax*inv, az*inv)
}

// Cohere arrives at the centroid of mates within r.
func Cohere(b *Body, mates []FlockMate, r, slowR float32) (float32, float32) {
	var cx, cz float32
	n := 0
	rSq := r * r
	for i := range mates {
		if mates[i].DistSq > rSq {
			continue
		}
		cx += mates[i].DX
		cz += mates[i].DZ
		n++
	}
	if n == 0 {
		return 0, 0
	}
	inv := 1 / float32(n)
	return Arrive(b, b.X+cx*inv, b.Z+cz*inv, slowR)
}

// FlockWeights weight the three flocking terms.
type FlockWeights struct {
	Separation, Alignment, Cohesion float32
}

// Flock is the weighted sum of separation, alignment and cohesion.
// Separation uses sepR; the other two use the whole mate list.
func Flock(b *Body, mates []FlockMate, sepR, visR, slowR float32, w FlockWeights) (float32, float32) {
	var fx, fz float32
	if w.Separation != 0 {
		x, z := Separate(b, mates, sepR)
		fx += w.Separation * x
		fz += w.Separation * z
	}
	if w.Alignment != 0 {
		x, z := Align(b, mates, visR)
		fx += w.Alignment * x
		fz += w.Alignment * z
	}
	if w.Cohesion != 0 {
		x, z := Cohere(b, mates, visR, slowR)
		fx += w.Cohesion * x
		fz += w.Cohesion * z
	}
	return fx, fz
}

// AvoidBoundary pushes inward once the agent is within margin of an edge.
// The push grows linearly to maxForce at the edge itself.
func AvoidBoundary(b *Body, bounds world.Bounds, margin float32) (float32, float32) {
	if margin <= 0 {
		return 0, 0
	}
	var fx, fz float32
	if d := b.X - bounds.MinX; d < margin {
		fx += 1 - d/margin
	}
	if d := bounds.MaxX - b.X; d < margin {
		fx -= 1 - d/margin
	}
	if d := b.Z - bounds.MinZ; d < margin {
		fz += 1 - d/margin
	}
	if d := bounds.MaxZ - b.Z; d < margin {
		fz -= 1 - d/margin
	}
	return clampNorm(fx*b.MaxForce, fz*b.MaxForce, b.MaxForce)
}
