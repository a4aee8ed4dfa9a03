package components

// Position is a world position. The XZ plane is horizontal; Y is up.
type Position struct {
	X, Y, Z float32
}

// Velocity is a world-space velocity in units per second.
type Velocity struct {
	X, Y, Z float32
}

// Rotation holds yaw and pitch.
type Rotation struct {
	Heading     float32 // yaw in radians, 0 = +X, increasing toward +Z
	Pitch       float32 // radians, aerial and aquatic only
	AngVel      float32 // yaw rate applied last integration (rad/s)
	WanderPhase float32 // persistent wander angle
}
