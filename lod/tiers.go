// Package lod decides which agents run their AI each frame. The scheduler
// buckets agents by camera distance into tiers with fixed cadences; the
// autoscaler watches frame time and moves along the quality ladder that
// owns the tier thresholds.
package lod

import "github.com/pthm-cable/forge/config"

// Tier is an update-frequency bucket.
type Tier uint8

const (
	TierNear Tier = iota
	TierMedium
	TierFar
	TierCulled

	NumTiers
)

func (t Tier) String() string {
	switch t {
	case TierNear:
		return "near"
	case TierMedium:
		return "medium"
	case TierFar:
		return "far"
	case TierCulled:
		return "culled"
	}
	return "unknown"
}

// Thresholds are the distance bands and cadences of one quality level.
type Thresholds struct {
	Near, Medium, Far float32
	MediumCadence     int
	FarCadence        int
}

// Level is one row of the quality ladder.
type Level struct {
	Name string
	Thresholds
	MaxAgents     int
	GridCellSize  float32
	RenderLODBias float32
	DispatchWidth int
}

// LevelsFromConfig converts the configured ladder, best first.
func LevelsFromConfig(q config.QualityConfig) []Level {
	levels := make([]Level, len(q.Levels))
	for i, l := range q.Levels {
		levels[i] = Level{
			Name: l.Name,
			Thresholds: Thresholds{
				Near:          float32(l.NearDistance),
				Medium:        float32(l.MediumDistance),
				Far:           float32(l.FarDistance),
				MediumCadence: max(l.MediumCadence, 1),
				FarCadence:    max(l.FarCadence, 1),
			},
			MaxAgents:     l.MaxAgents,
			GridCellSize:  float32(l.GridCellSize),
			RenderLODBias: float32(l.RenderLODBias),
			DispatchWidth: l.DispatchWidth,
		}
	}
	return levels
}

// Classify returns the tier for a squared camera distance.
func (th *Thresholds) Classify(distSq float32) Tier {
	switch {
	case distSq <= th.Near*th.Near:
		return TierNear
	case distSq <= th.Medium*th.Medium:
		return TierMedium
	case distSq <= th.Far*th.Far:
		return TierFar
	}
	return TierCulled
}

// Cadence returns the frames between ticks for t; 0 means never.
func (th *Thresholds) Cadence(t Tier) int {
	switch t {
	case TierNear:
		return 1
	case TierMedium:
		return th.MediumCadence
	case TierFar:
		return th.FarCadence
	}
	return 0
}

// Window is the frame count over which every non-culled agent ticks at
// least once: lcm of the medium and far cadences.
func (th *Thresholds) Window() int {
	a, b := max(th.MediumCadence, 1), max(th.FarCadence, 1)
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
