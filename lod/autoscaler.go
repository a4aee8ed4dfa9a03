package lod

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/forge/config"
)

// Change describes a quality level move.
type Change struct {
	From, To int
	Reason   string
}

// Autoscaler holds frame time near a target by moving along the quality
// ladder. It steps down when the rolling mean stays above
// target·downRatio for more than downFrames frames and steps up when it
// stays below target·upRatio for more than upFrames. Stepping down is
// faster than stepping up so the level does not oscillate.
//
// The autoscaler exclusively owns the active thresholds; everything else
// reads them through Current.
type Autoscaler struct {
	levels []Level
	level  int
	pinned bool

	target     float64 // milliseconds
	downRatio  float64
	upRatio    float64
	downFrames int
	upFrames   int

	window []float64
	next   int
	filled int
	mean   float64

	over, under int

	cooldown    int
	sinceForced int
}

// NewAutoscaler creates an autoscaler starting at the configured initial
// level.
func NewAutoscaler(cfg *config.Config) *Autoscaler {
	q := cfg.Quality
	a := &Autoscaler{
		levels:     LevelsFromConfig(q),
		target:     q.TargetFrameMS,
		downRatio:  q.StepDownRatio,
		upRatio:    q.StepUpRatio,
		downFrames: q.StepDownFrames,
		upFrames:   q.StepUpFrames,
		window:     make([]float64, max(q.Window, 1)),
		cooldown:   q.ResourceStepCooldown,
	}
	a.sinceForced = a.cooldown
	if i, ok := cfg.Derived.LevelIndex[q.Initial]; ok {
		a.level = i
	}
	return a
}

// Levels returns the ladder, best first.
func (a *Autoscaler) Levels() []Level { return a.levels }

// Level returns the active level index; 0 is the best.
func (a *Autoscaler) Level() int { return a.level }

// Current returns the active level.
func (a *Autoscaler) Current() Level { return a.levels[a.level] }

// Mean returns the rolling mean frame time in milliseconds.
func (a *Autoscaler) Mean() float64 { return a.mean }

// Pinned reports whether the level is fixed.
func (a *Autoscaler) Pinned() bool { return a.pinned }

// Pin fixes the level. Observe no longer moves it, but StepDown still
// applies for resource errors.
func (a *Autoscaler) Pin(level int) Change {
	level = min(max(level, 0), len(a.levels)-1)
	c := Change{From: a.level, To: level, Reason: "pinned"}
	a.set(level)
	a.pinned = true
	return c
}

// Unpin returns control of the level to Observe.
func (a *Autoscaler) Unpin() { a.pinned = false }

// Observe records one frame's duration and returns the level change it
// caused, if any.
func (a *Autoscaler) Observe(frame time.Duration) (Change, bool) {
	a.sinceForced++

	a.window[a.next] = float64(frame) / float64(time.Millisecond)
	a.next = (a.next + 1) % len(a.window)
	if a.filled < len(a.window) {
		a.filled++
	}
	a.mean = stat.Mean(a.window[:a.filled], nil)

	switch {
	case a.mean > a.target*a.downRatio:
		a.over++
		a.under = 0
	case a.mean < a.target*a.upRatio:
		a.under++
		a.over = 0
	default:
		a.over, a.under = 0, 0
	}
	if a.pinned {
		return Change{}, false
	}

	if a.over > a.downFrames && a.level < len(a.levels)-1 {
		c := Change{From: a.level, To: a.level + 1, Reason: "frame time over target"}
		a.set(a.level + 1)
		return c, true
	}
	if a.under > a.upFrames && a.level > 0 {
		c := Change{From: a.level, To: a.level - 1, Reason: "frame time under target"}
		a.set(a.level - 1)
		return c, true
	}
	return Change{}, false
}

// StepDown lowers the level by one for a resource error. Calls within the
// cooldown of the previous forced step are ignored.
func (a *Autoscaler) StepDown(reason string) (Change, bool) {
	if a.sinceForced < a.cooldown || a.level >= len(a.levels)-1 {
		return Change{}, false
	}
	c := Change{From: a.level, To: a.level + 1, Reason: reason}
	a.set(a.level + 1)
	a.sinceForced = 0
	slog.Warn("quality stepped down", "reason", reason, "quality_level", a.levels[a.level].Name)
	return c, true
}

// set moves to level and restarts the measurement so the next decision is
// made on frames rendered at the new level.
func (a *Autoscaler) set(level int) {
	a.level = level
	a.over, a.under = 0, 0
	a.next, a.filled = 0, 0
}
