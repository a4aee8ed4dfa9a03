package world

import (
	"math"

	"github.com/pthm-cable/forge/config"
)

// Environment is the climate the core reads each frame.
type Environment interface {
	// TimeOfDay is the day phase in [0, 1); 0 is midnight.
	TimeOfDay() float32
	// Season is the year phase in [0, 1).
	Season() float32
	Temperature() float32
	// Moisture is relative humidity in [0, 1].
	Moisture() float32
	// Precipitation intensity in [0, 1].
	Precipitation() float32
	Wind() (x, z float32)
}

// Clock is an Environment driven by simulation time. Temperature follows
// the day and season cycles; rain falls when moisture peaks.
type Clock struct {
	cfg   config.EnvironmentConfig
	time  float64
	phase float64 // day phase offset, restored from saves
}

// NewClock creates a clock starting at dawn.
func NewClock(cfg config.EnvironmentConfig) *Clock {
	return &Clock{cfg: cfg, phase: 0.25}
}

// Advance moves the clock forward by dt seconds.
func (c *Clock) Advance(dt float32) { c.time += float64(dt) }

// Time returns elapsed simulation seconds.
func (c *Clock) Time() float64 { return c.time }

// SetTime restores elapsed time and day phase offset.
func (c *Clock) SetTime(t, phase float64) {
	c.time = t
	c.phase = phase
}

// PhaseOffset returns the day phase the clock started at.
func (c *Clock) PhaseOffset() float64 { return c.phase }

func (c *Clock) TimeOfDay() float32 {
	if c.cfg.DayLength <= 0 {
		return float32(c.phase)
	}
	return float32(frac(c.time/c.cfg.DayLength + c.phase))
}

func (c *Clock) Season() float32 {
	if c.cfg.SeasonLength <= 0 {
		return 0
	}
	return float32(frac(c.time / c.cfg.SeasonLength))
}

func (c *Clock) Temperature() float32 {
	day := -math.Cos(2 * math.Pi * float64(c.TimeOfDay())) // coldest at midnight
	year := -math.Cos(2 * math.Pi * float64(c.Season()))   // coldest at season 0
	return float32(c.cfg.BaseTemperature + c.cfg.TemperatureSwing*(0.4*day+0.6*year))
}

func (c *Clock) Moisture() float32 {
	m := c.cfg.BaseMoisture + 0.3*math.Sin(2*math.Pi*float64(c.Season())*3)
	return float32(math.Max(0, math.Min(1, m)))
}

func (c *Clock) Precipitation() float32 {
	m := c.Moisture()
	if m < 0.7 {
		return 0
	}
	return (m - 0.7) / 0.3
}

func (c *Clock) Wind() (float32, float32) {
	dir := 2 * math.Pi * float64(c.Season())
	gust := 1 + 0.25*math.Sin(c.time*0.7)
	s := c.cfg.WindSpeed * gust
	return float32(math.Cos(dir) * s), float32(math.Sin(dir) * s)
}

// DecayFactor scales corpse decomposition: warm, damp conditions rot
// faster. It is 1 at 20 degrees and moisture 0.5.
func DecayFactor(env Environment) float32 {
	t := env.Temperature()
	temp := max(0.1, 1+(t-20)*0.05)
	damp := 0.5 + env.Moisture()
	return temp * damp
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}
