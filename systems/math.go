package systems

import "math"

// Clamp functions for common value ranges

// clampFloat clamps a float32 value between min and max.
func clampFloat(v, minVal, maxVal float32) float32 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clamp01 clamps a float32 value to the [0, 1] range.
func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Angle normalization functions

// normalizeAngle wraps an angle to (-Pi, Pi].
func normalizeAngle(angle float32) float32 {
	if angle > -math.Pi && angle <= math.Pi {
		return angle
	}
	a := math.Mod(float64(angle), 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return float32(a)
}

// bearing returns the heading-relative angle from (x, z) facing heading
// to the point (tx, tz), in (-Pi, Pi].
func bearing(x, z, heading, tx, tz float32) float32 {
	world := float32(math.Atan2(float64(tz-z), float64(tx-x)))
	return normalizeAngle(world - heading)
}

// Vector helpers on the XZ plane

func length(x, z float32) float32 {
	return float32(math.Sqrt(float64(x*x + z*z)))
}

// normalize returns the unit vector of (x, z), or zero.
func normalize(x, z float32) (float32, float32) {
	l := length(x, z)
	if l < 1e-6 {
		return 0, 0
	}
	return x / l, z / l
}

// clampNorm scales (x, z) down to at most limit.
func clampNorm(x, z, limit float32) (float32, float32) {
	lsq := x*x + z*z
	if lsq <= limit*limit || lsq == 0 {
		return x, z
	}
	s := limit / float32(math.Sqrt(float64(lsq)))
	return x * s, z * s
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
