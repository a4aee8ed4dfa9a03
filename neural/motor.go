package neural

import "math"

// Motor is the brain's output vector after clamping.
type Motor [NumOutputs]float32

// Motor slots.
const (
	MotorTurn       = iota // signed, scaled by π
	MotorSpeed             // fraction of max speed
	MotorAttack            // attack intent
	MotorFlee              // flee intent
	MotorEat               // eat intent
	MotorSocial            // signed social attraction
	MotorAggression        // aggression level
	MotorRest              // rest intent
	MotorVocalize          // hook for the audio layer
	MotorReserved
)

// signedMotor reports whether a slot keeps the raw tanh range.
func signedMotor(slot int) bool {
	return slot == MotorTurn || slot == MotorSocial
}

// MotorFromRaw maps raw tanh outputs into the motor ranges. Signed slots
// stay in [-1, 1]; the rest are shifted to [0, 1].
func MotorFromRaw(raw [NumOutputs]float32) Motor {
	var m Motor
	for i, v := range raw {
		if v != v {
			v = 0
		}
		if signedMotor(i) {
			m[i] = clampSigned(v)
		} else {
			m[i] = clamp01((v + 1) * 0.5)
		}
	}
	return m
}

// TurnAngle is the desired heading change in radians.
func (m *Motor) TurnAngle() float32 { return m[MotorTurn] * math.Pi }

func (m *Motor) Speed() float32      { return m[MotorSpeed] }
func (m *Motor) Attack() float32     { return m[MotorAttack] }
func (m *Motor) Flee() float32       { return m[MotorFlee] }
func (m *Motor) Eat() float32        { return m[MotorEat] }
func (m *Motor) Social() float32     { return m[MotorSocial] }
func (m *Motor) Aggression() float32 { return m[MotorAggression] }
func (m *Motor) Rest() float32       { return m[MotorRest] }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
