// Package geometry provides the planar value types used by the flow detector:
// wraparound-aware angles and 2D sensor coordinates.
package geometry

import "math"

// Angle is an angle in radians. Angles produced by NewAngle and Sub are
// normalized into (-π, π].
type Angle float64

// NewAngle normalizes radians into (-π, π].
func NewAngle(radians float64) Angle {
	return Angle(normalize(radians))
}

// FromDegrees converts degrees into a normalized Angle.
func FromDegrees(degrees float64) Angle {
	return NewAngle(degrees * math.Pi / 180)
}

func normalize(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return r
	}
	r = math.Mod(r, 2*math.Pi)
	if r > math.Pi {
		r -= 2 * math.Pi
	} else if r <= -math.Pi {
		r += 2 * math.Pi
	}
	return r
}

// Sub returns a - other normalized into (-π, π], so the result is the
// shortest signed rotation from other to a.
func (a Angle) Sub(other Angle) Angle {
	return NewAngle(float64(a) - float64(other))
}

// Quadrant classifies the angle:
//
//	1: (0, π/2]
//	2: (π/2, π]
//	3: (-π, -π/2]
//	4: (-π/2, 0]
func (a Angle) Quadrant() int {
	r := float64(a)
	switch {
	case r > math.Pi/2:
		return 2
	case r > 0:
		return 1
	case r > -math.Pi/2:
		return 4
	default:
		return 3
	}
}

// Sin returns the sine of a.
func (a Angle) Sin() float64 { return math.Sin(float64(a)) }

// Cos returns the cosine of a.
func (a Angle) Cos() float64 { return math.Cos(float64(a)) }

// Radians returns the raw value.
func (a Angle) Radians() float64 { return float64(a) }

// Degrees returns the angle in degrees.
func (a Angle) Degrees() float64 { return float64(a) * 180 / math.Pi }

// OptionalAngle is an angle that may not have been established yet.
// The zero value is unset.
type OptionalAngle struct {
	angle Angle
	set   bool
}

// Some wraps an established angle.
func Some(a Angle) OptionalAngle {
	return OptionalAngle{angle: a, set: true}
}

// Unset returns an angle that has not been established.
func Unset() OptionalAngle {
	return OptionalAngle{}
}

// Get returns the angle and whether it is set.
func (o OptionalAngle) Get() (Angle, bool) {
	return o.angle, o.set
}

// IsSet reports whether the angle has been established.
func (o OptionalAngle) IsSet() bool {
	return o.set
}
