package geometry

import "math"

// Coordinate is a point (or vector) in sensor units.
type Coordinate struct {
	X float64
	Y float64
}

// DistanceFrom returns the Euclidean distance between c and other.
func (c Coordinate) DistanceFrom(other Coordinate) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

// AngleFrom returns the direction of c as seen from other. The second return
// value is false when both points coincide and the direction is undefined.
func (c Coordinate) AngleFrom(other Coordinate) (Angle, bool) {
	dx := c.X - other.X
	dy := c.Y - other.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return NewAngle(math.Atan2(dy, dx)), true
}

// Rotated rotates c counterclockwise around the origin.
func (c Coordinate) Rotated(a Angle) Coordinate {
	sin, cos := math.Sincos(float64(a))
	return Coordinate{
		X: c.X*cos - c.Y*sin,
		Y: c.X*sin + c.Y*cos,
	}
}

// Translated adds the vector v.
func (c Coordinate) Translated(v Coordinate) Coordinate {
	return Coordinate{X: c.X + v.X, Y: c.Y + v.Y}
}

// Scaled multiplies element-wise by v.
func (c Coordinate) Scaled(v Coordinate) Coordinate {
	return Coordinate{X: c.X * v.X, Y: c.Y * v.Y}
}

// Reciprocal returns (1/x, 1/y). Callers must guarantee both components are
// non-zero; it is used on ellipse radii.
func (c Coordinate) Reciprocal() Coordinate {
	return Coordinate{X: 1 / c.X, Y: 1 / c.Y}
}

// Negated returns (-x, -y).
func (c Coordinate) Negated() Coordinate {
	return Coordinate{X: -c.X, Y: -c.Y}
}

// Magnitude returns the vector length.
func (c Coordinate) Magnitude() float64 {
	return math.Hypot(c.X, c.Y)
}
