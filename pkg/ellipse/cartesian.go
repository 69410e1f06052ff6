package ellipse

import (
	"math"

	"github.com/itohio/wmr/pkg/geometry"
)

// Epsilon is the smallest radius magnitude of a usable ellipse.
const Epsilon = 1e-6

// Cartesian is an ellipse in geometric form. The fields are derived once from
// the originating Quadratic; a Cartesian is never partially updated.
type Cartesian struct {
	Center    geometry.Coordinate
	Radius    geometry.Coordinate // X is the semi-major axis
	Angle     geometry.Angle      // tilt of the major axis
	Quadratic Quadratic
}

// FromQuadratic derives the geometric form of q.
func FromQuadratic(q Quadratic) Cartesian {
	radius := q.Radius()
	if radius.Magnitude() <= Epsilon {
		return Cartesian{Quadratic: q}
	}
	return Cartesian{
		Center:    q.Center(),
		Radius:    radius,
		Angle:     q.Angle(),
		Quadratic: q,
	}
}

// NewCartesian builds an ellipse from its geometry and computes the matching
// conic. Radii are reordered so that Radius.X >= Radius.Y.
func NewCartesian(center, radius geometry.Coordinate, tilt geometry.Angle) Cartesian {
	rx, ry := math.Abs(radius.X), math.Abs(radius.Y)
	phi := float64(tilt)
	if rx < ry {
		rx, ry = ry, rx
		phi += math.Pi / 2
	}
	phi = axisAngle(phi)

	sin, cos := math.Sincos(phi)
	a := rx*rx*sin*sin + ry*ry*cos*cos
	b := 2 * (ry*ry - rx*rx) * sin * cos
	c := rx*rx*cos*cos + ry*ry*sin*sin
	x0, y0 := center.X, center.Y

	return Cartesian{
		Center: center,
		Radius: geometry.Coordinate{X: rx, Y: ry},
		Angle:  geometry.Angle(phi),
		Quadratic: FromConic(
			a, b, c,
			-2*a*x0-b*y0,
			-b*x0-2*c*y0,
			a*x0*x0+b*x0*y0+c*y0*y0-rx*rx*ry*ry,
		),
	}
}

// Valid reports whether the ellipse has a usable size. The zero value is the
// "nothing fitted yet" ellipse.
func (e Cartesian) Valid() bool {
	return e.Radius.Magnitude() > Epsilon
}

// PointAtAngle evaluates the parametric ellipse at t.
func (e Cartesian) PointAtAngle(t geometry.Angle) geometry.Coordinate {
	return geometry.Coordinate{
		X: e.Radius.X * t.Cos(),
		Y: e.Radius.Y * t.Sin(),
	}.Rotated(e.Angle).Translated(e.Center)
}

// ParameterOf maps p into the unit-circle frame of the ellipse and returns its
// parametric angle.
func (e Cartesian) ParameterOf(p geometry.Coordinate) geometry.Angle {
	local := p.Translated(e.Center.Negated()).
		Rotated(-e.Angle).
		Scaled(e.Radius.Reciprocal())
	t, ok := local.AngleFrom(geometry.Coordinate{})
	if !ok {
		return 0
	}
	return t
}

// DistanceFrom returns the distance between p and the point of the ellipse at
// the same parametric angle. Invalid ellipses are infinitely far away.
func (e Cartesian) DistanceFrom(p geometry.Coordinate) float64 {
	if !e.Valid() {
		return math.Inf(1)
	}
	return p.DistanceFrom(e.PointAtAngle(e.ParameterOf(p)))
}

// Circumference uses Ramanujan's approximation.
func (e Cartesian) Circumference() float64 {
	a, b := e.Radius.X, e.Radius.Y
	return math.Pi * (3*(a+b) - math.Sqrt((3*a+b)*(a+3*b)))
}
