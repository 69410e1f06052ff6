// Package ellipse converts between the general conic and the geometric form of
// an ellipse, and fits ellipses to sampled points.
package ellipse

import (
	"math"

	"github.com/itohio/wmr/pkg/geometry"
)

// Quadratic is a conic in the half-coefficient form
//
//	a·x² + 2b·xy + c·y² + 2d·x + 2f·y + g = 0
//
// Radius and Angle are solved lazily and cached, so use a pointer when calling
// them repeatedly.
type Quadratic struct {
	A, B, C, D, F, G float64

	solved  bool
	swapped bool
	radius  geometry.Coordinate
}

// NewQuadratic builds a conic from half-convention coefficients.
func NewQuadratic(a, b, c, d, f, g float64) Quadratic {
	return Quadratic{A: a, B: b, C: c, D: d, F: f, G: g}
}

// FromConic builds a conic from the full form A·x² + B·xy + C·y² + D·x + E·y + F = 0.
func FromConic(a, b, c, d, e, f float64) Quadratic {
	return Quadratic{A: a, B: b / 2, C: c, D: d / 2, F: e / 2, G: f}
}

// Conic returns the coefficients in the full form.
func (q Quadratic) Conic() [6]float64 {
	return [6]float64{q.A, 2 * q.B, q.C, 2 * q.D, 2 * q.F, q.G}
}

func (q Quadratic) delta() float64 {
	return q.B*q.B - q.A*q.C
}

// Center returns the conic center. It is only meaningful for ellipses.
func (q Quadratic) Center() geometry.Coordinate {
	delta := q.delta()
	return geometry.Coordinate{
		X: (q.C*q.D - q.B*q.F) / delta,
		Y: (q.A*q.F - q.B*q.D) / delta,
	}
}

// Radius returns the semi-axes with X >= Y. A zero radius means the conic is
// not a real ellipse.
func (q *Quadratic) Radius() geometry.Coordinate {
	if !q.solved {
		q.solve()
	}
	return q.radius
}

// Angle returns the tilt of the major axis in (-π/2, π/2].
func (q *Quadratic) Angle() geometry.Angle {
	if !q.solved {
		q.solve()
	}

	var phi float64
	if q.B == 0 {
		if q.A < q.C {
			phi = math.Pi / 2
		}
	} else {
		phi = math.Atan2(2*q.B, q.A-q.C) / 2
	}
	if q.swapped {
		phi += math.Pi / 2
	}
	return geometry.Angle(axisAngle(phi))
}

// solve finds the semi-axes along the eigenvectors of [[a b] [b c]]. The first
// axis belongs to the larger eigenvalue; when it turns out to be the shorter
// one the axes are swapped and Angle rotates by π/2.
func (q *Quadratic) solve() {
	q.solved = true
	q.swapped = false
	q.radius = geometry.Coordinate{}

	if !(q.delta() < 0) {
		return
	}

	center := q.Center()
	g := q.G + q.D*center.X + q.F*center.Y
	mean := (q.A + q.C) / 2
	s := math.Hypot((q.A-q.C)/2, q.B)

	r1 := semiAxis(-g / (mean + s))
	r2 := semiAxis(-g / (mean - s))
	if r1 == 0 || r2 == 0 {
		return
	}
	if r1 < r2 {
		r1, r2 = r2, r1
		q.swapped = true
	}
	q.radius = geometry.Coordinate{X: r1, Y: r2}
}

func semiAxis(v float64) float64 {
	if v > 0 && !math.IsInf(v, 1) {
		return math.Sqrt(v)
	}
	return 0
}

// axisAngle folds an axis direction into (-π/2, π/2].
func axisAngle(r float64) float64 {
	for r > math.Pi/2 {
		r -= math.Pi
	}
	for r <= -math.Pi/2 {
		r += math.Pi
	}
	return r
}
