package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAngle_Normalizes(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays pi", math.Pi, math.Pi},
		{"minus pi wraps to pi", -math.Pi, math.Pi},
		{"three pi", 3 * math.Pi, math.Pi},
		{"minus three halves pi", -1.5 * math.Pi, 0.5 * math.Pi},
		{"just over pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"two pi", 2 * math.Pi, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NewAngle(tt.in).Radians(), 1e-12)
		})
	}
}

func TestAngle_Sub_Wraparound(t *testing.T) {
	a := NewAngle(math.Pi - 0.1)
	b := NewAngle(-math.Pi + 0.1)

	// Crossing the ±π seam is a short rotation, not a near-full turn
	assert.InDelta(t, 0.2, b.Sub(a).Radians(), 1e-12)
	assert.InDelta(t, -0.2, a.Sub(b).Radians(), 1e-12)
}

func TestAngle_Quadrant(t *testing.T) {
	tests := []struct {
		angle float64
		want  int
	}{
		{0.1, 1},
		{math.Pi / 2, 1},
		{math.Pi/2 + 0.1, 2},
		{math.Pi, 2},
		{-math.Pi + 0.1, 3},
		{-math.Pi / 2, 3},
		{-math.Pi/2 + 0.1, 4},
		{0, 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NewAngle(tt.angle).Quadrant(), "angle %v", tt.angle)
	}
}

func TestAngle_Degrees(t *testing.T) {
	assert.InDelta(t, 90.0, NewAngle(math.Pi/2).Degrees(), 1e-12)
	assert.InDelta(t, math.Pi/4, FromDegrees(45).Radians(), 1e-12)
	assert.InDelta(t, 1.0, NewAngle(math.Pi/2).Sin(), 1e-12)
	assert.InDelta(t, -1.0, NewAngle(math.Pi).Cos(), 1e-12)
}

func TestOptionalAngle(t *testing.T) {
	var zero OptionalAngle
	assert.False(t, zero.IsSet())
	assert.Equal(t, Unset(), zero)

	o := Some(NewAngle(1))
	a, ok := o.Get()
	assert.True(t, ok)
	assert.InDelta(t, 1.0, a.Radians(), 1e-12)
}

func TestCoordinate_AngleFrom(t *testing.T) {
	origin := Coordinate{X: -100, Y: 100}

	a, ok := Coordinate{X: -100, Y: 110}.AngleFrom(origin)
	assert.True(t, ok)
	assert.InDelta(t, math.Pi/2, a.Radians(), 1e-12)

	a, ok = Coordinate{X: -110, Y: 100}.AngleFrom(origin)
	assert.True(t, ok)
	assert.InDelta(t, math.Pi, a.Radians(), 1e-12)

	_, ok = origin.AngleFrom(origin)
	assert.False(t, ok, "direction between coincident points is undefined")

	// atan2 of a negative zero dy gives -π, outside (-π, π]
	a, ok = Coordinate{X: -1, Y: math.Copysign(0, -1)}.AngleFrom(Coordinate{})
	assert.True(t, ok)
	assert.Equal(t, math.Pi, a.Radians())
	assert.Equal(t, 2, a.Quadrant())
}

func TestCoordinate_Transforms(t *testing.T) {
	c := Coordinate{X: 2, Y: 4}

	assert.InDelta(t, 5.0, Coordinate{X: 3, Y: 4}.DistanceFrom(Coordinate{}), 1e-12)
	assert.Equal(t, Coordinate{X: 3, Y: 3}, c.Translated(Coordinate{X: 1, Y: -1}))
	assert.Equal(t, Coordinate{X: 4, Y: -4}, c.Scaled(Coordinate{X: 2, Y: -1}))
	assert.Equal(t, Coordinate{X: 0.5, Y: 0.25}, c.Reciprocal())
	assert.Equal(t, Coordinate{X: -2, Y: -4}, c.Negated())

	r := Coordinate{X: 1, Y: 0}.Rotated(NewAngle(math.Pi / 2))
	assert.InDelta(t, 0.0, r.X, 1e-12)
	assert.InDelta(t, 1.0, r.Y, 1e-12)
	assert.InDelta(t, math.Sqrt(20), c.Magnitude(), 1e-12)
}
