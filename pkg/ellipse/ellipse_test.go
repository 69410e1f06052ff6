package ellipse

import (
	"math"
	"testing"

	"github.com/itohio/wmr/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuadratic_Circle(t *testing.T) {
	// (x-1)² + (y-2)² = 9
	q := NewQuadratic(1, 0, 1, -1, -2, -4)

	c := q.Center()
	assert.InDelta(t, 1.0, c.X, 1e-12)
	assert.InDelta(t, 2.0, c.Y, 1e-12)

	r := q.Radius()
	assert.InDelta(t, 3.0, r.X, 1e-12)
	assert.InDelta(t, 3.0, r.Y, 1e-12)
	assert.InDelta(t, 0.0, q.Angle().Radians(), 1e-12)
}

func TestQuadratic_AxisAlignedAngle(t *testing.T) {
	tests := []struct {
		name      string
		a, c      float64
		wantAngle float64
		wantMajor float64
	}{
		{"major along x", 1, 4, 0, 2},
		{"major along y", 4, 1, math.Pi / 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuadratic(tt.a, 0, tt.c, 0, 0, -4)
			r := q.Radius()
			assert.InDelta(t, tt.wantMajor, r.X, 1e-12)
			assert.InDelta(t, 1.0, r.Y, 1e-12)
			assert.InDelta(t, tt.wantAngle, q.Angle().Radians(), 1e-12)
		})
	}
}

func TestQuadratic_NotAnEllipse(t *testing.T) {
	// x² - y² = 1
	q := NewQuadratic(1, 0, -1, 0, 0, -1)
	assert.Equal(t, geometry.Coordinate{}, q.Radius())
	assert.False(t, FromQuadratic(q).Valid())

	var zero Quadratic
	assert.False(t, FromQuadratic(zero).Valid())
}

func TestQuadratic_ConicRoundTrip(t *testing.T) {
	q := FromConic(1, 2, 3, 4, 5, 6)
	assert.Equal(t, [6]float64{1, 2, 3, 4, 5, 6}, q.Conic())
	assert.Equal(t, 1.0, q.B)
	assert.Equal(t, 2.0, q.D)
	assert.Equal(t, 2.5, q.F)
}

func TestNewCartesian_MatchesQuadratic(t *testing.T) {
	e := NewCartesian(geometry.Coordinate{X: 3, Y: -2}, geometry.Coordinate{X: 5, Y: 2}, 0.4)
	got := FromQuadratic(e.Quadratic)

	assert.InDelta(t, 3.0, got.Center.X, 1e-9)
	assert.InDelta(t, -2.0, got.Center.Y, 1e-9)
	assert.InDelta(t, 5.0, got.Radius.X, 1e-9)
	assert.InDelta(t, 2.0, got.Radius.Y, 1e-9)
	assert.InDelta(t, 0.4, got.Angle.Radians(), 1e-9)
}

func TestNewCartesian_ReordersRadii(t *testing.T) {
	e := NewCartesian(geometry.Coordinate{}, geometry.Coordinate{X: 2, Y: 5}, 0)
	assert.Equal(t, geometry.Coordinate{X: 5, Y: 2}, e.Radius)
	assert.InDelta(t, math.Pi/2, e.Angle.Radians(), 1e-12)
}

func TestCartesian_PointAndParameter(t *testing.T) {
	e := NewCartesian(geometry.Coordinate{X: -100, Y: 100}, geometry.Coordinate{X: 12, Y: 7}, -0.7)

	for _, tp := range []float64{0, 0.5, 1.5, -2, 3} {
		p := e.PointAtAngle(geometry.NewAngle(tp))
		assert.InDelta(t, tp, e.ParameterOf(p).Radians(), 1e-9)
		assert.InDelta(t, 0.0, e.DistanceFrom(p), 1e-9)
	}
}

func TestCartesian_DistanceFrom(t *testing.T) {
	e := NewCartesian(geometry.Coordinate{}, geometry.Coordinate{X: 10, Y: 10}, 0)

	assert.InDelta(t, 3.0, e.DistanceFrom(geometry.Coordinate{X: 13}), 1e-9)
	assert.InDelta(t, 4.0, e.DistanceFrom(geometry.Coordinate{Y: -6}), 1e-9)

	var invalid Cartesian
	assert.True(t, math.IsInf(invalid.DistanceFrom(geometry.Coordinate{}), 1))
}

func TestCartesian_Circumference(t *testing.T) {
	circle := NewCartesian(geometry.Coordinate{}, geometry.Coordinate{X: 1, Y: 1}, 0)
	assert.InDelta(t, 2*math.Pi, circle.Circumference(), 1e-12)

	// π(21 - √187)
	e := NewCartesian(geometry.Coordinate{}, geometry.Coordinate{X: 5, Y: 2}, 0)
	assert.InDelta(t, 23.0128, e.Circumference(), 1e-3)
}

func fitPoints(t *testing.T, points []geometry.Coordinate) Cartesian {
	t.Helper()
	f := NewFit()
	for _, p := range points {
		require.True(t, f.Add(p))
	}
	q, err := f.Fit()
	require.NoError(t, err)
	return FromQuadratic(q)
}

func arc(e Cartesian, start, span float64, n int) []geometry.Coordinate {
	points := make([]geometry.Coordinate, n)
	for i := range points {
		points[i] = e.PointAtAngle(geometry.NewAngle(start + span*float64(i)/float64(n)))
	}
	return points
}

func TestFit_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		center geometry.Coordinate
		radius geometry.Coordinate
		tilt   geometry.Angle
	}{
		{"small tilted", geometry.Coordinate{X: 3, Y: -2}, geometry.Coordinate{X: 5, Y: 2}, 0.4},
		{"negative tilt", geometry.Coordinate{X: -7, Y: 11}, geometry.Coordinate{X: 9, Y: 4}, -1.1},
		{"far from origin", geometry.Coordinate{X: -100, Y: 100}, geometry.Coordinate{X: 14, Y: 10}, 0.9},
		{"sensor scale", geometry.Coordinate{X: 2500, Y: -1800}, geometry.Coordinate{X: 400, Y: 250}, -0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := NewCartesian(tt.center, tt.radius, tt.tilt)
			got := fitPoints(t, arc(want, 0, 2*math.Pi, BufferSize))

			require.True(t, got.Valid())
			assert.InDelta(t, want.Center.X, got.Center.X, 1e-6)
			assert.InDelta(t, want.Center.Y, got.Center.Y, 1e-6)
			assert.InDelta(t, want.Radius.X, got.Radius.X, 1e-6)
			assert.InDelta(t, want.Radius.Y, got.Radius.Y, 1e-6)
			assert.InDelta(t, want.Angle.Radians(), got.Angle.Radians(), 1e-6)
		})
	}
}

func TestFit_Circle(t *testing.T) {
	want := NewCartesian(geometry.Coordinate{X: -100, Y: 100}, geometry.Coordinate{X: 10, Y: 10}, 0)
	got := fitPoints(t, arc(want, 0, 2*math.Pi, BufferSize))

	// the tilt of a circle is undefined
	assert.InDelta(t, -100.0, got.Center.X, 1e-6)
	assert.InDelta(t, 100.0, got.Center.Y, 1e-6)
	assert.InDelta(t, 10.0, got.Radius.X, 1e-6)
	assert.InDelta(t, 10.0, got.Radius.Y, 1e-6)
}

func TestFit_PartialArc(t *testing.T) {
	want := NewCartesian(geometry.Coordinate{X: 20, Y: -35}, geometry.Coordinate{X: 16, Y: 9}, 0.25)
	got := fitPoints(t, arc(want, 0.3, 0.2*2*math.Pi, BufferSize))

	require.True(t, got.Valid())
	assert.InDelta(t, want.Center.X, got.Center.X, 5e-4)
	assert.InDelta(t, want.Center.Y, got.Center.Y, 5e-4)
	assert.InDelta(t, want.Radius.X, got.Radius.X, 5e-4)
	assert.InDelta(t, want.Radius.Y, got.Radius.Y, 5e-4)
}

func TestFit_Buffer(t *testing.T) {
	f := NewFit()
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Full())

	for i := 0; i < BufferSize; i++ {
		assert.True(t, f.Add(geometry.Coordinate{X: float64(i), Y: float64(i * i)}))
	}
	assert.True(t, f.Full())
	assert.Equal(t, BufferSize, f.Len())
	assert.False(t, f.Add(geometry.Coordinate{}), "full buffer must reject points")
	assert.Equal(t, BufferSize, f.Len())

	f.Begin()
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Full())
}

func TestFit_NotEnoughPoints(t *testing.T) {
	f := NewFit()
	for i := 0; i < 5; i++ {
		f.Add(geometry.Coordinate{X: float64(i), Y: 1})
	}

	q, err := f.Fit()
	assert.ErrorIs(t, err, ErrNotEnoughPoints)
	assert.False(t, FromQuadratic(q).Valid())
}

func TestFit_ReusesBufferAfterBegin(t *testing.T) {
	first := NewCartesian(geometry.Coordinate{X: 50, Y: 50}, geometry.Coordinate{X: 8, Y: 3}, 0.1)
	second := NewCartesian(geometry.Coordinate{X: -20, Y: 5}, geometry.Coordinate{X: 6, Y: 5}, -0.5)

	f := NewFit()
	for _, p := range arc(first, 0, 2*math.Pi, BufferSize) {
		f.Add(p)
	}
	_, err := f.Fit()
	require.NoError(t, err)

	f.Begin()
	for _, p := range arc(second, 0, 2*math.Pi, BufferSize) {
		f.Add(p)
	}
	q, err := f.Fit()
	require.NoError(t, err)

	got := FromQuadratic(q)
	assert.InDelta(t, -20.0, got.Center.X, 1e-6)
	assert.InDelta(t, 5.0, got.Center.Y, 1e-6)
}
