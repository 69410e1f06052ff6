package ellipse

import (
	"errors"
	"fmt"
	"math"

	"github.com/itohio/wmr/pkg/geometry"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// BufferSize is the number of points collected for one fit.
const BufferSize = 32

// minPoints is the fewest points that determine a conic (five) plus one so the
// least-squares problem is overdetermined.
const minPoints = 6

var (
	// ErrNotEnoughPoints is returned when fewer than six points were collected.
	ErrNotEnoughPoints = errors.New("not enough points for an ellipse fit")
	// ErrSingular is returned when the linear scatter matrix cannot be inverted.
	ErrSingular = errors.New("scatter matrix is singular")
	// ErrNoEllipse is returned when no eigenvector satisfies 4ac - b² > 0.
	ErrNoEllipse = errors.New("no elliptical solution")
)

// Fit accumulates up to BufferSize points and fits an ellipse to them by
// constrained least squares (Halir & Flusser). Points are stored relative to
// the first point of the batch, which keeps the scatter matrices well
// conditioned when the trace is far from the sensor origin.
type Fit struct {
	quadratic *mat.Dense // x², xy, y² per point
	linear    *mat.Dense // x, y, 1 per point
	origin    geometry.Coordinate
	count     int
}

// NewFit allocates the design matrices once.
func NewFit() *Fit {
	return &Fit{
		quadratic: mat.NewDense(BufferSize, 3, nil),
		linear:    mat.NewDense(BufferSize, 3, nil),
	}
}

// Begin starts a new batch without reallocating.
func (f *Fit) Begin() {
	f.count = 0
}

// Add appends a point to the design matrices. It returns false when the buffer
// is already full.
func (f *Fit) Add(p geometry.Coordinate) bool {
	if f.count >= BufferSize {
		return false
	}
	if f.count == 0 {
		f.origin = p
	}

	x := p.X - f.origin.X
	y := p.Y - f.origin.Y
	f.quadratic.Set(f.count, 0, x*x)
	f.quadratic.Set(f.count, 1, x*y)
	f.quadratic.Set(f.count, 2, y*y)
	f.linear.Set(f.count, 0, x)
	f.linear.Set(f.count, 1, y)
	f.linear.Set(f.count, 2, 1)
	f.count++
	return true
}

// Len returns the number of collected points.
func (f *Fit) Len() int {
	return f.count
}

// Full reports whether no more points can be added.
func (f *Fit) Full() bool {
	return f.count >= BufferSize
}

// Fit solves for the best-fit ellipse of the collected points. On failure it
// returns a zero Quadratic, whose radius is zero, together with the reason.
// The collected points are kept; call Begin to start the next batch.
func (f *Fit) Fit() (Quadratic, error) {
	n := f.count
	if n < minPoints {
		log.Warn().Int("points", n).Msg("ellipse fit: not enough points")
		return Quadratic{}, ErrNotEnoughPoints
	}

	d1 := f.quadratic.Slice(0, n, 0, 3)
	d2 := f.linear.Slice(0, n, 0, 3)

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	var s3inv mat.Dense
	if err := s3inv.Inverse(&s3); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			log.Warn().Err(err).Int("points", n).Msg("ellipse fit: singular scatter matrix")
			return Quadratic{}, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}

	// t = -S3⁻¹·S2ᵀ maps the quadratic coefficients onto the linear ones.
	var t mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)

	var s2t mat.Dense
	s2t.Mul(&s2, &t)
	var scatter mat.Dense
	scatter.Add(&s1, &s2t)

	// Premultiply by the inverse of the constraint matrix
	// C1 = [[0 0 2] [0 -1 0] [2 0 0]].
	reduced := mat.NewDense(3, 3, []float64{
		scatter.At(2, 0) / 2, scatter.At(2, 1) / 2, scatter.At(2, 2) / 2,
		-scatter.At(1, 0), -scatter.At(1, 1), -scatter.At(1, 2),
		scatter.At(0, 0) / 2, scatter.At(0, 1) / 2, scatter.At(0, 2) / 2,
	})

	var eig mat.Eigen
	if !eig.Factorize(reduced, mat.EigenRight) {
		log.Warn().Int("points", n).Msg("ellipse fit: eigen decomposition failed")
		return Quadratic{}, ErrNoEllipse
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	a1 := mat.NewVecDense(3, nil)
	found := false
	for j, v := range values {
		if imag(v) != 0 {
			continue
		}
		a, b, c := real(vectors.At(0, j)), real(vectors.At(1, j)), real(vectors.At(2, j))
		if 4*a*c-b*b > 0 {
			a1.SetVec(0, a)
			a1.SetVec(1, b)
			a1.SetVec(2, c)
			found = true
			break
		}
	}
	if !found {
		log.Warn().Int("points", n).Msg("ellipse fit: no eigenvector satisfies the ellipse constraint")
		return Quadratic{}, ErrNoEllipse
	}

	var a2 mat.VecDense
	a2.MulVec(&t, a1)

	return f.translate(
		a1.AtVec(0), a1.AtVec(1), a1.AtVec(2),
		a2.AtVec(0), a2.AtVec(1), a2.AtVec(2),
	), nil
}

// translate moves a full-form conic fitted around the batch origin back into
// sensor coordinates.
func (f *Fit) translate(a, b, c, d, e, g float64) Quadratic {
	ox, oy := f.origin.X, f.origin.Y
	return FromConic(
		a, b, c,
		d-2*a*ox-b*oy,
		e-b*ox-2*c*oy,
		g+a*ox*ox+b*ox*oy+c*oy*oy-d*ox-e*oy,
	)
}
