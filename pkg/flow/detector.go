// Package flow turns a stream of magnetometer samples into meter pulses.
//
// The detector smooths samples with a short moving average, drops points that
// moved less than the noise threshold, rejects points far from the confirmed
// ellipse and counts half revolutions of the indicator from quadrant
// transitions. Accepted points are collected into an ellipse fit which is
// refreshed whenever the buffer fills and enough rotation was observed.
package flow

import (
	"math"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/geometry"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/rs/zerolog/log"
)

// MovingAverageSize is the number of raw samples averaged into one point.
const MovingAverageSize = 4

// State is the complete detector bookkeeping. A zero State is a freshly
// constructed detector.
type State struct {
	Mode Mode

	Started     bool // a non flat-line sample was seen
	Window      [MovingAverageSize]geometry.Coordinate
	WindowPos   int
	WindowFull  bool
	Average     geometry.Coordinate
	Seeded      bool // Reference and Previous hold real points
	Settle      int  // accepted points left before detection starts
	Reference   geometry.Coordinate
	Previous    geometry.Coordinate
	Fit         ellipse.Cartesian
	Fits        int // ellipses confirmed since the last reset
	FitPoints   int
	Outliers    int
	Searching   bool
	LastAngle   geometry.OptionalAngle
	Quadrant    int
	TangentTurn float64 // radians travelled around the tangent direction
	CenterTurn  float64 // radians travelled around the confirmed center
	Skipped     bool
}

// Detector is the flow detection state machine. It is not safe for concurrent
// use; a single goroutine feeds it samples.
type Detector struct {
	cfg  config.DetectorConfig
	sink Sink
	fit  *ellipse.Fit
	st   State
}

// New creates a detector. A nil cfg uses config.DefaultDetector and a nil
// sink discards all signals.
func New(cfg *config.DetectorConfig, sink Sink) *Detector {
	c := config.DefaultDetector()
	if cfg != nil {
		c = *cfg
		c.EnsureDefaults()
	}
	if sink == nil {
		sink = Discard
	}
	return &Detector{
		cfg:  c,
		sink: sink,
		fit:  ellipse.NewFit(),
	}
}

// OnSensorReset discards everything learned so far.
func (d *Detector) OnSensorReset() {
	d.reset()
}

func (d *Detector) reset() {
	d.st = State{}
	d.fit.Begin()
}

// OnSample processes one raw sample.
func (d *Detector) OnSample(s magneto.RawSample) {
	d.st.Skipped = true

	switch s.State {
	case magneto.Ok:
	case magneto.Saturated:
		d.sink.OnAnomaly(PackAnomaly(s.State, 0))
	default:
		d.sink.OnAnomaly(PackAnomaly(s.State, 0))
		return
	}

	if !d.st.Started {
		if s.X == 0 && s.Y == 0 {
			d.sink.OnAnomaly(PackAnomaly(magneto.FlatLine, 0))
			return
		}
		d.st.Started = true
	}

	point := d.push(s)
	if !d.st.WindowFull {
		return
	}

	if !d.st.Seeded {
		d.begin(point)
		return
	}

	if point.DistanceFrom(d.st.Reference) < d.cfg.NoiseThreshold {
		return
	}

	if d.st.Fit.Valid() {
		distance := d.st.Fit.DistanceFrom(point)
		if distance > d.cfg.OutlierFactor*d.cfg.NoiseThreshold {
			d.outlier(distance)
			return
		}
	}
	d.st.Outliers = 0
	d.st.Skipped = false

	d.accept(point)
}

// push adds a sample to the moving average window and returns the mean of
// the filled slots.
func (d *Detector) push(s magneto.RawSample) geometry.Coordinate {
	d.st.Window[d.st.WindowPos] = geometry.Coordinate{X: float64(s.X), Y: float64(s.Y)}
	d.st.WindowPos = (d.st.WindowPos + 1) % MovingAverageSize
	if d.st.WindowPos == 0 {
		d.st.WindowFull = true
	}

	n := MovingAverageSize
	if !d.st.WindowFull {
		n = d.st.WindowPos
	}
	var sum geometry.Coordinate
	for _, p := range d.st.Window[:n] {
		sum = sum.Translated(p)
	}
	d.st.Average = geometry.Coordinate{X: sum.X / float64(n), Y: sum.Y / float64(n)}
	return d.st.Average
}

// begin seeds the reference point from the first full average.
func (d *Detector) begin(p geometry.Coordinate) {
	d.st.Seeded = true
	d.st.Mode = TangentMode
	d.st.Reference = p
	d.st.Previous = p
	d.st.Settle = MovingAverageSize
	d.fit.Begin()
}

func (d *Detector) outlier(distance float64) {
	d.st.Outliers++
	d.sink.OnAnomaly(PackAnomaly(magneto.Outlier, distance))

	if d.st.Outliers%d.cfg.MaxConsecutiveOutliers != 0 {
		return
	}

	count := d.st.Outliers
	log.Warn().Int("outliers", count).Msg("flow: sensor drifted, restarting detection")
	d.reset()
	d.st.Skipped = true
	d.sink.OnDrift(count)
}

func (d *Detector) accept(p geometry.Coordinate) {
	if d.st.Settle > 0 {
		d.st.Settle--
		d.st.Reference = p
		d.st.Previous = p
		return
	}

	if d.st.Fit.Valid() {
		d.detectAroundCenter(p)
	} else {
		d.detectAlongTangent(p)
	}
	d.st.Reference = p
	d.st.Previous = p

	d.fit.Add(p)
	d.st.FitPoints = d.fit.Len()
	if d.fit.Full() {
		d.refit()
	}
}

// The indicator turns clockwise, visiting quadrants 1, 4, 3, 2. Around the
// center the search is armed at the top (2 -> 1) and the pulse fires at the
// bottom (4 -> 3). Along the tangent the direction of travel is a quarter
// turn behind the position, so the same half turn is 1 -> 4 then 3 -> 2.
func (d *Detector) detectAroundCenter(p geometry.Coordinate) {
	angle, ok := p.AngleFrom(d.st.Fit.Center)
	if !ok {
		return
	}
	d.track(angle, &d.st.CenterTurn, 2, 1, 4, 3)
}

func (d *Detector) detectAlongTangent(p geometry.Coordinate) {
	angle, ok := p.AngleFrom(d.st.Previous)
	if !ok {
		return
	}
	d.track(angle, &d.st.TangentTurn, 1, 4, 3, 2)
}

func (d *Detector) track(angle geometry.Angle, turn *float64, armFrom, armTo, fireFrom, fireTo int) {
	q := angle.Quadrant()
	last, ok := d.st.LastAngle.Get()
	d.st.LastAngle = geometry.Some(angle)
	prev := d.st.Quadrant
	d.st.Quadrant = q
	if !ok {
		return
	}

	*turn += angle.Sub(last).Radians()

	switch {
	case !d.st.Searching && crossed(prev, q, armFrom, armTo):
		d.st.Searching = true
	case d.st.Searching && crossed(prev, q, fireFrom, fireTo):
		d.st.Searching = false
		d.sink.OnPulse(d.st.Mode)
	}
}

// crossed reports whether moving from quadrant prev to q passed the boundary
// between from and to, allowing one quadrant to be skipped on either side.
func crossed(prev, q, from, to int) bool {
	return (prev == from && (q == to || q == clockwise(to))) ||
		(prev == counterClockwise(from) && q == to)
}

func clockwise(q int) int {
	return (q+2)%4 + 1
}

func counterClockwise(q int) int {
	return q%4 + 1
}

// refit runs when the fit buffer is full.
func (d *Detector) refit() {
	defer func() {
		d.fit.Begin()
		d.st.FitPoints = 0
	}()

	// Tangent travel carries over until a fit is accepted.
	if !d.st.Fit.Valid() {
		turn := d.st.TangentTurn
		if revolutions(turn) < d.cfg.MinCycleForFit {
			d.sink.OnNoFit(-degrees(turn))
			return
		}
		if !d.confirm() {
			d.sink.OnNoFit(-degrees(turn))
		}
		return
	}

	turn := d.st.CenterTurn
	if revolutions(turn) < d.cfg.MinCycleForFit {
		d.sink.OnNoFit(degrees(turn))
		return
	}
	d.st.CenterTurn = 0
	if !d.confirm() {
		d.sink.OnNoFit(-degrees(turn))
	}
}

// confirm fits the buffer and, on success, replaces the confirmed ellipse and
// restarts center tracking from the last accepted point.
func (d *Detector) confirm() bool {
	q, err := d.fit.Fit()
	if err != nil {
		return false
	}
	candidate := ellipse.FromQuadratic(q)
	if !candidate.Valid() {
		log.Warn().Msg("flow: fit produced a degenerate ellipse")
		return false
	}

	d.st.Fit = candidate
	d.st.Fits++
	d.st.Mode = CenterMode
	d.st.TangentTurn = 0
	d.st.CenterTurn = 0
	d.st.LastAngle = geometry.Unset()
	d.st.Quadrant = 0
	if angle, ok := d.st.Previous.AngleFrom(candidate.Center); ok {
		d.st.LastAngle = geometry.Some(angle)
		d.st.Quadrant = angle.Quadrant()
	}

	log.Debug().
		Float64("cx", candidate.Center.X).
		Float64("cy", candidate.Center.Y).
		Float64("rx", candidate.Radius.X).
		Float64("ry", candidate.Radius.Y).
		Float64("tilt", candidate.Angle.Degrees()).
		Msg("flow: ellipse confirmed")
	return true
}

func revolutions(turn float64) float64 {
	return math.Abs(turn) / (2 * math.Pi)
}

func degrees(turn float64) int {
	return int(math.Round(math.Abs(turn) * 180 / math.Pi))
}

// Skipped reports whether the last sample was discarded: bootstrapping,
// noise, outlier or a sensor fault.
func (d *Detector) Skipped() bool {
	return d.st.Skipped
}

// Fits returns the number of ellipses confirmed since the last reset. It
// changes with every accepted refit, even one with the same geometry.
func (d *Detector) Fits() int {
	return d.st.Fits
}

// Mode returns the current detection mode.
func (d *Detector) Mode() Mode {
	return d.st.Mode
}

// MovingAverage returns the latest smoothed point.
func (d *Detector) MovingAverage() geometry.Coordinate {
	return d.st.Average
}

// ConfirmedFit returns the trusted ellipse. It is invalid until the first fit
// is accepted.
func (d *Detector) ConfirmedFit() ellipse.Cartesian {
	return d.st.Fit
}

// Snapshot returns a copy of the internal state.
func (d *Detector) Snapshot() State {
	return d.st
}

// Readout is the fixed point view of the detector used on the wire.
type Readout struct {
	AverageX int16 // ×1
	AverageY int16
	CenterX  int16 // ×10
	CenterY  int16
	RadiusX  int16 // ×10
	RadiusY  int16
	Tilt     int16 // degrees ×10
}

// Readout returns the moving average and confirmed ellipse in fixed point.
func (d *Detector) Readout() Readout {
	fit := d.st.Fit
	return Readout{
		AverageX: fixed(d.st.Average.X, 1),
		AverageY: fixed(d.st.Average.Y, 1),
		CenterX:  fixed(fit.Center.X, 10),
		CenterY:  fixed(fit.Center.Y, 10),
		RadiusX:  fixed(fit.Radius.X, 10),
		RadiusY:  fixed(fit.Radius.Y, 10),
		Tilt:     fixed(fit.Angle.Degrees(), 10),
	}
}

func fixed(v, scale float64) int16 {
	v = math.Round(v * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
