// Package scope implements an XY scope widget showing the magnetometer trace
// and the confirmed ellipse.
package scope

import (
	"image/color"
	"math"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/itohio/wmr/pkg/geometry"
	"github.com/itohio/wmr/pkg/meter"
	"github.com/itohio/wmr/pkg/sample"
)

// ScopeWidget is a custom Fyne widget that plots the smoothed sensor trace.
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu      sync.RWMutex
	trace   []geometry.Coordinate // downsampled, reused between updates
	fit     ellipse.Cartesian
	average geometry.Coordinate
	mode    flow.Mode
	totals  meter.Totals
	last    *meter.Event // most recent non-pulse event

	// Auto-scaling, equal units on both axes
	bounds bounds

	maxDisplayPoints int
}

// bounds is the displayed data window.
type bounds struct {
	xMin, xMax float64
	yMin, yMax float64
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	points := config.Default().Meter.TracePoints
	if cfg != nil && cfg.Meter.TracePoints > 0 {
		points = cfg.Meter.TracePoints
	}
	s := &ScopeWidget{
		trace:            make([]geometry.Coordinate, 0, points),
		maxDisplayPoints: points,
		bounds:           bounds{xMin: -1, xMax: 1, yMin: -1, yMax: 1},
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData replaces the displayed data with the meter snapshot.
// Call it on the main thread via fyne.Do().
func (s *ScopeWidget) UpdateData(snap meter.Snapshot) {
	s.mu.Lock()

	s.trace = sample.Downsample(s.trace, snap.Trace, s.maxDisplayPoints)
	s.fit = snap.Fit
	s.average = snap.Average
	s.mode = snap.Mode
	s.totals = snap.Totals
	s.last = nil
	for i := len(snap.Events) - 1; i >= 0; i-- {
		if snap.Events[i].Kind != flow.PulseEvent {
			ev := snap.Events[i]
			s.last = &ev
			break
		}
	}
	s.bounds = autoScale(s.trace, s.fit)

	s.mu.Unlock()

	s.Refresh()
}

// autoScale fits the trace and the ellipse into a square window with a 10%
// margin.
func autoScale(trace []geometry.Coordinate, fit ellipse.Cartesian) bounds {
	b := bounds{
		xMin: math.Inf(1), xMax: math.Inf(-1),
		yMin: math.Inf(1), yMax: math.Inf(-1),
	}
	include := func(p geometry.Coordinate) {
		b.xMin = math.Min(b.xMin, p.X)
		b.xMax = math.Max(b.xMax, p.X)
		b.yMin = math.Min(b.yMin, p.Y)
		b.yMax = math.Max(b.yMax, p.Y)
	}
	for _, p := range trace {
		include(p)
	}
	if fit.Valid() {
		r := fit.Radius.X
		include(fit.Center.Translated(geometry.Coordinate{X: -r, Y: -r}))
		include(fit.Center.Translated(geometry.Coordinate{X: r, Y: r}))
	}
	if b.xMin > b.xMax {
		return bounds{xMin: -1, xMax: 1, yMin: -1, yMax: 1}
	}

	cx, cy := (b.xMin+b.xMax)/2, (b.yMin+b.yMax)/2
	half := math.Max(b.xMax-b.xMin, b.yMax-b.yMin) / 2
	if half == 0 {
		half = 1
	}
	half *= 1.1
	return bounds{
		xMin: cx - half, xMax: cx + half,
		yMin: cy - half, yMax: cy + half,
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
