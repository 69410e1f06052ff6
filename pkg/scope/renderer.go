package scope

import (
	"fmt"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/itohio/wmr/pkg/geometry"
	"github.com/itohio/wmr/pkg/meter"
)

const outlineSegments = 64

var (
	gridColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	ellipseColor = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	centerColor  = color.RGBA{R: 0, G: 100, B: 200, A: 255}
	statusColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	warnColor    = color.RGBA{R: 255, G: 90, B: 90, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	grid    *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// plot maps data coordinates onto the square plot area.
type plot struct {
	x, y, side float32
	b          bounds
}

func (p plot) point(c geometry.Coordinate) fyne.Position {
	return fyne.NewPos(
		p.x+float32((c.X-p.b.xMin)/(p.b.xMax-p.b.xMin))*p.side,
		p.y+p.side-float32((c.Y-p.b.yMin)/(p.b.yMax-p.b.yMin))*p.side,
	)
}

func (p plot) scale() float32 {
	return p.side / float32(p.b.xMax-p.b.xMin)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 400)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh redraws everything from the current widget data.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	trace := r.scope.trace
	fit := r.scope.fit
	average := r.scope.average
	mode := r.scope.mode
	totals := r.scope.totals
	last := r.scope.last
	b := r.scope.bounds
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	const (
		marginLeft   = float32(60)
		marginRight  = float32(200)
		marginTop    = float32(20)
		marginBottom = float32(40)
	)
	side := min(size.Width-marginLeft-marginRight, size.Height-marginTop-marginBottom)
	if side <= 0 {
		return
	}
	p := plot{x: marginLeft, y: marginTop, side: side, b: b}

	r.drawGrid(p)
	r.drawTrace(p, trace)
	if fit.Valid() {
		r.drawEllipse(p, fit)
	}
	if len(trace) > 0 {
		r.drawMarker(p.point(average), traceColor, 3)
	}
	r.drawStatus(p, mode, totals, fit, last)
}

func (r *scopeRenderer) drawGrid(p plot) {
	const lines = 8
	for i := range lines + 1 {
		offset := float32(i) * p.side / lines

		h := canvas.NewLine(gridColor)
		h.Position1 = fyne.NewPos(p.x, p.y+offset)
		h.Position2 = fyne.NewPos(p.x+p.side, p.y+offset)
		h.StrokeWidth = 1

		v := canvas.NewLine(gridColor)
		v.Position1 = fyne.NewPos(p.x+offset, p.y)
		v.Position2 = fyne.NewPos(p.x+offset, p.y+p.side)
		v.StrokeWidth = 1

		yValue := p.b.yMax - float64(i)*(p.b.yMax-p.b.yMin)/lines
		yText := canvas.NewText(fmt.Sprintf("%.0f", yValue), labelColor)
		yText.TextSize = 10
		yText.Alignment = fyne.TextAlignTrailing
		yText.Move(fyne.NewPos(p.x-5, p.y+offset-6))

		xValue := p.b.xMin + float64(i)*(p.b.xMax-p.b.xMin)/lines
		xText := canvas.NewText(fmt.Sprintf("%.0f", xValue), labelColor)
		xText.TextSize = 10
		xText.Alignment = fyne.TextAlignCenter
		xText.Move(fyne.NewPos(p.x+offset-20, p.y+p.side+5))

		r.objects = append(r.objects, h, v, yText, xText)
	}
}

func (r *scopeRenderer) drawTrace(p plot, trace []geometry.Coordinate) {
	for i := 1; i < len(trace); i++ {
		line := canvas.NewLine(traceColor)
		line.Position1 = p.point(trace[i-1])
		line.Position2 = p.point(trace[i])
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
	}
}

// drawEllipse draws the confirmed ellipse outline directly in screen space.
// Screen Y grows downwards, so the tilt is mirrored.
func (r *scopeRenderer) drawEllipse(p plot, fit ellipse.Cartesian) {
	center := p.point(fit.Center)
	scale := p.scale()
	rx := float32(fit.Radius.X) * scale
	ry := float32(fit.Radius.Y) * scale
	sinA, cosA := math32.Sin(float32(-fit.Angle)), math32.Cos(float32(-fit.Angle))

	outline := func(i int) fyne.Position {
		t := 2 * math.Pi * float32(i) / outlineSegments
		x, y := rx*math32.Cos(t), -ry*math32.Sin(t)
		return fyne.NewPos(center.X+x*cosA-y*sinA, center.Y+x*sinA+y*cosA)
	}

	prev := outline(0)
	for i := 1; i <= outlineSegments; i++ {
		next := outline(i)
		line := canvas.NewLine(ellipseColor)
		line.Position1 = prev
		line.Position2 = next
		line.StrokeWidth = 2
		r.objects = append(r.objects, line)
		prev = next
	}

	r.drawMarker(center, centerColor, 6)
}

func (r *scopeRenderer) drawMarker(at fyne.Position, c color.Color, size float32) {
	h := canvas.NewLine(c)
	h.Position1 = fyne.NewPos(at.X-size, at.Y)
	h.Position2 = fyne.NewPos(at.X+size, at.Y)
	h.StrokeWidth = 2
	v := canvas.NewLine(c)
	v.Position1 = fyne.NewPos(at.X, at.Y-size)
	v.Position2 = fyne.NewPos(at.X, at.Y+size)
	v.StrokeWidth = 2
	r.objects = append(r.objects, h, v)
}

func (r *scopeRenderer) drawStatus(p plot, mode flow.Mode, totals meter.Totals, fit ellipse.Cartesian, last *meter.Event) {
	lines := statusLines(mode, totals, fit)

	x := p.x + p.side + 20
	y := p.y
	for _, text := range lines {
		label := canvas.NewText(text, statusColor)
		label.TextSize = 12
		label.Move(fyne.NewPos(x, y))
		r.objects = append(r.objects, label)
		y += 18
	}

	if last != nil {
		label := canvas.NewText(describe(*last), warnColor)
		label.TextSize = 11
		label.Move(fyne.NewPos(x, y+10))
		r.objects = append(r.objects, label)
	}
}

func statusLines(mode flow.Mode, totals meter.Totals, fit ellipse.Cartesian) []string {
	lines := []string{
		"mode: " + mode.String(),
		fmt.Sprintf("volume: %.1f L", totals.Liters),
		fmt.Sprintf("pulses: %d", totals.Pulses),
		fmt.Sprintf("anomalies: %d", totals.Anomalies),
		fmt.Sprintf("drifts: %d", totals.Drifts),
	}
	if fit.Valid() {
		lines = append(lines,
			fmt.Sprintf("center: %.1f, %.1f", fit.Center.X, fit.Center.Y),
			fmt.Sprintf("radius: %.1f, %.1f", fit.Radius.X, fit.Radius.Y),
			fmt.Sprintf("tilt: %.1f°", fit.Angle.Degrees()),
		)
	}
	return lines
}

// describe formats a detector event for the status panel.
func describe(ev meter.Event) string {
	at := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case flow.AnomalyEvent:
		state, distance := flow.UnpackAnomaly(uint16(ev.Value))
		if distance > 0 {
			return fmt.Sprintf("%s %s %.2f", at, state, distance)
		}
		return fmt.Sprintf("%s %s", at, state)
	case flow.DriftEvent:
		return fmt.Sprintf("%s drift after %d outliers", at, ev.Value)
	case flow.NoFitEvent:
		if ev.Value > 0 {
			return fmt.Sprintf("%s refit skipped at %d°", at, ev.Value)
		}
		return fmt.Sprintf("%s no fit, %d° travelled", at, -ev.Value)
	}
	return fmt.Sprintf("%s %s", at, ev.Kind)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}
