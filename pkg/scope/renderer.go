package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"
	"github.com/itohio/hcsr04/pkg/monitor"
	"github.com/itohio/hcsr04/pkg/units"
)

var (
	backgroundColor = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	gridColor       = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor      = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	valueColor      = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	medianColor     = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	failureColor    = color.RGBA{R: 220, G: 50, B: 50, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	background *canvas.Rectangle
	objects    []fyne.CanvasObject

	lastSize fyne.Size
}

func newRenderer(s *ScopeWidget) *scopeRenderer {
	bg := canvas.NewRectangle(backgroundColor)
	return &scopeRenderer{
		scope:      s,
		background: bg,
		objects:    []fyne.CanvasObject{bg},
	}
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 250)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// plot is the drawing area and the data ranges mapped onto it.
type plot struct {
	x, y, width, height float32
	yMin, yMax          float64
	xMin, xMax          time.Time
}

// point maps a reading to widget coordinates, clamped to the plot area.
func (p plot) point(ts time.Time, v float64) fyne.Position {
	span := float32(p.xMax.Sub(p.xMin).Seconds())
	fx := float32(ts.Sub(p.xMin).Seconds()) / span
	fy := float32((v - p.yMin) / (p.yMax - p.yMin))
	return fyne.NewPos(
		p.x+clamp01(fx)*p.width,
		p.y+p.height-clamp01(fy)*p.height,
	)
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	readings := r.scope.readings
	stats := r.scope.stats
	unit := r.scope.unit
	p := plot{
		yMin: r.scope.yMin,
		yMax: r.scope.yMax,
		xMin: r.scope.xMin,
		xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.background}

	// Calculate margins
	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(30.0)
	marginBottom := float32(30.0)

	p.x, p.y = marginLeft, marginTop
	p.width = size.Width - marginLeft - marginRight
	p.height = size.Height - marginTop - marginBottom

	r.drawGrid(p, unit)
	if stats.Count > 0 {
		r.drawMedian(p, stats.Median)
	}
	r.drawReadings(p, readings)
	r.drawStats(p, stats, unit)
}

// drawGrid draws the horizontal value lines with their labels.
func (r *scopeRenderer) drawGrid(p plot, unit string) {
	numHLines := 5
	for i := 0; i < numHLines+1; i++ {
		y := p.y + float32(i)*p.height/float32(numHLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(p.x, y)
		line.Position2 = fyne.NewPos(p.x+p.width, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		value := p.yMax - float64(i)*(p.yMax-p.yMin)/float64(numHLines)
		text := canvas.NewText(formatValue(value, 1)+" "+unit, labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}
}

// drawMedian draws the window median as a horizontal line.
func (r *scopeRenderer) drawMedian(p plot, median float64) {
	pos := p.point(p.xMin, median)
	line := canvas.NewLine(medianColor)
	line.Position1 = fyne.NewPos(p.x, pos.Y)
	line.Position2 = fyne.NewPos(p.x+p.width, pos.Y)
	line.StrokeWidth = 1
	r.objects = append(r.objects, line)
}

// drawReadings connects successful readings and marks failed ones.
func (r *scopeRenderer) drawReadings(p plot, readings []monitor.Reading) {
	var prev *fyne.Position
	for _, reading := range readings {
		if reading.Err != nil {
			x := p.point(reading.Timestamp, p.yMin).X
			line := canvas.NewLine(failureColor)
			line.Position1 = fyne.NewPos(x, p.y)
			line.Position2 = fyne.NewPos(x, p.y+p.height)
			line.StrokeWidth = 1
			r.objects = append(r.objects, line)
			prev = nil
			continue
		}

		pos := p.point(reading.Timestamp, reading.Value)
		if prev != nil {
			line := canvas.NewLine(valueColor)
			line.Position1 = *prev
			line.Position2 = pos
			line.StrokeWidth = 1.5
			r.objects = append(r.objects, line)
		}
		dot := canvas.NewCircle(valueColor)
		dot.Resize(fyne.NewSize(4, 4))
		dot.Move(pos.SubtractXY(2, 2))
		r.objects = append(r.objects, dot)
		prev = &pos
	}
}

// drawStats draws the window summary above the plot.
func (r *scopeRenderer) drawStats(p plot, st monitor.Stats, unit string) {
	s := "no readings"
	if st.Count > 0 {
		s = "min " + formatValue(st.Min, 2) +
			"  median " + formatValue(st.Median, 2) +
			"  max " + formatValue(st.Max, 2) + " " + unit
	}
	if st.Failed > 0 {
		s += "  (" + strconv.Itoa(st.Failed) + " failed)"
	}
	text := canvas.NewText(s, labelColor)
	text.TextSize = 12
	text.Move(fyne.NewPos(p.x, 8))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatValue(v float64, decimals int) string {
	return strconv.FormatFloat(float64(units.Round32(float32(v), decimals)), 'f', decimals, 32)
}
