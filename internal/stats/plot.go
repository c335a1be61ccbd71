package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/overtype/internal/model"
)

// Series is one named line on a trend plot.
type Series struct {
	Name   string
	Values []float64
}

// PlotOptions sizes a plot. Zero Width fits the terminal and zero Height
// uses defaultPlotHeight.
type PlotOptions struct {
	Width  int
	Height int
	Color  bool
}

const (
	defaultPlotHeight = 8
	minPlotWidth      = 10
	axisSeparator     = " │ "
	axisLabelWidth    = 3
	blankCell         = '⠀'
)

// dash patterns tell overlapping series apart without color.
var dashes = []struct {
	name       string
	period, on int
}{
	{"solid", 1, 1},
	{"dashed", 6, 3},
	{"dotted", 4, 1},
}

var seriesColors = []lipgloss.Color{"#5FAFD7", "#D787D7", "#D7AF5F"}

// SessionTrends returns moving averages of WPM and accuracy, oldest first.
func SessionTrends(sessions []model.SessionAggregate, window int) []Series {
	wpms := make([]float64, len(sessions))
	accs := make([]float64, len(sessions))
	for i, s := range sessions {
		wpms[i] = float64(s.WPM)
		accs[i] = s.Accuracy
	}
	return []Series{
		{Name: "WPM", Values: MovingAverage(wpms, window)},
		{Name: "Accuracy", Values: MovingAverage(accs, window)},
	}
}

// RenderTrendPlot draws WPM and accuracy trends on a braille canvas. It
// needs at least two sessions.
func RenderTrendPlot(w io.Writer, sessions []model.SessionAggregate, window int, opts PlotOptions) error {
	if len(sessions) < 2 {
		return nil
	}
	return PlotSeries(w, "Trends", SessionTrends(sessions, window), opts)
}

// PlotWidthFor is the canvas width that fits totalWidth columns with the axis.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisLabelWidth-len([]rune(axisSeparator)), minPlotWidth)
}

// PlotSeries renders every non-empty series on a shared canvas. Each series
// is scaled to its own range; the ranges are printed above the canvas.
func PlotSeries(w io.Writer, title string, series []Series, opts PlotOptions) error {
	var lines []Series
	for _, s := range series {
		if len(s.Values) > 0 {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	width := opts.Width
	if width <= 0 {
		width = PlotWidthFor(TerminalWidth())
	}
	width = max(width, minPlotWidth)
	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}

	var out []string
	if title != "" {
		out = append(out, title)
	}
	layers := make([]*canvas, len(lines))
	for i, s := range lines {
		values := resample(s.Values, width)
		lo, hi := bounds(values)
		out = append(out, fmt.Sprintf("%s: min=%.2f max=%.2f", s.Name, lo, hi))
		layers[i] = newCanvas(width, height)
		layers[i].polyline(values, lo, hi, dashes[i%len(dashes)].period, dashes[i%len(dashes)].on)
	}

	for y := 0; y < height; y++ {
		var row strings.Builder
		fmt.Fprintf(&row, "%*s%s", axisLabelWidth, axisLabel(y, height), axisSeparator)
		for x := 0; x < width; x++ {
			mask, owner := uint8(0), -1
			for i, c := range layers {
				if m := c.cells[y][x]; m != 0 {
					mask |= m
					if owner < 0 {
						owner = i
					}
				}
			}
			cell := string(blankCell + rune(mask))
			if opts.Color && owner >= 0 {
				cell = lipgloss.NewStyle().Foreground(seriesColors[owner%len(seriesColors)]).Render(cell)
			}
			row.WriteString(cell)
		}
		out = append(out, row.String())
	}

	legend := make([]string, len(lines))
	for i, s := range lines {
		legend[i] = fmt.Sprintf("%s (%s)", s.Name, dashes[i%len(dashes)].name)
		if opts.Color {
			legend[i] = lipgloss.NewStyle().Foreground(seriesColors[i%len(seriesColors)]).Render(legend[i])
		}
	}
	out = append(out, "Legend: "+strings.Join(legend, "  "), "")
	for _, text := range out {
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	return nil
}

func axisLabel(y, height int) string {
	switch {
	case y == 0:
		return "max"
	case y == height-1:
		return "min"
	case height > 2 && y == height/2:
		return "mid"
	}
	return ""
}

// bounds widens a flat range so a constant series sits mid-canvas.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		lo--
		hi++
	}
	return lo, hi
}

// resample stretches or averages values into exactly n points.
func resample(values []float64, n int) []float64 {
	out := make([]float64, n)
	switch {
	case len(values) == n:
		copy(out, values)
	case len(values) > n:
		for i := range out {
			from := i * len(values) / n
			to := max((i+1)*len(values)/n, from+1)
			var sum float64
			for _, v := range values[from:to] {
				sum += v
			}
			out[i] = sum / float64(to-from)
		}
	case len(values) == 1 || n == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(len(values)-1) / float64(n-1)
			idx := int(pos)
			if idx >= len(values)-1 {
				out[i] = values[len(values)-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

// canvas holds braille dot masks, two dots wide and four tall per cell.
type canvas struct {
	cells [][]uint8
	dotsX int
	dotsY int
}

func newCanvas(width, height int) *canvas {
	cells := make([][]uint8, height)
	for i := range cells {
		cells[i] = make([]uint8, width)
	}
	return &canvas{cells: cells, dotsX: width * 2, dotsY: height * 4}
}

// Dot bit per (column, row) inside a braille cell.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func (c *canvas) set(x, y int) {
	if x < 0 || y < 0 || x >= c.dotsX || y >= c.dotsY {
		return
	}
	c.cells[y/4][x/2] |= dotBits[x%2][y%4]
}

func (c *canvas) row(v, lo, hi float64) int {
	if c.dotsY <= 1 {
		return 0
	}
	r := int(math.Round((1 - (v-lo)/(hi-lo)) * float64(c.dotsY-1)))
	return min(max(r, 0), c.dotsY-1)
}

// polyline joins one point per cell column, keeping dots where
// x%period < on.
func (c *canvas) polyline(values []float64, lo, hi float64, period, on int) {
	plot := func(x, y int) {
		if period <= 1 || x%period < on {
			c.set(x, y)
		}
	}
	px, py := -1, -1
	for i, v := range values {
		x, y := i*2, c.row(v, lo, hi)
		if px < 0 {
			plot(x, y)
		} else {
			line(px, py, x, y, plot)
		}
		px, py = x, y
	}
}

// line walks a Bresenham segment from (x0, y0) to (x1, y1) inclusive.
func line(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx, sx := abs(x1-x0), 1
	if x0 > x1 {
		sx = -1
	}
	dy, sy := -abs(y1-y0), 1
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
