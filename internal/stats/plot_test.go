package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/verte-zerg/overtype/internal/model"
)

func TestPlotSeriesRisingLine(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Rising", []Series{{Name: "WPM", Values: []float64{30, 35, 40, 45, 50, 55, 60, 65, 70, 75}}}, PlotOptions{Width: 10, Height: 2})
	if err != nil {
		t.Fatalf("plot: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	// title, range, two canvas rows, legend, blank line
	if len(lines) < 6 || lines[0] != "Rising" {
		t.Fatalf("unexpected plot:\n%s", buf.String())
	}
	if lines[1] != "WPM: min=30.00 max=75.00" {
		t.Fatalf("range line = %q", lines[1])
	}
	axis := axisLabelWidth + len([]rune(axisSeparator))
	top := []rune(lines[2])
	bottom := []rune(lines[3])
	if len(top) != axis+10 || len(bottom) != axis+10 {
		t.Fatalf("rows are %d and %d runes wide, want %d", len(top), len(bottom), axis+10)
	}
	if !strings.HasPrefix(lines[2], "max") || !strings.HasPrefix(lines[3], "min") {
		t.Fatalf("missing axis labels:\n%s", buf.String())
	}
	if bottom[axis] == blankCell || top[len(top)-1] == blankCell {
		t.Fatalf("rising line should start bottom left and end top right:\n%s", buf.String())
	}
	if top[axis] != blankCell || bottom[len(bottom)-1] != blankCell {
		t.Fatalf("rising line leaked into the opposite corners:\n%s", buf.String())
	}
	if lines[4] != "Legend: WPM (solid)" {
		t.Fatalf("legend = %q", lines[4])
	}
}

func TestRenderTrendPlotNeedsHistory(t *testing.T) {
	one := []model.SessionAggregate{{SessionID: "a", WPM: 40, Accuracy: 95}}
	var buf bytes.Buffer
	if err := RenderTrendPlot(&buf, one, 3, PlotOptions{Width: 20, Height: 3}); err != nil {
		t.Fatalf("plot: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no plot for a single session, got:\n%s", buf.String())
	}

	two := append(one, model.SessionAggregate{SessionID: "b", WPM: 40, Accuracy: 97})
	if err := RenderTrendPlot(&buf, two, 1, PlotOptions{Width: 20, Height: 3}); err != nil {
		t.Fatalf("plot: %v", err)
	}
	out := buf.String()
	// A flat WPM series is widened around its value.
	for _, want := range []string{"Trends", "WPM: min=39.00 max=41.00", "Accuracy: min=95.00 max=97.00", "mid", "Legend: WPM (solid)  Accuracy (dashed)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in plot:\n%s", want, out)
		}
	}
}

func TestPlotWidthFor(t *testing.T) {
	if got := PlotWidthFor(80); got != 80-axisLabelWidth-len([]rune(axisSeparator)) {
		t.Fatalf("PlotWidthFor(80) = %d", got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("PlotWidthFor(0) = %d, want %d", got, minPlotWidth)
	}
	if got := PlotWidthFor(8); got != minPlotWidth {
		t.Fatalf("PlotWidthFor(8) = %d, want %d", got, minPlotWidth)
	}
}
