package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/verte-zerg/overtype/internal/model"
)

func TestSessionMetrics(t *testing.T) {
	wpm, cpm, acc := SessionMetrics(50, 0, 60000)
	if wpm != 10 || cpm != 50 || acc != 1 {
		t.Fatalf("SessionMetrics = %v %v %v", wpm, cpm, acc)
	}
	if wpm, _, _ := SessionMetrics(10, 0, 0); wpm != 0 {
		t.Fatalf("expected zero for empty duration")
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 3, 5, 7}, 2)
	want := []float64{1, 2, 4, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MovingAverage[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSparklineFlat(t *testing.T) {
	if got := Sparkline([]float64{2, 2, 2}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
}

func TestSummarize(t *testing.T) {
	sessions := []model.SessionAggregate{
		{Reason: model.ReasonCompleted, WPM: 30, Accuracy: 100, Correct: 10, DurationMs: 60000, Skipped: 2},
		{Reason: model.ReasonUserExit, WPM: 10, Accuracy: 50, Correct: 5, Incorrect: 5, DurationMs: 30000},
	}
	ov := Summarize(sessions)
	if ov.Sessions != 2 || ov.Completed != 1 || ov.BestWPM != 30 || ov.AvgWPM != 20 || ov.AvgAccuracy != 75 {
		t.Fatalf("unexpected overview %+v", ov)
	}
	if ov.Skipped != 2 || ov.Reasons[model.ReasonUserExit] != 1 {
		t.Fatalf("unexpected breakdown %+v", ov)
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No sessions found." {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRenderCurvesFitsWidth(t *testing.T) {
	sessions := make([]model.SessionAggregate, 50)
	for i := range sessions {
		sessions[i] = model.SessionAggregate{WPM: i, Accuracy: float64(i)}
	}
	var buf bytes.Buffer
	if err := RenderCurves(&buf, sessions, 1, 30); err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if len(line) > 30 {
			t.Fatalf("line wider than 30 columns: %q", line)
		}
	}
}

func TestSelectWeakCharsSkipsPerfect(t *testing.T) {
	aggs := []model.CharAggregate{
		{Char: "a", Correct: 5},
		{Char: "b", Correct: 1, Incorrect: 1},
		{Char: "c", Correct: 3, Incorrect: 1},
	}
	got := SelectWeakChars(aggs, 3)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("unexpected weak chars %v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("one\ntwo   three", 9); got != "one two …" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
