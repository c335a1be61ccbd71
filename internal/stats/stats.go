// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/overtype/internal/model"
)

const sparkChars = " .:-=+*#%@"

// SessionMetrics computes WPM, CPM, and accuracy for a session.
func SessionMetrics(correct, incorrect int, durationMs int64) (wpm, cpm, accuracy float64) {
	if durationMs <= 0 {
		return 0, 0, 0
	}
	minutes := float64(durationMs) / 60000.0
	if minutes <= 0 {
		return 0, 0, 0
	}
	wpm = (float64(correct) / 5.0) / minutes
	cpm = float64(correct) / minutes
	den := float64(correct + incorrect)
	if den > 0 {
		accuracy = float64(correct) / den
	}
	return wpm, cpm, accuracy
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Overview aggregates a list of sessions.
type Overview struct {
	Sessions    int            `json:"sessions" yaml:"sessions"`
	Completed   int            `json:"completed" yaml:"completed"`
	AvgWPM      float64        `json:"avg_wpm" yaml:"avg_wpm"`
	BestWPM     int            `json:"best_wpm" yaml:"best_wpm"`
	AvgCPM      float64        `json:"avg_cpm" yaml:"avg_cpm"`
	AvgAccuracy float64        `json:"avg_accuracy" yaml:"avg_accuracy"`
	Skipped     int            `json:"skipped" yaml:"skipped"`
	Reasons     map[string]int `json:"reasons" yaml:"reasons"`
}

// Summarize computes the overview for sessions.
func Summarize(sessions []model.SessionAggregate) Overview {
	ov := Overview{Sessions: len(sessions), Reasons: map[string]int{}}
	if len(sessions) == 0 {
		return ov
	}
	var totalWPM, totalCPM, totalAcc float64
	for _, s := range sessions {
		_, cpm, _ := SessionMetrics(s.Correct, s.Incorrect, s.DurationMs)
		totalWPM += float64(s.WPM)
		totalCPM += cpm
		totalAcc += s.Accuracy
		if s.WPM > ov.BestWPM {
			ov.BestWPM = s.WPM
		}
		if s.Reason == model.ReasonCompleted {
			ov.Completed++
		}
		ov.Skipped += s.Skipped
		ov.Reasons[s.Reason]++
	}
	count := float64(len(sessions))
	ov.AvgWPM = totalWPM / count
	ov.AvgCPM = totalCPM / count
	ov.AvgAccuracy = totalAcc / count
	return ov
}

// RenderSummary prints a summary table for sessions.
func RenderSummary(w io.Writer, sessions []model.SessionAggregate) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	ov := Summarize(sessions)
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d (%d completed)", ov.Sessions, ov.Completed),
		fmt.Sprintf("Avg WPM: %.2f", ov.AvgWPM),
		fmt.Sprintf("Best WPM: %d", ov.BestWPM),
		fmt.Sprintf("Avg CPM: %.2f", ov.AvgCPM),
		fmt.Sprintf("Avg Accuracy: %.2f%%", ov.AvgAccuracy),
		fmt.Sprintf("Skipped characters: %d", ov.Skipped),
	}
	reasons := make([]string, 0, len(ov.Reasons))
	for r := range ov.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", r, ov.Reasons[r])
	}
	lines = append(lines, "Endings: "+strings.Join(parts, " "), "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints WPM and accuracy trends as sparklines no wider than
// width columns. Zero width means no limit.
func RenderCurves(w io.Writer, sessions []model.SessionAggregate, window, width int) error {
	if len(sessions) < 2 {
		return nil
	}
	if width > 0 && len(sessions) > width-labelWidth {
		if keep := width - labelWidth; keep > 1 {
			sessions = sessions[len(sessions)-keep:]
		}
	}
	wpms := make([]float64, len(sessions))
	accs := make([]float64, len(sessions))
	for i, s := range sessions {
		wpms[i] = float64(s.WPM)
		accs[i] = s.Accuracy
	}
	lines := []string{
		"Trends",
		fmt.Sprintf("%-*s%s", labelWidth, "WPM", Sparkline(MovingAverage(wpms, window))),
		fmt.Sprintf("%-*s%s", labelWidth, "Accuracy", Sparkline(MovingAverage(accs, window))),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

const labelWidth = 10

// RenderCharTable prints per-character aggregates, weakest first.
func RenderCharTable(w io.Writer, aggs []model.CharAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No character stats found.")
		return err
	}
	type row struct {
		char      string
		acc       float64
		latency   float64
		correct   int
		incorrect int
	}
	rows := make([]row, 0, len(aggs))
	for _, agg := range aggs {
		lat := 0.0
		if agg.LatencyCount > 0 {
			lat = float64(agg.LatencySumMs) / float64(agg.LatencyCount)
		}
		rows = append(rows, row{
			char:      charLabel(agg.Char),
			acc:       accuracy(agg),
			latency:   lat,
			correct:   agg.Correct,
			incorrect: agg.Incorrect,
		})
	}
	// Sort by lowest accuracy.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].acc == rows[j].acc {
			return rows[i].char < rows[j].char
		}
		return rows[i].acc < rows[j].acc
	})

	if _, err := fmt.Fprintln(w, "Per-Character (Windowed)"); err != nil {
		return err
	}

	headers := []string{"Char", "Accuracy", "Avg Latency (ms)", "Correct", "Incorrect"}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, []string{
			r.char,
			fmt.Sprintf("%.2f%%", r.acc*100),
			fmt.Sprintf("%.1f", r.latency),
			fmt.Sprintf("%d", r.correct),
			fmt.Sprintf("%d", r.incorrect),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true, 4: true}
	lines := formatTable(headers, tableRows, rightAlign)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return nil
}

// RenderSkips prints skipped characters per skip reason.
func RenderSkips(w io.Writer, skips map[string]int) error {
	if len(skips) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(skips))
	for r := range skips {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	rows := make([][]string, len(reasons))
	for i, r := range reasons {
		rows[i] = []string{r, fmt.Sprintf("%d", skips[r])}
	}
	if _, err := fmt.Fprintln(w, "Skips"); err != nil {
		return err
	}
	for _, line := range formatTable([]string{"Reason", "Characters"}, rows, map[int]bool{1: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderRecent lists the most recent sessions with their excerpts.
func RenderRecent(w io.Writer, sessions []model.SessionAggregate, n int) error {
	if len(sessions) == 0 || n <= 0 {
		return nil
	}
	if len(sessions) > n {
		sessions = sessions[len(sessions)-n:]
	}
	rows := make([][]string, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		rows = append(rows, []string{
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			s.Reason,
			fmt.Sprintf("%d", s.WPM),
			fmt.Sprintf("%.2f%%", s.Accuracy),
			truncate(s.Excerpt, 40),
		})
	}
	if _, err := fmt.Fprintln(w, "Recent"); err != nil {
		return err
	}
	for _, line := range formatTable([]string{"Ended", "Reason", "WPM", "Accuracy", "Text"}, rows, map[int]bool{2: true, 3: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func charLabel(ch string) string {
	switch ch {
	case " ":
		return "<space>"
	case "\n":
		return "<enter>"
	case "\t":
		return "<tab>"
	}
	return ch
}
