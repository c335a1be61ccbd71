package statsui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/overtype/internal/model"
)

type fakeSource struct {
	sessions []model.SessionAggregate
	chars    []model.CharAggregate
	lastCfg  model.StatsConfig
}

func (f *fakeSource) ListSessions(_ context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error) {
	f.lastCfg = cfg
	return f.sessions, nil
}

func (f *fakeSource) ListCharAggregatesForSessions(context.Context, []string) ([]model.CharAggregate, error) {
	return f.chars, nil
}

func (f *fakeSource) SkipBreakdown(context.Context, []string) (map[string]int, error) {
	return map[string]int{"emoji": 2}, nil
}

func newTestModel() (*Model, *fakeSource) {
	src := &fakeSource{
		sessions: []model.SessionAggregate{
			{SessionID: "a", WPM: 40, Accuracy: 95, Reason: model.ReasonCompleted, Correct: 40, DurationMs: 60000},
			{SessionID: "b", WPM: 50, Accuracy: 97, Reason: model.ReasonUserExit, Correct: 50, DurationMs: 60000},
		},
		chars: []model.CharAggregate{
			{Char: "a", Correct: 10, Incorrect: 1},
			{Char: " ", Correct: 20},
		},
	}
	m := NewModel(src, model.StatsConfig{CurveWindow: 20})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, src
}

func TestTabsRenderReport(t *testing.T) {
	m, _ := newTestModel()
	overview := m.View()
	for _, want := range []string{"Sessions: 2", "Trends", "WPM: min=40.00 max=45.00", "Legend:"} {
		if !strings.Contains(overview, want) {
			t.Fatalf("overview missing %q:\n%s", want, overview)
		}
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	view := m.View()
	if !strings.Contains(view, "<space>") || !strings.Contains(view, "90.91%") {
		t.Fatalf("char table missing rows:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.activeTab != tabOverview {
		t.Fatalf("activeTab = %d, want overview", m.activeTab)
	}
}

func TestFilterAppliesToQuery(t *testing.T) {
	m, src := newTestModel()
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.filterMode {
		t.Fatalf("expected filter mode")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("completed")})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if m.filterMode {
		t.Fatalf("filter mode should close on apply: %s", m.filterError)
	}
	if src.lastCfg.Reason != "completed" || src.lastCfg.Last != 5 {
		t.Fatalf("filters not applied: %+v", src.lastCfg)
	}
}

func TestFilterRejectsBadDate(t *testing.T) {
	m, _ := newTestModel()
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("yesterday")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode || m.filterError == "" {
		t.Fatalf("expected filter error, got mode=%v err=%q", m.filterMode, m.filterError)
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if got := nextCurveWindow(20); got != 50 {
		t.Fatalf("next(20) = %d", got)
	}
	if got := prevCurveWindow(20); got != 10 {
		t.Fatalf("prev(20) = %d", got)
	}
	if got := prevCurveWindow(5); got != 5 {
		t.Fatalf("prev(5) = %d", got)
	}
}
