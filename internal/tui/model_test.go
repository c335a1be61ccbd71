package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/overtype/internal/engine"
	"github.com/verte-zerg/overtype/internal/input"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

type fakeHistory []model.SessionAggregate

func (f fakeHistory) ListSessions(context.Context, model.StatsConfig) ([]model.SessionAggregate, error) {
	return f, nil
}

func newTestModel(t *testing.T, history History) *Model {
	t.Helper()
	doc, err := page.ParseString(`<html><body><p id="t">abcd</p></body></html>`, "page.html")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	eng := engine.New(doc, engine.Options{ValidationInterval: -1})
	t.Cleanup(eng.Close)
	req := &engine.SelectionRequest{XPath: "//p[@id='t']"}
	if _, err := eng.ActivateSelectionMode(context.Background(), req); err != nil {
		t.Fatalf("activate: %v", err)
	}
	m := NewModel(Options{Engine: eng, Request: req, History: history})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTranslateKeys(t *testing.T) {
	cases := []struct {
		name string
		msg  tea.KeyMsg
		want []input.Key
	}{
		{"runes", runes("ab"), []input.Key{input.Char('a'), input.Char('b')}},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, []input.Key{input.Char(' ')}},
		{"shift tab", tea.KeyMsg{Type: tea.KeyShiftTab}, []input.Key{{Code: input.CodeTab, Shift: true}}},
		{"escape", tea.KeyMsg{Type: tea.KeyEsc}, []input.Key{{Code: input.CodeEscape}}},
		{"ctrl", tea.KeyMsg{Type: tea.KeyCtrlA}, []input.Key{{Code: input.CodeOther, Ctrl: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.msg)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d keys, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("key %d: got %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestRenderFooterFormats(t *testing.T) {
	m := newTestModel(t, fakeHistory{
		{SessionID: "a", WPM: 60, Accuracy: 95},
		{SessionID: "b", WPM: 72, Accuracy: 97.8},
	})
	m.Update(runes("ab"))

	out := m.renderFooter()
	if !containsAll(out, []string{"Progress 50%", "Last 72 WPM", "97.8%", "All-time 66.0 WPM", "96.4%"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func TestTypingThroughShowsSummary(t *testing.T) {
	m := newTestModel(t, nil)
	m.Update(runes("abxcd"))

	sum, ok := m.Summary()
	if !ok {
		t.Fatalf("expected summary after completing the text")
	}
	if sum.Reason != model.ReasonCompleted {
		t.Fatalf("reason = %q", sum.Reason)
	}
	if sum.IncorrectCharacters != 1 {
		t.Fatalf("incorrect = %d, want 1", sum.IncorrectCharacters)
	}
	if !strings.Contains(m.View(), "Done!") {
		t.Fatalf("summary view missing title:\n%s", m.View())
	}
	if !m.hasLast || m.allCount != 1 {
		t.Fatalf("footer stats not updated: last=%v count=%d", m.hasLast, m.allCount)
	}
}

func TestRestartAfterSummary(t *testing.T) {
	m := newTestModel(t, nil)
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if sum, ok := m.Summary(); !ok || sum.Reason != model.ReasonUserExit {
		t.Fatalf("expected user exit summary, got %+v %v", sum, ok)
	}

	m.Update(runes("r"))
	if _, ok := m.Summary(); ok {
		t.Fatalf("summary should clear on restart")
	}
	if m.eng.Current() == nil {
		t.Fatalf("expected a new session")
	}
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("ctrl+c should quit")
	}
	if _, ok := m.Summary(); !ok {
		t.Fatalf("ctrl+c should end the running session")
	}
}

func TestNoticeExpires(t *testing.T) {
	m := newTestModel(t, nil)
	now := time.Unix(100, 0)
	m.now = func() time.Time { return now }
	m.Update(NoticeMsg("the page changed under the overlay"))
	if !strings.Contains(m.View(), "page changed") {
		t.Fatalf("notice not shown")
	}
	now = now.Add(noticeTTL + time.Second)
	if strings.Contains(m.View(), "page changed") {
		t.Fatalf("notice should expire")
	}
}

func TestSettingsMsgUpdatesCadence(t *testing.T) {
	m := newTestModel(t, nil)
	m.Update(SettingsMsg{ShowHints: false, UpdateFrequencyMs: 250})
	if m.every != 250*time.Millisecond || m.showHints {
		t.Fatalf("settings not applied: every=%v hints=%v", m.every, m.showHints)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
