// Package tui provides the Bubble Tea typing interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/verte-zerg/overtype/internal/engine"
	"github.com/verte-zerg/overtype/internal/input"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/settings"
	statsPkg "github.com/verte-zerg/overtype/internal/stats"
)

// History provides past sessions for the footer.
type History interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error)
}

// NoticeMsg shows a transient message under the practice text.
type NoticeMsg string

// SettingsMsg carries changed settings into the program.
type SettingsMsg settings.Values

type tickMsg time.Time

const noticeTTL = 4 * time.Second

// Options configures the model.
type Options struct {
	Engine *engine.Engine
	// Request restarts practice on the same text after a session ends.
	Request     *engine.SelectionRequest
	History     History
	UpdateEvery time.Duration
	ShowHints   bool
	Logger      *slog.Logger
}

// Model implements the Bubble Tea typing UI.
type Model struct {
	eng     *engine.Engine
	req     *engine.SelectionRequest
	history History
	log     *slog.Logger

	keys keyMap
	help help.Model

	width  int
	height int
	every  time.Duration

	showHints   bool
	notice      string
	noticeUntil time.Time
	now         func() time.Time

	summary *model.Summary

	lastWPM int
	lastAcc float64
	hasLast bool

	allWPM   float64
	allAcc   float64
	allCount int
}

var (
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	summaryStyle = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs a typing TUI model.
func NewModel(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UpdateEvery <= 0 {
		opts.UpdateEvery = 100 * time.Millisecond
	}
	m := &Model{
		eng:       opts.Engine,
		req:       opts.Request,
		history:   opts.History,
		log:       opts.Logger,
		keys:      defaultKeyMap(),
		help:      help.New(),
		every:     opts.UpdateEvery,
		showHints: opts.ShowHints,
		now:       time.Now,
	}
	m.loadFooterStats()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tickMsg:
		m.sync()
		return m, m.tick()
	case NoticeMsg:
		m.notice = string(msg)
		m.noticeUntil = m.now().Add(noticeTTL)
		return m, nil
	case SettingsMsg:
		if msg.UpdateFrequencyMs > 0 {
			m.every = time.Duration(msg.UpdateFrequencyMs) * time.Millisecond
		}
		m.showHints = msg.ShowHints
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if _, err := m.eng.EndSession(model.ReasonUserExit); err == nil {
				m.sync()
			}
			return m, tea.Quit
		}
		if m.eng.Current() != nil {
			m.handleKeys(msg)
			return m, nil
		}
		return m.handleSummaryKeys(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) {
	for _, k := range translate(msg) {
		_, err := m.eng.HandleKey(k)
		switch {
		case err == nil, errors.Is(err, input.ErrBusy):
		case errors.Is(err, engine.ErrNoSession):
			// The rest of a pasted burst arrived after completion.
			m.sync()
			return
		default:
			m.log.Warn("tui: keystroke failed", "error", err)
		}
	}
	m.sync()
}

func (m *Model) handleSummaryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Hints):
		m.showHints = !m.showHints
		var err error
		if m.showHints {
			err = m.eng.ShowHints(context.Background())
		} else {
			err = m.eng.HideHints(context.Background())
		}
		if err != nil {
			m.setNotice(err.Error())
		}
	case key.Matches(msg, m.keys.Restart):
		if m.req == nil {
			return m, nil
		}
		if _, err := m.eng.ActivateSelectionMode(context.Background(), m.req); err != nil {
			m.setNotice(err.Error())
			return m, nil
		}
		m.summary = nil
	}
	return m, nil
}

func (m *Model) setNotice(s string) {
	m.notice = s
	m.noticeUntil = m.now().Add(noticeTTL)
}

// sync picks up a session that ended since the last look, whatever ended it.
func (m *Model) sync() {
	if m.eng.Current() != nil || m.summary != nil {
		return
	}
	sum, ok := m.eng.LastSummary()
	if !ok {
		return
	}
	m.summary = &sum
	m.lastWPM = sum.WPM
	m.lastAcc = sum.Accuracy
	m.hasLast = true
	m.allWPM = (m.allWPM*float64(m.allCount) + float64(sum.WPM)) / float64(m.allCount+1)
	m.allAcc = (m.allAcc*float64(m.allCount) + sum.Accuracy) / float64(m.allCount+1)
	m.allCount++
}

// Summary returns the summary shown on the end screen, if any.
func (m *Model) Summary() (model.Summary, bool) {
	if m.summary == nil {
		return model.Summary{}, false
	}
	return *m.summary, true
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.summary != nil {
		return m.place(m.renderSummary())
	}
	c := m.eng.Current()
	if c == nil {
		return m.place(footerStyle.Render("Waiting for a selection…"))
	}
	contentWidth := int(float64(m.width) * 0.70)
	if m.width == 0 {
		contentWidth = 0
	} else if contentWidth < 1 {
		contentWidth = 1
	}
	content := c.View(contentWidth)
	if n := m.renderNotice(contentWidth); n != "" {
		content += "\n\n" + n
	}
	if m.width == 0 || m.height == 0 {
		return content
	}
	content = lipgloss.NewStyle().Width(contentWidth).Render(content)
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	bodyHeight := m.height - 1
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m *Model) renderNotice(width int) string {
	if m.notice == "" || m.now().After(m.noticeUntil) {
		return ""
	}
	text := m.notice
	if width > 0 {
		text = wordwrap.String(text, width)
	}
	return noticeStyle.Render(text)
}

func (m *Model) loadFooterStats() {
	if m.history == nil {
		return
	}
	sessions, err := m.history.ListSessions(context.Background(), model.StatsConfig{})
	if err != nil {
		m.log.Warn("tui: load session stats", "error", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	last := sessions[len(sessions)-1]
	m.lastWPM = last.WPM
	m.lastAcc = last.Accuracy
	m.hasLast = true

	ov := statsPkg.Summarize(sessions)
	m.allWPM = ov.AvgWPM
	m.allAcc = ov.AvgAccuracy
	m.allCount = ov.Sessions
}

func (m *Model) renderFooter() string {
	c := m.eng.Current()
	if c == nil {
		return ""
	}
	st := c.Status()
	progress := 0
	if st.Length > 0 {
		progress = int(float64(st.Position) / float64(st.Length) * 100)
	}
	segments := []string{
		fmt.Sprintf("Progress %d%%", progress),
		fmt.Sprintf("Now %d WPM · %.1f%%", st.Metrics.WPM, st.Metrics.Accuracy),
	}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %d WPM · %.1f%%", m.lastWPM, m.lastAcc))
	}
	if m.allCount > 0 {
		segments = append(segments, fmt.Sprintf("All-time %.1f WPM · %.1f%%", m.allWPM, m.allAcc))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func (m *Model) renderSummary() string {
	s := m.summary
	lines := []string{
		titleStyle.Render(endTitle(s.Reason)),
		"",
		fmt.Sprintf("WPM        %d", s.WPM),
		fmt.Sprintf("Accuracy   %.2f%%", s.Accuracy),
		fmt.Sprintf("Time       %.1fs", s.ElapsedSeconds),
		fmt.Sprintf("Typed      %d/%d", s.Position, s.ContentLength),
		fmt.Sprintf("Correct    %d", s.CorrectCharacters),
		fmt.Sprintf("Incorrect  %d", s.IncorrectCharacters),
		fmt.Sprintf("Skipped    %d", s.SkippedCharacters),
		"",
		fmt.Sprintf("Hints      %s", onOff(m.showHints)),
	}
	if len(s.TeardownErrors) > 0 {
		lines = append(lines, "", noticeStyle.Render(fmt.Sprintf("%d cleanup step(s) failed; see log", len(s.TeardownErrors))))
	}
	body := summaryStyle.Render(strings.Join(lines, "\n"))
	out := body + "\n" + m.help.View(m.keys)
	if n := m.renderNotice(m.width); n != "" {
		out += "\n" + n
	}
	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func endTitle(reason string) string {
	switch reason {
	case model.ReasonCompleted:
		return "Done!"
	case model.ReasonUserExit:
		return "Stopped"
	case model.ReasonContentChanged:
		return "The page changed"
	case model.ReasonRecoveryFailed:
		return "Overlay lost"
	default:
		return "Session ended (" + reason + ")"
	}
}
