package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/verte-zerg/overtype/internal/model"
)

// Source is the persistence the report reads from.
type Source interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error)
	ListCharAggregatesForSessions(ctx context.Context, sessionIDs []string) ([]model.CharAggregate, error)
	SkipBreakdown(ctx context.Context, sessionIDs []string) (map[string]int, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Overview         Overview                 `json:"overview" yaml:"overview"`
	Sessions         []model.SessionAggregate `json:"sessions" yaml:"sessions"`
	WindowSessionIDs []string                 `json:"-" yaml:"-"`
	CharAggsAll      []model.CharAggregate    `json:"chars" yaml:"chars"`
	CharAggsWindow   []model.CharAggregate    `json:"chars_window" yaml:"chars_window"`
	Skips            map[string]int           `json:"skips" yaml:"skips"`
	WeakChars        []string                 `json:"weak_chars" yaml:"weak_chars"`
	TopChars         []string                 `json:"top_chars" yaml:"top_chars"`
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st Source, cfg model.StatsConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}

	allIDs := sessionIDs(sessions)
	windowIDs := lastSessionIDs(sessions, cfg.CurveWindow)
	charAggsAll, err := st.ListCharAggregatesForSessions(ctx, allIDs)
	if err != nil {
		return Report{}, err
	}
	charAggsWindow, err := st.ListCharAggregatesForSessions(ctx, windowIDs)
	if err != nil {
		return Report{}, err
	}
	skips, err := st.SkipBreakdown(ctx, allIDs)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Overview:         Summarize(sessions),
		Sessions:         sessions,
		WindowSessionIDs: windowIDs,
		CharAggsAll:      charAggsAll,
		CharAggsWindow:   charAggsWindow,
		Skips:            skips,
		WeakChars:        SelectWeakChars(charAggsWindow, 5),
		TopChars:         TopTypedChars(charAggsAll, 5),
	}, nil
}

// Render writes the text report sized for width columns.
func (r Report) Render(w io.Writer, width int) error {
	if err := RenderSummary(w, r.Sessions); err != nil {
		return err
	}
	if len(r.Sessions) == 0 {
		return nil
	}
	if err := RenderCurves(w, r.Sessions, 3, width); err != nil {
		return err
	}
	if err := RenderRecent(w, r.Sessions, 5); err != nil {
		return err
	}
	if err := RenderSkips(w, r.Skips); err != nil {
		return err
	}
	if err := RenderCharTable(w, r.CharAggsWindow); err != nil {
		return err
	}
	if len(r.WeakChars) > 0 {
		labels := make([]string, len(r.WeakChars))
		for i, c := range r.WeakChars {
			labels[i] = charLabel(c)
		}
		if _, err := fmt.Fprintf(w, "Weakest: %v\n", labels); err != nil {
			return err
		}
	}
	if len(r.TopChars) > 0 {
		if _, err := fmt.Fprintf(w, "Most typed: %v\n", r.TopChars); err != nil {
			return err
		}
	}
	return nil
}

func sessionIDs(sessions []model.SessionAggregate) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}
	return ids
}

func lastSessionIDs(sessions []model.SessionAggregate, window int) []string {
	if window <= 0 || len(sessions) <= window {
		return sessionIDs(sessions)
	}
	return sessionIDs(sessions[len(sessions)-window:])
}
