package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/overtype/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "overtype.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return st
}

func summary(id string, ended time.Time, reason string) model.Summary {
	return model.Summary{
		Snapshot: model.Snapshot{
			WPM:                 40,
			Accuracy:            75,
			CorrectCharacters:   3,
			IncorrectCharacters: 1,
			SkippedCharacters:   2,
			TotalKeystrokes:     4,
		},
		SessionID:     id,
		Reason:        reason,
		Mode:          model.ModeOverlay,
		Source:        "page.html",
		Excerpt:       "cat",
		StartedAt:     ended.Add(-30 * time.Second),
		EndedAt:       ended,
		ContentLength: 5,
		Position:      5,
		SkipsByReason: map[string]int{model.SkipShortcut: 1, model.SkipParagraph: 1},
		CharStats: []model.CharStats{
			{Char: "c", Correct: 1, LatencySumMs: 0},
			{Char: "a", Correct: 1, Incorrect: 1, LatencySumMs: 200, LatencyCount: 1},
		},
	}
}

func TestInsertAndListSessions(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, reason := range []string{model.ReasonCompleted, model.ReasonUserExit, model.ReasonCompleted} {
		id := string(rune('a' + i))
		if err := st.SaveSummary(ctx, summary(id, base.Add(time.Duration(i)*time.Hour), reason)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	all, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].SessionID != "a" || all[2].SessionID != "c" {
		t.Fatalf("unexpected sessions %+v", all)
	}
	if all[0].DurationMs != 30000 || all[0].WPM != 40 || all[0].Mode != model.ModeOverlay || all[0].Excerpt != "cat" {
		t.Fatalf("unexpected row %+v", all[0])
	}

	completed, err := st.ListSessions(ctx, model.StatsConfig{Reason: model.ReasonCompleted, Last: 1})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].SessionID != "c" {
		t.Fatalf("expected last completed session, got %+v", completed)
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListSessions(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent session, got %d", len(recent))
	}
}

func TestCharAggregatesAndSkips(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	now := time.Now().UTC()
	for _, id := range []string{"x", "y"} {
		if err := st.InsertSummary(ctx, summary(id, now, model.ReasonCompleted)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	aggs, err := st.ListCharAggregatesForSessions(ctx, []string{"x", "y"})
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 2 || aggs[0].Char != "a" || aggs[0].Incorrect != 2 || aggs[0].LatencySumMs != 400 {
		t.Fatalf("unexpected aggregates %+v", aggs)
	}

	skips, err := st.SkipBreakdown(ctx, []string{"x"})
	if err != nil {
		t.Fatalf("skips: %v", err)
	}
	if skips[model.SkipShortcut] != 1 || skips[model.SkipParagraph] != 1 {
		t.Fatalf("unexpected skip breakdown %v", skips)
	}

	if got, _ := st.ListCharAggregatesForSessions(ctx, nil); got != nil {
		t.Fatalf("expected nil for no sessions")
	}
}

func TestInsertSummaryRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	sum := summary("dup", time.Now(), model.ReasonCompleted)
	if err := st.InsertSummary(ctx, sum); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertSummary(ctx, sum); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
	// The failed insert must not leave partial skip rows behind.
	skips, err := st.SkipBreakdown(ctx, []string{"dup"})
	if err != nil {
		t.Fatalf("skips: %v", err)
	}
	if skips[model.SkipShortcut] != 1 {
		t.Fatalf("expected rollback to keep original rows, got %v", skips)
	}
	if err := st.InsertSummary(ctx, model.Summary{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}
