package metrics

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLifecycleGuards(t *testing.T) {
	e := New(3)
	if err := e.RecordKeystroke(true, 'a', 'a', 0); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	e.Reset()
	if err := e.Start(); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
	e.Summary()
	if err := e.RecordSkip("shortcut", 0, 'a', 1); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after summary, got %v", err)
	}
}

func TestScenarioOneCorrection(t *testing.T) {
	e := New(3)
	_ = e.Start()
	_ = e.RecordKeystroke(true, 'c', 'c', 0)
	_ = e.RecordKeystroke(false, 'a', 'x', 1)
	_ = e.RecordKeystroke(true, 'a', 'a', 1)
	_ = e.RecordKeystroke(true, 't', 't', 2)
	s := e.Summary()
	if s.CorrectCharacters != 3 || s.IncorrectCharacters != 1 {
		t.Fatalf("unexpected counts %+v", s.Snapshot)
	}
	if s.Accuracy != 75 {
		t.Fatalf("expected accuracy 75, got %v", s.Accuracy)
	}
	if len(s.Errors) != 1 || s.Errors[0].Position != 1 {
		t.Fatalf("unexpected error log %+v", s.Errors)
	}
	if s.TotalKeystrokes != 4 || len(s.Keystrokes) != 4 {
		t.Fatalf("unexpected keystroke history %+v", s.Keystrokes)
	}
}

func TestSkipsOnlyIsVacuouslyAccurate(t *testing.T) {
	e := New(5)
	_ = e.Start()
	_ = e.RecordSkip("shortcut", 0, 'a', 1)
	_ = e.RecordSkip("shortcut", 1, 'b', 1)
	if got := e.Accuracy(); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	cur := e.Current()
	if cur.SkippedCharacters != 2 || !cur.Active {
		t.Fatalf("unexpected snapshot %+v", cur)
	}
	if s := e.Summary(); s.SkipsByReason["shortcut"] != 2 {
		t.Fatalf("unexpected skip breakdown %v", s.SkipsByReason)
	}
}

func TestAccuracyIgnoresSkips(t *testing.T) {
	typed := []bool{true, false, true, true, false, true}
	run := func(withSkips bool) float64 {
		e := New(20)
		_ = e.Start()
		for i, ok := range typed {
			if withSkips {
				_ = e.RecordSkip("paragraph", i, 'x', i+1)
			}
			_ = e.RecordKeystroke(ok, 'a', 'a', i)
		}
		return e.Accuracy()
	}
	if a, b := run(false), run(true); a != b {
		t.Fatalf("skips changed accuracy: %v vs %v", a, b)
	}
	if got := Accuracy(2, 1); got != 66.67 {
		t.Fatalf("expected two-decimal rounding, got %v", got)
	}
}

func TestWPM(t *testing.T) {
	tests := []struct {
		correct int
		elapsed time.Duration
		want    int
	}{
		{0, time.Minute, 0},
		{50, 0, 0},
		{50, -time.Second, 0},
		{50, time.Minute, 10},
		{27, 30 * time.Second, 11},
	}
	for _, tc := range tests {
		if got := WPM(tc.correct, tc.elapsed); got != tc.want {
			t.Fatalf("WPM(%d, %v) = %d, want %d", tc.correct, tc.elapsed, got, tc.want)
		}
	}
}

func TestPauseExcludesHiddenTime(t *testing.T) {
	clock := newClock()
	e := New(10, WithClock(clock.now))
	_ = e.Start()
	for i := 0; i < 10; i++ {
		_ = e.RecordKeystroke(true, 'a', 'a', i)
	}
	clock.advance(30 * time.Second)
	e.Pause()
	clock.advance(10 * time.Minute)
	if got := e.Current().ElapsedSeconds; got != 30 {
		t.Fatalf("expected paused clock at 30s, got %v", got)
	}
	e.Resume()
	clock.advance(30 * time.Second)
	s := e.Summary()
	if s.ElapsedSeconds != 60 {
		t.Fatalf("expected 60s elapsed, got %v", s.ElapsedSeconds)
	}
	if s.WPM != 2 {
		t.Fatalf("expected 2 WPM, got %d", s.WPM)
	}
	if s.Active {
		t.Fatalf("summary must be inactive")
	}
}

func TestSummaryIsFrozen(t *testing.T) {
	clock := newClock()
	e := New(4, WithClock(clock.now))
	_ = e.Start()
	_ = e.RecordKeystroke(true, 'a', 'a', 0)
	clock.advance(time.Second)
	_ = e.RecordKeystroke(true, 'b', 'b', 1)
	first := e.Summary()
	clock.advance(time.Hour)
	first.SkipsByReason["x"] = 9
	second := e.Summary()
	if !second.EndedAt.Equal(first.EndedAt) || second.ElapsedSeconds != first.ElapsedSeconds {
		t.Fatalf("summary changed between calls")
	}
	if _, ok := second.SkipsByReason["x"]; ok {
		t.Fatalf("summary map shared with caller")
	}
	if len(second.CharStats) != 2 || second.CharStats[1].LatencyCount != 1 || second.CharStats[1].LatencySumMs != 1000 {
		t.Fatalf("unexpected char stats %+v", second.CharStats)
	}
	if cur := e.Current(); cur.Active || cur.CorrectCharacters != 0 {
		t.Fatalf("expected zeroed snapshot after end, got %+v", cur)
	}
}
