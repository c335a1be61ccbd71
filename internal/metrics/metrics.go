// Package metrics keeps the counters and timers of one typing session.
package metrics

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/overtype/internal/model"
)

var (
	// ErrNotRunning is returned when recording outside a running session.
	ErrNotRunning = errors.New("metrics: session not running")
	// ErrAlreadyRunning is returned by Start on a running engine; Reset first.
	ErrAlreadyRunning = errors.New("metrics: session already running")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateEnded
)

type charStat struct {
	correct      int
	incorrect    int
	latencySumMs int64
	latencyCount int64
}

// Engine is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	now func() time.Time

	totalChars int
	state      state
	startedAt  time.Time
	endedAt    time.Time
	pausedAt   time.Time
	paused     time.Duration

	correct   int
	incorrect int
	skipped   int

	keystrokes    []model.KeystrokeEntry
	errors        []model.ErrorEntry
	skips         []model.SkipEntry
	skipsByReason map[string]int

	charStats     map[rune]*charStat
	prevCorrectAt time.Time

	summary *model.Summary
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an idle engine for content of totalChars characters.
func New(totalChars int, opts ...Option) *Engine {
	e := &Engine{now: time.Now, totalChars: totalChars}
	for _, opt := range opts {
		opt(e)
	}
	e.clear()
	return e
}

func (e *Engine) clear() {
	e.startedAt = time.Time{}
	e.endedAt = time.Time{}
	e.pausedAt = time.Time{}
	e.paused = 0
	e.correct, e.incorrect, e.skipped = 0, 0, 0
	e.keystrokes = nil
	e.errors = nil
	e.skips = nil
	e.skipsByReason = map[string]int{}
	e.charStats = map[rune]*charStat{}
	e.prevCorrectAt = time.Time{}
	e.summary = nil
}

// Start resets all counters and begins timing.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateRunning {
		return ErrAlreadyRunning
	}
	e.clear()
	e.state = stateRunning
	e.startedAt = e.now()
	return nil
}

// Reset returns the engine to idle, discarding everything recorded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear()
	e.state = stateIdle
}

// Running reports whether the engine accepts records.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateRunning
}

// RecordKeystroke counts one validated keystroke.
func (e *Engine) RecordKeystroke(correct bool, expected, actual rune, position int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRunning {
		return ErrNotRunning
	}
	now := e.now()
	e.keystrokes = append(e.keystrokes, model.KeystrokeEntry{
		Position:  position,
		Expected:  string(expected),
		Actual:    string(actual),
		Correct:   correct,
		Timestamp: now,
	})
	if correct {
		e.correct++
	} else {
		e.incorrect++
		e.errors = append(e.errors, model.ErrorEntry{Position: position, Timestamp: now})
	}
	e.updateCharStats(expected, correct, now)
	return nil
}

func (e *Engine) updateCharStats(expected rune, correct bool, now time.Time) {
	if expected == ' ' {
		return
	}
	entry, ok := e.charStats[expected]
	if !ok {
		entry = &charStat{}
		e.charStats[expected] = entry
	}
	if !correct {
		entry.incorrect++
		return
	}
	entry.correct++
	if !e.prevCorrectAt.IsZero() {
		entry.latencySumMs += now.Sub(e.prevCorrectAt).Milliseconds()
		entry.latencyCount++
	}
	e.prevCorrectAt = now
}

// RecordSkip counts count skipped characters. Skips never enter accuracy.
func (e *Engine) RecordSkip(reason string, position int, char rune, count int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRunning {
		return ErrNotRunning
	}
	if count <= 0 {
		count = 1
	}
	entry := model.SkipEntry{
		Position:  position,
		Reason:    reason,
		Count:     count,
		Timestamp: e.now(),
	}
	if char != 0 {
		entry.Char = string(char)
	}
	e.skips = append(e.skips, entry)
	e.skipped += count
	e.skipsByReason[reason] += count
	return nil
}

// Pause stops elapsed-time accounting until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRunning || !e.pausedAt.IsZero() {
		return
	}
	e.pausedAt = e.now()
}

// Resume restarts elapsed-time accounting.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pausedAt.IsZero() {
		return
	}
	e.paused += e.now().Sub(e.pausedAt)
	e.pausedAt = time.Time{}
}

func (e *Engine) elapsed() time.Duration {
	if e.startedAt.IsZero() {
		return 0
	}
	end := e.endedAt
	if end.IsZero() {
		end = e.now()
	}
	d := end.Sub(e.startedAt) - e.paused
	if !e.pausedAt.IsZero() {
		d -= end.Sub(e.pausedAt)
	}
	if d < 0 {
		return 0
	}
	return d
}

// Accuracy is the share of typed characters that were correct, in percent
// with two decimals. It is 100 before anything was typed.
func (e *Engine) Accuracy() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Accuracy(e.correct, e.incorrect)
}

// WPM is the live words-per-minute value.
func (e *Engine) WPM() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return WPM(e.correct, e.elapsed())
}

// Current returns live metrics, or a zeroed inactive snapshot when the
// engine is not running.
func (e *Engine) Current() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRunning {
		return model.Snapshot{}
	}
	return e.snapshot()
}

func (e *Engine) snapshot() model.Snapshot {
	elapsed := e.elapsed()
	return model.Snapshot{
		Active:              e.state == stateRunning,
		WPM:                 WPM(e.correct, elapsed),
		Accuracy:            Accuracy(e.correct, e.incorrect),
		ElapsedSeconds:      math.Round(elapsed.Seconds()*100) / 100,
		TotalCharacters:     e.totalChars,
		CorrectCharacters:   e.correct,
		IncorrectCharacters: e.incorrect,
		SkippedCharacters:   e.skipped,
		TotalKeystrokes:     e.correct + e.incorrect,
	}
}

// Logs returns copies of the error and skip histories so far.
func (e *Engine) Logs() ([]model.ErrorEntry, []model.SkipEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.ErrorEntry(nil), e.errors...), append([]model.SkipEntry(nil), e.skips...)
}

// Summary ends the session if it is still running and returns the frozen
// result. Later calls return the same values.
func (e *Engine) Summary() model.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.summary != nil {
		return copySummary(*e.summary)
	}
	if e.state == stateRunning {
		e.endedAt = e.now()
		if !e.pausedAt.IsZero() {
			e.paused += e.endedAt.Sub(e.pausedAt)
			e.pausedAt = time.Time{}
		}
	}
	e.state = stateEnded

	s := model.Summary{
		Snapshot:      e.snapshot(),
		StartedAt:     e.startedAt,
		EndedAt:       e.endedAt,
		SkipsByReason: make(map[string]int, len(e.skipsByReason)),
		Keystrokes:    append([]model.KeystrokeEntry(nil), e.keystrokes...),
		Errors:        append([]model.ErrorEntry(nil), e.errors...),
		Skips:         append([]model.SkipEntry(nil), e.skips...),
		CharStats:     e.charStatsList(),
	}
	for k, v := range e.skipsByReason {
		s.SkipsByReason[k] = v
	}
	e.summary = &s
	return copySummary(s)
}

func (e *Engine) charStatsList() []model.CharStats {
	out := make([]model.CharStats, 0, len(e.charStats))
	for ch, entry := range e.charStats {
		out = append(out, model.CharStats{
			Char:         string(ch),
			Correct:      entry.correct,
			Incorrect:    entry.incorrect,
			LatencySumMs: entry.latencySumMs,
			LatencyCount: entry.latencyCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Char < out[j].Char })
	return out
}

func copySummary(s model.Summary) model.Summary {
	skips := make(map[string]int, len(s.SkipsByReason))
	for k, v := range s.SkipsByReason {
		skips[k] = v
	}
	s.SkipsByReason = skips
	s.Keystrokes = append([]model.KeystrokeEntry(nil), s.Keystrokes...)
	s.Errors = append([]model.ErrorEntry(nil), s.Errors...)
	s.Skips = append([]model.SkipEntry(nil), s.Skips...)
	s.CharStats = append([]model.CharStats(nil), s.CharStats...)
	return s
}

// WPM computes round((correct / 5) / minutes), zero when elapsed <= 0.
func WPM(correct int, elapsed time.Duration) int {
	if elapsed <= 0 || correct <= 0 {
		return 0
	}
	return int(math.Round((float64(correct) / 5) / elapsed.Minutes()))
}

// Accuracy computes correct / (correct + incorrect) as a percentage
// rounded to two decimals. With nothing typed it is 100.
func Accuracy(correct, incorrect int) float64 {
	typed := correct + incorrect
	if typed == 0 {
		return 100
	}
	return math.Round(float64(correct)/float64(typed)*100*100) / 100
}
