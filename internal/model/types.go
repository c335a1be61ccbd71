// Package model defines shared data structures.
package model

import "time"

// Mode selects how a session presents the practice surface.
type Mode string

const (
	// ModeOverlay positions a practice surface over the original selection.
	ModeOverlay Mode = "overlay"
	// ModeInPlace temporarily replaces the target element's content.
	ModeInPlace Mode = "in_place"
)

// Phase is a session lifecycle phase.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitializing  Phase = "initializing"
	PhaseActive        Phase = "active"
	PhaseRecovering    Phase = "recovering"
	PhaseEnded         Phase = "ended"
)

// End reasons reported in summaries.
const (
	ReasonCompleted      = "completed"
	ReasonUserExit       = "user_exit"
	ReasonContentChanged = "content_changed"
	ReasonRecoveryFailed = "recovery_failed"
	ReasonPageUnload     = "page_unload"
	ReasonPageHidden     = "page_hidden"
	ReasonComponentError = "component_error"
	ReasonForceCleanup   = "force_cleanup"
	ReasonDeactivated    = "deactivated"
)

// Skip reasons.
const (
	SkipShortcut  = "shortcut"
	SkipParagraph = "paragraph"
)

// ErrorEntry records a mistyped position.
type ErrorEntry struct {
	Position  int       `json:"position" yaml:"position"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// SkipEntry records a skipped position.
type SkipEntry struct {
	Position  int       `json:"position" yaml:"position"`
	Reason    string    `json:"reason" yaml:"reason"`
	Count     int       `json:"count" yaml:"count"`
	Char      string    `json:"char,omitempty" yaml:"char,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// KeystrokeEntry is one validated keystroke.
type KeystrokeEntry struct {
	Position  int       `json:"position" yaml:"position"`
	Expected  string    `json:"expected" yaml:"expected"`
	Actual    string    `json:"actual" yaml:"actual"`
	Correct   bool      `json:"correct" yaml:"correct"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// SessionState is the mutable state of one typing session.
type SessionState struct {
	ID          string
	Phase       Phase
	StartTime   time.Time
	EndTime     time.Time
	Position    int
	ErrorLog    []ErrorEntry
	SkipLog     []SkipEntry
	ContentHash string
}

// Snapshot is a point-in-time view of session metrics.
type Snapshot struct {
	Active              bool    `json:"active" yaml:"active"`
	WPM                 int     `json:"wpm" yaml:"wpm"`
	Accuracy            float64 `json:"accuracy" yaml:"accuracy"`
	ElapsedSeconds      float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	TotalCharacters     int     `json:"total_characters" yaml:"total_characters"`
	CorrectCharacters   int     `json:"correct_characters" yaml:"correct_characters"`
	IncorrectCharacters int     `json:"incorrect_characters" yaml:"incorrect_characters"`
	SkippedCharacters   int     `json:"skipped_characters" yaml:"skipped_characters"`
	TotalKeystrokes     int     `json:"total_keystrokes" yaml:"total_keystrokes"`
}

// CharStats stores per-character stats for a session.
type CharStats struct {
	Char         string `json:"char" yaml:"char"`
	Correct      int    `json:"correct" yaml:"correct"`
	Incorrect    int    `json:"incorrect" yaml:"incorrect"`
	LatencySumMs int64  `json:"latency_sum_ms" yaml:"latency_sum_ms"`
	LatencyCount int64  `json:"latency_count" yaml:"latency_count"`
}

// Summary is the frozen result handed back when a session ends.
type Summary struct {
	Snapshot `yaml:",inline"`

	SessionID      string           `json:"session_id" yaml:"session_id"`
	Reason         string           `json:"reason" yaml:"reason"`
	Mode           Mode             `json:"mode" yaml:"mode"`
	Source         string           `json:"source,omitempty" yaml:"source,omitempty"`
	Excerpt        string           `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	ContentHash    string           `json:"content_hash" yaml:"content_hash"`
	StartedAt      time.Time        `json:"started_at" yaml:"started_at"`
	EndedAt        time.Time        `json:"ended_at" yaml:"ended_at"`
	Position       int              `json:"position" yaml:"position"`
	ContentLength  int              `json:"content_length" yaml:"content_length"`
	SkipsByReason  map[string]int   `json:"skips_by_reason" yaml:"skips_by_reason"`
	Keystrokes     []KeystrokeEntry `json:"keystrokes" yaml:"keystrokes"`
	Errors         []ErrorEntry     `json:"errors" yaml:"errors"`
	Skips          []SkipEntry      `json:"skips" yaml:"skips"`
	CharStats      []CharStats      `json:"char_stats" yaml:"char_stats"`
	TeardownErrors []string         `json:"teardown_errors,omitempty" yaml:"teardown_errors,omitempty"`
}

// Duration returns the wall-clock length of the session.
func (s Summary) Duration() time.Duration {
	if s.EndedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Since       *time.Time
	Last        int
	Reason      string
	CurveWindow int
}

// CharAggregate aggregates character stats across sessions.
type CharAggregate struct {
	Char         string `json:"char" yaml:"char"`
	Correct      int    `json:"correct" yaml:"correct"`
	Incorrect    int    `json:"incorrect" yaml:"incorrect"`
	LatencySumMs int64  `json:"latency_sum_ms" yaml:"latency_sum_ms"`
	LatencyCount int64  `json:"latency_count" yaml:"latency_count"`
}

// SessionAggregate summarizes a stored session for reporting.
type SessionAggregate struct {
	SessionID  string    `json:"session_id" yaml:"session_id"`
	EndedAt    time.Time `json:"ended_at" yaml:"ended_at"`
	Reason     string    `json:"reason" yaml:"reason"`
	Mode       Mode      `json:"mode" yaml:"mode"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Excerpt    string    `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	Correct    int       `json:"correct" yaml:"correct"`
	Incorrect  int       `json:"incorrect" yaml:"incorrect"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	WPM        int       `json:"wpm" yaml:"wpm"`
	Accuracy   float64   `json:"accuracy" yaml:"accuracy"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
}
