// Package input validates keystrokes against the expected text and moves
// the practice position.
package input

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unicode"

	"github.com/verte-zerg/overtype/internal/model"
)

var (
	// ErrBusy is returned when a keystroke arrives while another one is
	// still being validated. The keystroke is dropped, not queued.
	ErrBusy = errors.New("input: keystroke already in progress")
	// ErrDetached is returned after Detach.
	ErrDetached = errors.New("input: engine detached")
)

// Action is what a keystroke did.
type Action string

const (
	ActionCorrect       Action = "correct"
	ActionIncorrect     Action = "incorrect"
	ActionSkip          Action = "skip"
	ActionSkipParagraph Action = "skip_paragraph"
	ActionBackspace     Action = "backspace"
	ActionExit          Action = "exit"
	ActionIgnored       Action = "ignored"
	ActionPassThrough   Action = "pass_through"
)

// Signal asks the owner to end the session.
type Signal string

const (
	SignalNone      Signal = ""
	SignalCompleted Signal = model.ReasonCompleted
	SignalExit      Signal = model.ReasonUserExit
)

// Result describes the outcome of one keystroke.
type Result struct {
	Action   Action
	Position int
	Correct  bool
	// Skipped is the number of characters passed over by a skip action.
	Skipped int
	Signal  Signal
	// Prevented is true when the host must not apply the key's default.
	Prevented bool
}

// Recorder receives keystroke and skip outcomes.
type Recorder interface {
	RecordKeystroke(correct bool, expected, actual rune, position int) error
	RecordSkip(reason string, position int, char rune, count int) error
}

// Surface is the view driven by position changes.
type Surface interface {
	UpdateCursor(position int)
	HighlightProgress(completed int)
	ShowError(position int)
	ClearError(position int)
}

// Engine holds the practice position for one fragment.
type Engine struct {
	content  []rune
	skip     func(int) bool
	recorder Recorder
	surface  Surface

	position   atomic.Int64
	processing atomic.Bool
	detached   atomic.Bool
}

// New creates an engine at position 0. surface may be nil.
func New(frag *model.Fragment, recorder Recorder, surface Surface) *Engine {
	return &Engine{
		content:  frag.Runes(),
		skip:     frag.IsSkip,
		recorder: recorder,
		surface:  surface,
	}
}

// Position returns the current position in [0, len(content)].
func (e *Engine) Position() int {
	return int(e.position.Load())
}

// Len is the content length.
func (e *Engine) Len() int {
	return len(e.content)
}

// Detach stops the engine from accepting further keys.
func (e *Engine) Detach() {
	e.detached.Store(true)
}

// Process validates one keystroke.
func (e *Engine) Process(k Key) (Result, error) {
	if e.detached.Load() {
		return Result{Action: ActionPassThrough, Position: e.Position()}, ErrDetached
	}
	if !e.processing.CompareAndSwap(false, true) {
		return Result{Action: ActionIgnored, Position: e.Position(), Prevented: true}, ErrBusy
	}
	defer e.processing.Store(false)
	return e.process(k)
}

func (e *Engine) process(k Key) (Result, error) {
	pos := e.Position()
	res := Result{Position: pos, Prevented: true}

	switch {
	case k.Code == CodeEscape && !k.hasCommandModifier() && !k.Shift:
		res.Action = ActionExit
		res.Signal = SignalExit
		return res, nil
	case k.Code == CodeTab && !k.hasCommandModifier() && !k.Shift:
		return e.skipChar(res)
	case k.Code == CodeTab && k.Shift && !k.hasCommandModifier():
		return e.skipParagraph(res)
	case k.Code == CodeBackspace && !k.hasCommandModifier():
		res.Action = ActionBackspace
		if pos > 0 {
			pos--
			e.position.Store(int64(pos))
			res.Position = pos
			if e.surface != nil {
				e.surface.ClearError(pos)
			}
			e.refresh(pos)
		}
		return res, nil
	case k.isNavigation():
		res.Action = ActionIgnored
		return res, nil
	case k.hasCommandModifier():
		res.Action = ActionPassThrough
		res.Prevented = false
		return res, nil
	}

	actual, ok := typedRune(k)
	if !ok {
		res.Action = ActionPassThrough
		res.Prevented = false
		return res, nil
	}
	if pos >= len(e.content) {
		res.Action = ActionIgnored
		return res, nil
	}
	expected := e.content[pos]
	if !Equivalent(expected, actual) {
		if e.skip(pos) {
			res.Action = ActionIgnored
			return res, nil
		}
		if err := e.recorder.RecordKeystroke(false, expected, actual, pos); err != nil {
			return res, fmt.Errorf("input: record keystroke: %w", err)
		}
		if e.surface != nil {
			e.surface.ShowError(pos)
		}
		res.Action = ActionIncorrect
		return res, nil
	}

	if err := e.recorder.RecordKeystroke(true, expected, actual, pos); err != nil {
		return res, fmt.Errorf("input: record keystroke: %w", err)
	}
	if e.surface != nil {
		e.surface.ClearError(pos)
	}
	pos++
	e.position.Store(int64(pos))
	e.refresh(pos)
	res.Action = ActionCorrect
	res.Correct = true
	res.Position = pos
	res.Signal = e.completion(pos)
	return res, nil
}

func (e *Engine) skipChar(res Result) (Result, error) {
	pos := res.Position
	res.Action = ActionSkip
	if pos >= len(e.content) {
		return res, nil
	}
	if err := e.recorder.RecordSkip(model.SkipShortcut, pos, e.content[pos], 1); err != nil {
		return res, fmt.Errorf("input: record skip: %w", err)
	}
	if e.surface != nil {
		e.surface.ClearError(pos)
	}
	pos++
	e.position.Store(int64(pos))
	e.refresh(pos)
	res.Position = pos
	res.Skipped = 1
	res.Signal = e.completion(pos)
	return res, nil
}

func (e *Engine) skipParagraph(res Result) (Result, error) {
	pos := res.Position
	res.Action = ActionSkipParagraph
	if pos >= len(e.content) {
		return res, nil
	}
	boundary := ParagraphBoundary(e.content, pos)
	for i := pos; i < boundary; i++ {
		if err := e.recorder.RecordSkip(model.SkipParagraph, i, e.content[i], 1); err != nil {
			return res, fmt.Errorf("input: record skip: %w", err)
		}
		if e.surface != nil {
			e.surface.ClearError(i)
		}
	}
	e.position.Store(int64(boundary))
	e.refresh(boundary)
	res.Position = boundary
	res.Skipped = boundary - pos
	res.Signal = e.completion(boundary)
	return res, nil
}

func (e *Engine) refresh(pos int) {
	if e.surface == nil {
		return
	}
	e.surface.HighlightProgress(pos)
	e.surface.UpdateCursor(pos)
}

func (e *Engine) completion(pos int) Signal {
	if pos >= len(e.content) {
		return SignalCompleted
	}
	return SignalNone
}

func typedRune(k Key) (rune, bool) {
	switch k.Code {
	case CodeChar:
		if k.Rune == 0 {
			return 0, false
		}
		return k.Rune, true
	case CodeEnter:
		return '\n', true
	}
	return 0, false
}

// Equivalent reports whether typing actual satisfies expected: an exact
// match, space and no-break space, CR and LF, or ASCII letters in either case.
func Equivalent(expected, actual rune) bool {
	if expected == actual {
		return true
	}
	if isSpaceClass(expected) && isSpaceClass(actual) {
		return true
	}
	if isLineBreak(expected) && isLineBreak(actual) {
		return true
	}
	if isASCIILetter(expected) && isASCIILetter(actual) {
		return unicode.ToLower(expected) == unicode.ToLower(actual)
	}
	return false
}

func isSpaceClass(r rune) bool { return r == ' ' || r == '\u00a0' }

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// ParagraphBoundary finds where a paragraph skip starting at pos lands.
// In order of preference: just past the first blank line ("\n\n"), just
// past a newline followed by a non-space character, just past sentence
// punctuation and the following space when an uppercase letter comes next,
// or the end of the text.
func ParagraphBoundary(content []rune, pos int) int {
	n := len(content)
	if pos >= n {
		return n
	}
	for i := pos; i+1 < n; i++ {
		if content[i] == '\n' && content[i+1] == '\n' {
			return i + 2
		}
	}
	for i := pos; i+1 < n; i++ {
		if content[i] == '\n' && !unicode.IsSpace(content[i+1]) {
			return i + 1
		}
	}
	for i := pos; i+2 < n; i++ {
		switch content[i] {
		case '.', '!', '?':
			if unicode.IsSpace(content[i+1]) && unicode.IsUpper(content[i+2]) {
				return i + 2
			}
		}
	}
	return n
}
