package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContentDrift is reported when host text under the region changed.
	ErrContentDrift = errors.New("session: host content changed")
	// ErrRecoveryFailure is reported when re-rendering did not restore the overlay.
	ErrRecoveryFailure = errors.New("session: recovery failed")
	// ErrNotActive is returned by operations that need an active session.
	ErrNotActive = errors.New("session: not active")
)

// StepError is one failed teardown step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

// TeardownError collects every step that failed while ending a session.
// Teardown never stops at the first failure.
type TeardownError struct {
	Steps []StepError
}

func (e *TeardownError) Error() string {
	parts := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		parts[i] = s.Error()
	}
	return fmt.Sprintf("session: teardown: %s", strings.Join(parts, "; "))
}

// Unwrap exposes the step errors to errors.Is and errors.As.
func (e *TeardownError) Unwrap() []error {
	out := make([]error, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Err
	}
	return out
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
