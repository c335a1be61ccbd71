// Package session owns the lifecycle of one typing session on a page:
// single-session enforcement, drift detection, periodic validation and
// restoration of the host page on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/capture"
	"github.com/verte-zerg/overtype/internal/input"
	"github.com/verte-zerg/overtype/internal/metrics"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/overlay"
	"github.com/verte-zerg/overtype/internal/page"
)

// RegionAttr marks the host element a session is practising on.
const RegionAttr = "data-overtype-region"

// DefaultValidationInterval is how often an active session checks itself.
const DefaultValidationInterval = 3 * time.Second

// DefaultSaveTimeout bounds a single summary save.
const DefaultSaveTimeout = 5 * time.Second

const excerptRunes = 80

// Notifier shows a transient, non-blocking message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(msg string) { f(msg) }

// SummarySink receives the final summary of every session.
type SummarySink interface {
	SaveSummary(ctx context.Context, s model.Summary) error
}

// Host is what a session is started against.
type Host struct {
	Document  *page.Document
	Capture   *capture.Result
	Mode      model.Mode
	ShowHints bool
}

// Options configures a Controller.
type Options struct {
	Registry *Registry
	Logger   *slog.Logger
	Notifier Notifier
	Sink     SummarySink
	// ValidationInterval defaults to DefaultValidationInterval; negative
	// disables the periodic check.
	ValidationInterval time.Duration
	// EndOnHidden ends the session when the page is hidden instead of
	// pausing the clock.
	EndOnHidden bool
	// SaveTimeout bounds Sink.SaveSummary. Default: DefaultSaveTimeout.
	SaveTimeout time.Duration
	Clock       func() time.Time
	NewID       func() string
}

// Status is the externally readable state of a session.
type Status struct {
	ID             string         `json:"id"`
	Phase          model.Phase    `json:"phase"`
	Mode           model.Mode     `json:"mode"`
	Position       int            `json:"position"`
	Length         int            `json:"length"`
	OverlayPresent bool           `json:"overlay_present"`
	InputAttached  bool           `json:"input_attached"`
	MetricsRunning bool           `json:"metrics_running"`
	Placement      string         `json:"placement,omitempty"`
	Metrics        model.Snapshot `json:"metrics"`
}

type attrSnapshot struct {
	node *html.Node
	key  string
	val  string
	had  bool
}

type hostSnapshot struct {
	scroll    page.Point
	focus     *html.Node
	attrs     []attrSnapshot
	displaced []*html.Node
}

// Controller runs one session. Every entry point is serialised.
type Controller struct {
	opts Options
	log  *slog.Logger
	id   string

	mu       sync.Mutex
	phase    model.Phase
	doc      *page.Document
	res      *capture.Result
	frag     *model.Fragment
	mode     model.Mode
	region   *html.Node
	baseline string
	state    model.SessionState
	saved    hostSnapshot

	metrics *metrics.Engine
	overlay *overlay.Overlay
	input   *input.Engine

	unwatch  func()
	offEvent func()
	stopLoop context.CancelFunc

	summary *model.Summary
	done    chan struct{}
	// ended is delivered by unlock once c.mu is released.
	ended *model.Summary
}

// New creates an uninitialized controller.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ValidationInterval == 0 {
		opts.ValidationInterval = DefaultValidationInterval
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	id := opts.NewID()
	return &Controller{
		opts:  opts,
		log:   opts.Logger.With("session", id),
		id:    id,
		phase: model.PhaseUninitialized,
		done:  make(chan struct{}),
	}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Done is closed once the session has ended.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Initialize claims the page, snapshots host state, starts metrics, renders
// the overlay and begins watching for drift. ctx bounds the validation loop.
func (c *Controller) Initialize(ctx context.Context, host Host) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseUninitialized {
		return fmt.Errorf("session: initialize in phase %s", c.phase)
	}
	if host.Document == nil || host.Capture == nil || host.Capture.Fragment == nil {
		return fmt.Errorf("session: initialize without a captured fragment")
	}
	if c.opts.Registry == nil {
		c.opts.Registry = NewRegistry(host.Document)
	}
	if host.Mode == "" {
		host.Mode = model.ModeOverlay
	}
	if err := c.opts.Registry.Acquire(c.id); err != nil {
		return err
	}

	c.phase = model.PhaseInitializing
	c.doc = host.Document
	c.res = host.Capture
	c.frag = host.Capture.Fragment
	c.mode = host.Mode
	c.region = host.Capture.Region
	if c.region == nil {
		c.region = c.doc.Body()
	}

	c.saved = hostSnapshot{scroll: c.doc.Scroll(), focus: c.doc.Focus()}
	c.touchAttr(c.region, RegionAttr, string(c.mode))

	c.metrics = metrics.New(c.frag.Len(), metrics.WithClock(c.opts.Clock))
	if err := c.metrics.Start(); err != nil {
		c.abortInit(err)
		return err
	}
	c.overlay = overlay.New(c.doc, c.frag, overlay.Options{
		Mode:            c.mode,
		Owner:           c.id,
		Selection:       c.res.Selection,
		CapturedRect:    c.res.Rect,
		HasCapturedRect: c.res.HasRect,
		Region:          c.region,
		ShowHints:       host.ShowHints,
	})
	if err := guard(c.overlay.Render); err != nil {
		err = fmt.Errorf("session: render overlay: %w", err)
		c.abortInit(err)
		return err
	}
	c.saved.displaced = c.overlay.Displaced()
	c.input = input.New(c.frag, c.metrics, c.overlay)

	if r := c.overlay.Rect(); !r.Empty() {
		c.doc.SetScroll(page.Point{X: c.saved.scroll.X, Y: r.Y})
	}
	c.doc.SetFocus(c.region)

	c.baseline = ContentHash(c.doc, c.region)
	now := c.opts.Clock()
	c.state = model.SessionState{
		ID:          c.id,
		Phase:       model.PhaseActive,
		StartTime:   now,
		ContentHash: c.baseline,
	}
	c.unwatch = c.doc.Watch(c.region, c.onMutation)
	c.offEvent = c.doc.OnEvent(c.onEvent)
	c.phase = model.PhaseActive

	if c.opts.ValidationInterval > 0 {
		loopCtx, cancel := context.WithCancel(ctx)
		c.stopLoop = cancel
		go c.validationLoop(loopCtx, c.opts.ValidationInterval)
	}
	c.log.Info("session: started", "mode", c.mode, "length", c.frag.Len(), "placement", c.overlay.Placement())
	return nil
}

func (c *Controller) abortInit(cause error) {
	c.log.Warn("session: initialize failed", "error", cause)
	c.teardown(model.ReasonComponentError)
}

// touchAttr sets an attribute on a host node, remembering the original.
func (c *Controller) touchAttr(n *html.Node, key, val string) {
	orig, had := page.Attr(n, key)
	c.saved.attrs = append(c.saved.attrs, attrSnapshot{node: n, key: key, val: orig, had: had})
	c.doc.SetAttr(c.id, n, key, val)
}

// HandleKey validates one keystroke. A keystroke arriving while another is
// being validated fails with input.ErrBusy and is dropped.
func (c *Controller) HandleKey(k input.Key) (input.Result, error) {
	c.mu.Lock()
	if c.phase != model.PhaseActive {
		c.mu.Unlock()
		return input.Result{}, ErrNotActive
	}
	in := c.input
	c.mu.Unlock()

	var res input.Result
	err := guard(func() error {
		var perr error
		res, perr = in.Process(k)
		return perr
	})
	if errors.Is(err, input.ErrBusy) {
		return res, err
	}

	c.mu.Lock()
	defer c.unlock()
	// The session may have ended while the key was processed.
	if c.phase != model.PhaseActive {
		return res, ErrNotActive
	}
	if err != nil {
		c.log.Error("session: input failed", "error", err)
		c.endLocked(model.ReasonComponentError)
		return res, err
	}
	c.state.Position = res.Position
	if res.Signal != input.SignalNone {
		c.endLocked(string(res.Signal))
	}
	return res, nil
}

// EndSession ends the session with reason and returns the final summary.
// ended is false when the session had already ended or never started.
func (c *Controller) EndSession(reason string) (summary model.Summary, ended bool) {
	c.mu.Lock()
	defer c.unlock()
	if c.phase == model.PhaseEnded {
		return *c.summary, false
	}
	if c.phase != model.PhaseActive && c.phase != model.PhaseRecovering {
		return model.Summary{}, false
	}
	c.endLocked(reason)
	return *c.summary, true
}

func (c *Controller) endLocked(reason string) {
	if c.phase == model.PhaseEnded {
		return
	}
	c.teardown(reason)
	sum := *c.summary
	c.ended = &sum
}

// unlock releases c.mu, then hands a session that ended under the lock to
// the notifier and the sink. Both may call back into the controller.
func (c *Controller) unlock() {
	ended := c.ended
	c.ended = nil
	c.mu.Unlock()
	if ended == nil {
		return
	}
	c.notifyEnd(ended.Reason)
	if c.opts.Sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.SaveTimeout)
		if err := c.opts.Sink.SaveSummary(ctx, *ended); err != nil {
			c.log.Warn("session: save summary failed", "error", err)
		}
		cancel()
	}
}

func (c *Controller) notifyEnd(reason string) {
	if c.opts.Notifier == nil {
		return
	}
	switch reason {
	case model.ReasonContentChanged:
		c.opts.Notifier.Notify("The page changed under the practice text; session ended and original text restored.")
	case model.ReasonRecoveryFailed:
		c.opts.Notifier.Notify("The practice overlay could not be restored; session ended.")
	case model.ReasonComponentError:
		c.opts.Notifier.Notify("Something went wrong; session ended and original text restored.")
	}
}

// teardown runs every cleanup step, each guarded, and freezes the summary.
func (c *Controller) teardown(reason string) {
	c.phase = model.PhaseEnded
	var failed []StepError
	step := func(name string, fn func() error) {
		if err := guard(fn); err != nil {
			failed = append(failed, StepError{Step: name, Err: err})
		}
	}

	step("stop_validation", func() error {
		if c.stopLoop != nil {
			c.stopLoop()
		}
		return nil
	})
	step("unwatch", func() error {
		if c.unwatch != nil {
			c.unwatch()
		}
		if c.offEvent != nil {
			c.offEvent()
		}
		return nil
	})
	var frozen model.Summary
	step("metrics", func() error {
		if c.metrics == nil {
			return nil
		}
		frozen = c.metrics.Summary()
		return nil
	})
	step("input", func() error {
		if c.input != nil {
			c.state.Position = c.input.Position()
			c.input.Detach()
		}
		return nil
	})
	step("overlay", func() error {
		if c.overlay != nil {
			c.overlay.Cleanup()
		}
		return nil
	})
	step("restore_content", func() error {
		if c.mode != model.ModeInPlace || c.overlay == nil {
			return nil
		}
		displaced := c.saved.displaced
		if displaced == nil {
			displaced = c.overlay.Displaced()
		}
		if displaced == nil {
			return nil
		}
		c.doc.ReplaceChildren(c.id, c.region, displaced)
		return nil
	})
	step("restore_attributes", func() error {
		for i := len(c.saved.attrs) - 1; i >= 0; i-- {
			a := c.saved.attrs[i]
			if a.had {
				c.doc.SetAttr(c.id, a.node, a.key, a.val)
			} else {
				c.doc.RemoveAttr(c.id, a.node, a.key)
			}
		}
		return nil
	})
	step("restore_viewport", func() error {
		if c.doc == nil {
			return nil
		}
		c.doc.SetScroll(c.saved.scroll)
		c.doc.SetFocus(c.saved.focus)
		return nil
	})
	step("registry", func() error {
		if c.opts.Registry != nil {
			c.opts.Registry.Release(c.id)
		}
		return nil
	})

	now := c.opts.Clock()
	c.state.Phase = model.PhaseEnded
	c.state.EndTime = now
	c.state.ErrorLog = frozen.Errors
	c.state.SkipLog = frozen.Skips

	frozen.SessionID = c.id
	frozen.Reason = reason
	frozen.Mode = c.mode
	frozen.ContentHash = c.baseline
	frozen.Position = c.state.Position
	if c.frag != nil {
		frozen.ContentLength = c.frag.Len()
		frozen.Source = c.frag.Source
		frozen.Excerpt = capture.Excerpt(c.frag.Content, excerptRunes)
	}
	if frozen.EndedAt.IsZero() {
		frozen.EndedAt = now
	}
	if len(failed) > 0 {
		terr := &TeardownError{Steps: failed}
		c.log.Warn("session: teardown incomplete", "error", terr)
		for _, f := range failed {
			frozen.TeardownErrors = append(frozen.TeardownErrors, f.Error())
		}
	}
	c.summary = &frozen
	close(c.done)
	c.log.Info("session: ended", "reason", reason, "position", frozen.Position, "wpm", frozen.WPM, "accuracy", frozen.Accuracy)
}

// onMutation runs for every mutation touching the region.
func (c *Controller) onMutation(m page.Mutation) {
	if m.Origin == c.id {
		return
	}
	c.mu.Lock()
	defer c.unlock()
	if c.phase != model.PhaseActive {
		return
	}
	if ContentHash(c.doc, c.region) != c.baseline {
		c.log.Info("session: content drift", "op", m.Op)
		c.endLocked(model.ReasonContentChanged)
	}
}

func (c *Controller) onEvent(ev page.Event) {
	switch ev.Type {
	case page.EventUnload:
		c.EndSession(model.ReasonPageUnload)
	case page.EventVisibility:
		c.SetHidden(ev.Hidden)
	}
}

// SetHidden pauses the clock while the page is hidden, or ends the
// session when configured to.
func (c *Controller) SetHidden(hidden bool) {
	c.mu.Lock()
	defer c.unlock()
	if c.phase != model.PhaseActive {
		return
	}
	switch {
	case hidden && c.opts.EndOnHidden:
		c.endLocked(model.ReasonPageHidden)
	case hidden:
		c.metrics.Pause()
	default:
		c.metrics.Resume()
	}
}

// Unload ends the session as the page goes away.
func (c *Controller) Unload() {
	c.EndSession(model.ReasonPageUnload)
}

// Validate checks overlay presence, host attachment and content hash. A
// failed presence check gets exactly one recovery attempt.
func (c *Controller) Validate() error {
	c.mu.Lock()
	defer c.unlock()
	if c.phase != model.PhaseActive {
		return ErrNotActive
	}
	if !c.doc.Attached(c.region) {
		c.log.Warn("session: host region detached")
		c.endLocked(model.ReasonRecoveryFailed)
		return fmt.Errorf("%w: host region detached", ErrRecoveryFailure)
	}
	if ContentHash(c.doc, c.region) != c.baseline {
		c.endLocked(model.ReasonContentChanged)
		return ErrContentDrift
	}
	if c.overlay.Present() {
		return nil
	}
	return c.recoverLocked()
}

// Recover re-renders the overlay from retained state.
func (c *Controller) Recover() error {
	c.mu.Lock()
	defer c.unlock()
	if c.phase != model.PhaseActive {
		return ErrNotActive
	}
	return c.recoverLocked()
}

func (c *Controller) recoverLocked() error {
	c.phase = model.PhaseRecovering
	err := guard(func() error {
		if err := c.overlay.Render(); err != nil {
			return err
		}
		pos := c.input.Position()
		c.overlay.HighlightProgress(pos)
		c.overlay.UpdateCursor(pos)
		if !c.overlay.Present() {
			return errors.New("overlay still missing after re-render")
		}
		return nil
	})
	if err != nil {
		c.log.Warn("session: recovery failed", "error", err)
		c.endLocked(model.ReasonRecoveryFailed)
		return fmt.Errorf("%w: %v", ErrRecoveryFailure, err)
	}
	c.phase = model.PhaseActive
	// Re-rendering in place changes nothing the hash sees, but re-baseline
	// in case the host moved nodes around while the overlay was gone.
	c.baseline = ContentHash(c.doc, c.region)
	c.log.Info("session: recovered")
	return nil
}

func (c *Controller) validationLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Validate(); errors.Is(err, ErrNotActive) {
				return
			} else if err != nil {
				c.log.Warn("session: validation failed", "error", err)
			}
		}
	}
}

// ShowHints toggles the hint line of an active session.
func (c *Controller) ShowHints(show bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseActive {
		return ErrNotActive
	}
	c.overlay.ShowHints(show)
	return nil
}

// Status reports the session's externally visible state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{ID: c.id, Phase: c.phase, Mode: c.mode, Position: c.state.Position}
	if c.frag != nil {
		st.Length = c.frag.Len()
	}
	if c.phase == model.PhaseActive || c.phase == model.PhaseRecovering {
		st.OverlayPresent = c.overlay.Present()
		st.InputAttached = true
		st.MetricsRunning = c.metrics.Running()
		st.Placement = string(c.overlay.Placement())
		st.Metrics = c.metrics.Current()
		st.Position = c.input.Position()
	}
	return st
}

// State returns a copy of the session state with live position and logs.
func (c *Controller) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if c.phase == model.PhaseActive {
		st.Position = c.input.Position()
		st.ErrorLog, st.SkipLog = c.metrics.Logs()
	}
	st.Phase = c.phase
	return st
}

// Metrics returns live metrics, zeroed once the session is over.
func (c *Controller) Metrics() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		return model.Snapshot{}
	}
	return c.metrics.Current()
}

// View renders the practice surface for a terminal.
func (c *Controller) View(width int) string {
	c.mu.Lock()
	ov := c.overlay
	c.mu.Unlock()
	if ov == nil {
		return ""
	}
	return ov.View(width)
}

// Summary returns the final summary once the session has ended.
func (c *Controller) Summary() (model.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return model.Summary{}, false
	}
	return *c.summary, true
}
