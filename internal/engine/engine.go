// Package engine is the top-level object for one page. It owns the
// single-session registry and the current session controller, and is the
// surface that messaging and the terminal front end call into.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/capture"
	"github.com/verte-zerg/overtype/internal/input"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/overlay"
	"github.com/verte-zerg/overtype/internal/page"
	"github.com/verte-zerg/overtype/internal/session"
	"github.com/verte-zerg/overtype/internal/settings"
)

var (
	// ErrNoSession is returned by calls that need a running session.
	ErrNoSession = errors.New("engine: no active session")
	// ErrNotSelecting is returned when a selection arrives outside selection mode.
	ErrNotSelecting = errors.New("engine: selection mode is not active")
)

// Settings is the slice of the settings store the engine uses.
type Settings interface {
	Values(ctx context.Context) (settings.Values, error)
	SetShowHints(ctx context.Context, show bool) error
	Reset(ctx context.Context, defaults settings.Values) error
	Subscribe(fn func(settings.Values)) func()
}

// SelectionRequest locates practice text on the page.
type SelectionRequest struct {
	XPath string `json:"xpath"`
	// Start and End are rune offsets into the element's text; both nil
	// selects the whole element.
	Start   *int `json:"start,omitempty"`
	End     *int `json:"end,omitempty"`
	InPlace bool `json:"inPlace,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Settings           Settings
	Defaults           settings.Values
	Sink               session.SummarySink
	Notifier           session.Notifier
	Logger             *slog.Logger
	Capture            capture.Options
	Mode               model.Mode
	ValidationInterval time.Duration
	EndOnHidden        bool
	SaveTimeout        time.Duration
	Clock              func() time.Time
	NewID              func() string
}

// Status is the engine-level status report.
type Status struct {
	IsActive         bool            `json:"isActive"`
	HasActiveSession bool            `json:"hasActiveSession"`
	SessionInfo      *session.Status `json:"sessionInfo,omitempty"`
}

// Engine drives sessions on one Document.
type Engine struct {
	opts     Options
	doc      *page.Document
	registry *session.Registry
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	selecting bool
	current   *session.Controller
	last      *model.Summary
	unsub     func()
}

// New returns an engine for doc. Close releases it.
func New(doc *page.Document, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeOverlay
	}
	if opts.Defaults == (settings.Values{}) {
		opts.Defaults = settings.Defaults()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:     opts,
		doc:      doc,
		registry: session.NewRegistry(doc),
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.Settings != nil {
		e.unsub = opts.Settings.Subscribe(e.applySettings)
	}
	return e
}

// Document returns the page the engine works on.
func (e *Engine) Document() *page.Document {
	return e.doc
}

// Close ends any session and stops background work.
func (e *Engine) Close() {
	e.mu.Lock()
	c := e.current
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()
	if c != nil {
		e.finish(c, model.ReasonForceCleanup)
	}
	if unsub != nil {
		unsub()
	}
	e.cancel()
}

// ActivateSelectionMode arms selection mode. A request with an XPath
// selects immediately and starts the session.
func (e *Engine) ActivateSelectionMode(ctx context.Context, req *SelectionRequest) (Status, error) {
	e.mu.Lock()
	e.selecting = true
	e.mu.Unlock()
	if req == nil || req.XPath == "" {
		return e.Status(), nil
	}
	sel, err := e.Resolve(req)
	if err != nil {
		return e.Status(), err
	}
	mode := e.opts.Mode
	if req.InPlace {
		mode = model.ModeInPlace
	}
	if err := e.Select(ctx, sel, mode); err != nil {
		return e.Status(), err
	}
	return e.Status(), nil
}

// DeactivateSelectionMode leaves selection mode and ends a running session.
func (e *Engine) DeactivateSelectionMode() Status {
	e.mu.Lock()
	e.selecting = false
	c := e.current
	e.mu.Unlock()
	if c != nil {
		e.finish(c, model.ReasonDeactivated)
	}
	return e.Status()
}

// Resolve turns a request into a page selection.
func (e *Engine) Resolve(req *SelectionRequest) (*page.Selection, error) {
	n, err := e.doc.FindFirst(req.XPath)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve selection: %w", err)
	}
	if req.Start == nil && req.End == nil {
		return page.SelectNodeContents(e.doc, n)
	}
	start, end := 0, -1
	if req.Start != nil {
		start = *req.Start
	}
	if req.End != nil {
		end = *req.End
	} else {
		var text string
		e.doc.View(func(*html.Node) { text = page.TextContent(n) })
		end = len([]rune(text))
	}
	return page.SelectText(e.doc, n, start, end)
}

// Select completes selection mode with sel.
func (e *Engine) Select(ctx context.Context, sel *page.Selection, mode model.Mode) error {
	e.mu.Lock()
	selecting := e.selecting
	e.mu.Unlock()
	if !selecting {
		return ErrNotSelecting
	}
	return e.StartSession(ctx, sel, mode)
}

// StartSession captures sel and runs a session over it.
func (e *Engine) StartSession(ctx context.Context, sel *page.Selection, mode model.Mode) error {
	res, err := capture.Capture(sel, e.opts.Capture)
	if err != nil {
		e.notify("Selection can't be practised: " + err.Error())
		return err
	}
	res.Fragment.Source = e.doc.Source()

	showHints := e.opts.Defaults.ShowHints
	if e.opts.Settings != nil {
		vals, err := e.opts.Settings.Values(ctx)
		if err != nil {
			e.log.Warn("engine: settings unavailable, using defaults", "error", err)
		} else {
			showHints = vals.ShowHints
		}
	}
	if mode == "" {
		mode = e.opts.Mode
	}

	c := session.New(session.Options{
		Registry:           e.registry,
		Logger:             e.log,
		Notifier:           e.opts.Notifier,
		Sink:               e.opts.Sink,
		ValidationInterval: e.opts.ValidationInterval,
		EndOnHidden:        e.opts.EndOnHidden,
		SaveTimeout:        e.opts.SaveTimeout,
		Clock:              e.opts.Clock,
		NewID:              e.opts.NewID,
	})
	if err := c.Initialize(e.ctx, session.Host{
		Document:  e.doc,
		Capture:   res,
		Mode:      mode,
		ShowHints: showHints,
	}); err != nil {
		if errors.Is(err, session.ErrConcurrentSession) {
			e.notify("A practice session is already running on this page.")
		}
		return err
	}

	e.mu.Lock()
	e.current = c
	e.selecting = false
	e.mu.Unlock()
	go e.await(c)
	return nil
}

// await records the summary of c once it ends.
func (e *Engine) await(c *session.Controller) {
	select {
	case <-c.Done():
		e.collect(c)
	case <-e.ctx.Done():
	}
}

func (e *Engine) finish(c *session.Controller, reason string) (model.Summary, bool) {
	if _, ended := c.EndSession(reason); !ended {
		if _, ok := c.Summary(); !ok {
			return model.Summary{}, false
		}
	}
	return e.collect(c), true
}

// collect records the summary of an ended controller and forgets it.
func (e *Engine) collect(c *session.Controller) model.Summary {
	sum, ok := c.Summary()
	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.last = &sum
	}
	if e.current == c {
		e.current = nil
	}
	return sum
}

// Current returns the running controller, if any.
func (e *Engine) Current() *session.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// HandleKey forwards a keystroke to the running session.
func (e *Engine) HandleKey(k input.Key) (input.Result, error) {
	c := e.Current()
	if c == nil {
		return input.Result{Action: input.ActionPassThrough}, ErrNoSession
	}
	res, err := c.HandleKey(k)
	if errors.Is(err, session.ErrNotActive) {
		return res, ErrNoSession
	}
	if res.Signal != input.SignalNone {
		e.collect(c)
	}
	return res, err
}

// EndSession ends the running session with reason.
func (e *Engine) EndSession(reason string) (model.Summary, error) {
	c := e.Current()
	if c == nil {
		return model.Summary{}, ErrNoSession
	}
	sum, _ := e.finish(c, reason)
	return sum, nil
}

// Status reports selection mode and session state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{IsActive: e.selecting}
	c := e.current
	e.mu.Unlock()
	if c != nil {
		info := c.Status()
		if info.Phase == model.PhaseActive || info.Phase == model.PhaseRecovering {
			st.HasActiveSession = true
			st.SessionInfo = &info
		}
	}
	return st
}

// LastSummary returns the summary of the most recently ended session.
func (e *Engine) LastSummary() (model.Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return model.Summary{}, false
	}
	return *e.last, true
}

// ShowHints persists the hint preference and applies it to the session.
func (e *Engine) ShowHints(ctx context.Context) error {
	return e.setHints(ctx, true)
}

// HideHints persists the hint preference and applies it to the session.
func (e *Engine) HideHints(ctx context.Context) error {
	return e.setHints(ctx, false)
}

func (e *Engine) setHints(ctx context.Context, show bool) error {
	if e.opts.Settings != nil {
		if err := e.opts.Settings.SetShowHints(ctx, show); err != nil {
			return fmt.Errorf("engine: save hint preference: %w", err)
		}
	}
	// The session may have ended while the setting was written.
	return e.applyHints(show)
}

func (e *Engine) applyHints(show bool) error {
	c := e.Current()
	if c == nil {
		return nil
	}
	if err := c.ShowHints(show); err != nil && !errors.Is(err, session.ErrNotActive) {
		return err
	}
	return nil
}

func (e *Engine) applySettings(v settings.Values) {
	if err := e.applyHints(v.ShowHints); err != nil {
		e.log.Warn("engine: apply settings failed", "error", err)
	}
}

// ResetSettings restores configured defaults.
func (e *Engine) ResetSettings(ctx context.Context) (settings.Values, error) {
	if e.opts.Settings == nil {
		return e.opts.Defaults, e.applyHints(e.opts.Defaults.ShowHints)
	}
	if err := e.opts.Settings.Reset(ctx, e.opts.Defaults); err != nil {
		return settings.Values{}, fmt.Errorf("engine: reset settings: %w", err)
	}
	vals, err := e.opts.Settings.Values(ctx)
	if err != nil {
		return settings.Values{}, err
	}
	return vals, e.applyHints(vals.ShowHints)
}

// CleanupReport describes what ForceCleanup removed.
type CleanupReport struct {
	EndedSession bool   `json:"endedSession"`
	RemovedNodes int    `json:"removedNodes"`
	ClearedClaim string `json:"clearedClaim,omitempty"`
}

// ForceCleanup ends any session, drops a stale page claim and removes
// overlay nodes left behind by earlier sessions.
func (e *Engine) ForceCleanup() CleanupReport {
	var rep CleanupReport
	e.mu.Lock()
	c := e.current
	e.selecting = false
	e.mu.Unlock()
	if c != nil {
		_, rep.EndedSession = e.finish(c, model.ReasonForceCleanup)
	}
	if owner := e.registry.Active(); owner != "" {
		rep.ClearedClaim = owner
		e.registry.ForceRelease()
	}
	nodes, err := e.doc.Find("//*[@" + overlay.OwnerAttr + "]")
	if err != nil {
		e.log.Warn("engine: find leftover overlay nodes", "error", err)
		return rep
	}
	for _, n := range nodes {
		// Nested owned nodes go with their ancestor.
		if n.Parent != nil && overlay.IsOwned(n.Parent) {
			continue
		}
		if n.Parent != nil {
			e.doc.RemoveNode("", n)
			rep.RemovedNodes++
		}
	}
	if rep.EndedSession || rep.RemovedNodes > 0 || rep.ClearedClaim != "" {
		e.log.Info("engine: forced cleanup", "ended", rep.EndedSession, "removed", rep.RemovedNodes, "claim", rep.ClearedClaim)
	}
	return rep
}

// ValidateSession runs one validation pass on the current session.
func (e *Engine) ValidateSession() (bool, error) {
	c := e.Current()
	if c == nil {
		return false, ErrNoSession
	}
	if err := c.Validate(); err != nil {
		e.collect(c)
		return false, err
	}
	return true, nil
}

func (e *Engine) notify(msg string) {
	if e.opts.Notifier != nil {
		e.opts.Notifier.Notify(msg)
	}
}
