package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/input"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/overlay"
	"github.com/verte-zerg/overtype/internal/page"
	"github.com/verte-zerg/overtype/internal/session"
	"github.com/verte-zerg/overtype/internal/settings"
)

const pageHTML = `<html><head></head><body><p id="lead">hello world</p><p id="short">ab</p></body></html>`

type memSettings struct {
	mu   sync.Mutex
	vals settings.Values
	subs []func(settings.Values)
}

func (m *memSettings) Values(context.Context) (settings.Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals, nil
}

func (m *memSettings) SetShowHints(_ context.Context, show bool) error {
	m.mu.Lock()
	m.vals.ShowHints = show
	subs := append([]func(settings.Values){}, m.subs...)
	vals := m.vals
	m.mu.Unlock()
	for _, fn := range subs {
		fn(vals)
	}
	return nil
}

func (m *memSettings) Reset(_ context.Context, d settings.Values) error {
	m.mu.Lock()
	m.vals = d
	m.mu.Unlock()
	return nil
}

func (m *memSettings) Subscribe(fn func(settings.Values)) func() {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
	return func() {}
}

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Notify(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func newEngine(t *testing.T) (*Engine, *memSettings, *notes) {
	t.Helper()
	doc, err := page.ParseString(pageHTML, "page.html")
	require.NoError(t, err)
	st := &memSettings{vals: settings.Defaults()}
	n := &notes{}
	e := New(doc, Options{
		Settings:           st,
		Notifier:           n,
		ValidationInterval: -1,
	})
	t.Cleanup(e.Close)
	return e, st, n
}

func TestActivateWithoutRequestArmsSelectionMode(t *testing.T) {
	e, _, _ := newEngine(t)
	st, err := e.ActivateSelectionMode(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, st.IsActive)
	require.False(t, st.HasActiveSession)

	sel, err := e.Resolve(&SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	require.NoError(t, e.Select(context.Background(), sel, model.ModeOverlay))

	st = e.Status()
	require.False(t, st.IsActive)
	require.True(t, st.HasActiveSession)
	require.NotNil(t, st.SessionInfo)
	require.Equal(t, 11, st.SessionInfo.Length)

	st = e.DeactivateSelectionMode()
	require.False(t, st.HasActiveSession)
	sum, ok := e.LastSummary()
	require.True(t, ok)
	require.Equal(t, model.ReasonDeactivated, sum.Reason)
	require.Equal(t, "page.html", sum.Source)
}

func TestSelectOutsideSelectionMode(t *testing.T) {
	e, _, _ := newEngine(t)
	sel, err := e.Resolve(&SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	require.ErrorIs(t, e.Select(context.Background(), sel, ""), ErrNotSelecting)
}

func TestActivateWithRangeStartsSession(t *testing.T) {
	e, _, _ := newEngine(t)
	start, end := 6, 11
	st, err := e.ActivateSelectionMode(context.Background(), &SelectionRequest{XPath: "//p[@id='lead']", Start: &start, End: &end, InPlace: true})
	require.NoError(t, err)
	require.True(t, st.HasActiveSession)
	require.Equal(t, model.ModeInPlace, st.SessionInfo.Mode)

	for _, r := range "world" {
		_, err := e.HandleKey(input.Char(r))
		require.NoError(t, err)
	}
	require.False(t, e.Status().HasActiveSession)
	sum, ok := e.LastSummary()
	require.True(t, ok)
	require.Equal(t, model.ReasonCompleted, sum.Reason)

	_, err = e.HandleKey(input.Char('x'))
	require.ErrorIs(t, err, ErrNoSession)
}

func TestInvalidSelectionNotifies(t *testing.T) {
	e, _, n := newEngine(t)
	_, err := e.ActivateSelectionMode(context.Background(), &SelectionRequest{XPath: "//p[@id='short']"})
	require.Error(t, err)
	require.Len(t, n.msgs, 1)
	require.False(t, e.Status().HasActiveSession)
}

func TestSecondSessionIsRejected(t *testing.T) {
	e, _, n := newEngine(t)
	ctx := context.Background()
	_, err := e.ActivateSelectionMode(ctx, &SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	sel, err := e.Resolve(&SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	require.ErrorIs(t, e.StartSession(ctx, sel, ""), session.ErrConcurrentSession)
	require.NotEmpty(t, n.msgs)
}

func TestHintsFollowSettings(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()
	_, err := e.ActivateSelectionMode(ctx, &SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)

	require.NoError(t, e.HideHints(ctx))
	v, _ := st.Values(ctx)
	require.False(t, v.ShowHints)
	require.Empty(t, hintNodes(t, e.Document()))

	require.NoError(t, e.ShowHints(ctx))
	require.NotEmpty(t, hintNodes(t, e.Document()))

	require.NoError(t, e.HideHints(ctx))
	vals, err := e.ResetSettings(ctx)
	require.NoError(t, err)
	require.True(t, vals.ShowHints)
	require.NotEmpty(t, hintNodes(t, e.Document()))
}

func TestForceCleanupRemovesLeftovers(t *testing.T) {
	e, _, _ := newEngine(t)
	doc := e.Document()
	before, err := doc.Render()
	require.NoError(t, err)

	// A stale claim and overlay node left by a session that never tore down.
	root := doc.DocumentElement()
	doc.SetAttr("", root, session.ActiveAttr, "ghost")
	stale := &html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: overlay.OwnerAttr, Val: "ghost"}}}
	stale.AppendChild(&html.Node{Type: html.ElementNode, Data: "span", Attr: []html.Attribute{{Key: overlay.OwnerAttr, Val: "ghost"}}})
	doc.AppendChild("", doc.Body(), stale)

	rep := e.ForceCleanup()
	require.False(t, rep.EndedSession)
	require.Equal(t, 1, rep.RemovedNodes)
	require.Equal(t, "ghost", rep.ClearedClaim)

	after, err := doc.Render()
	require.NoError(t, err)
	require.Equal(t, before, after)

	_, err = e.ActivateSelectionMode(context.Background(), &SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	rep = e.ForceCleanup()
	require.True(t, rep.EndedSession)
	sum, _ := e.LastSummary()
	require.Equal(t, model.ReasonForceCleanup, sum.Reason)
}

func TestValidateSession(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.ValidateSession()
	require.ErrorIs(t, err, ErrNoSession)

	_, err = e.ActivateSelectionMode(context.Background(), &SelectionRequest{XPath: "//p[@id='lead']"})
	require.NoError(t, err)
	ok, err := e.ValidateSession()
	require.NoError(t, err)
	require.True(t, ok)

	lead, err := e.Document().FindFirst("//p[@id='lead']")
	require.NoError(t, err)
	e.Document().SetText("", lead.FirstChild, "changed text")
	require.Eventually(t, func() bool { return !e.Status().HasActiveSession }, time.Second, 5*time.Millisecond)
	sum, _ := e.LastSummary()
	require.Equal(t, model.ReasonContentChanged, sum.Reason)
}

func hintNodes(t *testing.T, doc *page.Document) []*html.Node {
	t.Helper()
	nodes, err := doc.Find("//div[@class='ot-hints']")
	require.NoError(t, err)
	return nodes
}
