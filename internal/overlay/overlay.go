// Package overlay renders the character-addressable practice surface into
// the host page and keeps its cursor, progress and error marks current.
package overlay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/verte-zerg/overtype/internal/format"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

// Attributes placed on nodes the overlay creates.
const (
	OwnerAttr = "data-overtype-owner"
	UnitAttr  = "data-overtype-unit"
)

// ErrNoBody is returned when the page has nowhere to mount the overlay.
var ErrNoBody = errors.New("overlay: document has no body")

// Placement names the positioning strategy that produced the layout.
type Placement string

const (
	PlacementNone      Placement = ""
	PlacementSelection Placement = "selection"
	PlacementCaptured  Placement = "captured"
	PlacementRelocated Placement = "relocated"
	PlacementDegraded  Placement = "degraded"
	PlacementInPlace   Placement = "in_place"
)

// Options configures an Overlay.
type Options struct {
	Mode model.Mode
	// Owner tags every mutation and node the overlay creates.
	Owner string
	// Selection is the live selection, tried first for geometry.
	Selection *page.Selection
	// CapturedRect is the geometry recorded before any mutation.
	CapturedRect    page.Rect
	HasCapturedRect bool
	// Region is the host element; in-place mode renders inside it.
	Region    *html.Node
	ShowHints bool
}

type unitState int

const (
	statePending unitState = iota
	stateCurrent
	stateCompleted
)

// Overlay is safe for concurrent use.
type Overlay struct {
	doc    *page.Document
	frag   *model.Fragment
	format *format.Model
	opts   Options

	mu        sync.Mutex
	rendered  bool
	container *html.Node
	styleNode *html.Node
	hints     *html.Node
	caret     *html.Node
	units     []*html.Node
	states    []unitState
	errors    map[int]bool
	completed int
	cursor    int
	showHints bool
	placement Placement
	rect      page.Rect
	displaced []*html.Node
	inPlaceOn bool
}

// New prepares an overlay; nothing touches the page until Render.
func New(doc *page.Document, frag *model.Fragment, opts Options) *Overlay {
	if opts.Mode == "" {
		opts.Mode = model.ModeOverlay
	}
	return &Overlay{
		doc:       doc,
		frag:      frag,
		format:    format.New(frag.Nodes),
		opts:      opts,
		errors:    map[int]bool{},
		showHints: opts.ShowHints,
	}
}

// Render builds the units and mounts them. Calling it again re-renders from
// the retained progress, cursor and error state.
func (o *Overlay) Render() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.render()
}

func (o *Overlay) render() error {
	if o.opts.Mode == model.ModeInPlace && o.opts.Region == nil {
		return fmt.Errorf("overlay: in-place mode without a region")
	}
	body := o.doc.Body()
	if body == nil {
		return ErrNoBody
	}
	o.unmount()

	o.buildUnits()
	o.styleNode = o.ownedElement(atom.Style, "style", nil)
	o.styleNode.AppendChild(&html.Node{Type: html.TextNode, Data: stylesheet})
	if head := o.doc.Head(); head != nil {
		o.doc.AppendChild(o.opts.Owner, head, o.styleNode)
	} else {
		o.doc.AppendChild(o.opts.Owner, body, o.styleNode)
	}

	if o.opts.Mode == model.ModeInPlace {
		if o.inPlaceOn {
			o.doc.AppendChild(o.opts.Owner, o.opts.Region, o.container)
		} else {
			o.displaced = o.doc.ReplaceChildren(o.opts.Owner, o.opts.Region, []*html.Node{o.container})
			o.inPlaceOn = true
		}
		o.placement = PlacementInPlace
	} else {
		o.placement, o.rect = o.position()
		o.doc.SetAttr(o.opts.Owner, o.container, "style", containerStyle(o.placement, o.rect))
		o.doc.AppendChild(o.opts.Owner, body, o.container)
	}
	o.rendered = true
	o.applyStates()
	o.moveCaret()
	return nil
}

func (o *Overlay) ownedElement(a atom.Atom, tag string, attrs map[string]string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: tag}
	n.Attr = append(n.Attr, html.Attribute{Key: OwnerAttr, Val: o.opts.Owner})
	for k, v := range attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: v})
	}
	return n
}

func (o *Overlay) buildUnits() {
	runes := o.frag.Runes()
	tag, a := "div", atom.Div
	if o.opts.Mode == model.ModeInPlace {
		tag, a = "span", atom.Span
	}
	o.container = o.ownedElement(a, tag, map[string]string{"class": "ot-surface ot-" + string(o.opts.Mode)})
	o.hints = o.ownedElement(atom.Div, "div", map[string]string{"class": hintsClass(o.showHints)})
	o.hints.AppendChild(&html.Node{Type: html.TextNode, Data: HintText})
	o.container.AppendChild(o.hints)

	o.caret = o.ownedElement(atom.Span, "span", map[string]string{"class": "ot-caret"})
	o.units = make([]*html.Node, len(runes))
	if len(o.states) != len(runes) {
		o.states = make([]unitState, len(runes))
	}
	for i, r := range runes {
		u := &html.Node{Type: html.ElementNode, DataAtom: atom.Span, Data: "span"}
		u.Attr = []html.Attribute{
			{Key: UnitAttr, Val: strconv.Itoa(i)},
			{Key: "class", Val: o.classFor(i)},
		}
		if css := cssFor(o.format.StyleAt(i)); css != "" {
			u.Attr = append(u.Attr, html.Attribute{Key: "style", Val: css})
		}
		if kind := unitKind(r); kind == "ot-char" {
			u.AppendChild(&html.Node{Type: html.TextNode, Data: string(r)})
		}
		o.container.AppendChild(u)
		o.units[i] = u
		if r == '\n' {
			o.container.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Br, Data: "br"})
		}
	}
	o.container.AppendChild(o.caret)
}

// Displaced returns the host children removed by in-place rendering, in
// their original order. The overlay never puts them back.
func (o *Overlay) Displaced() []*html.Node {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*html.Node(nil), o.displaced...)
}

// Placement reports which positioning strategy won.
func (o *Overlay) Placement() Placement {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.placement
}

// Rect is the box the overlay was positioned at.
func (o *Overlay) Rect() page.Rect {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rect
}

// Present reports whether the rendered nodes are still in the page.
func (o *Overlay) Present() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.rendered {
		return false
	}
	return o.doc.Attached(o.container) && o.doc.Attached(o.styleNode)
}

// UpdateCursor moves the caret before the unit at position. The caret is
// hidden once position reaches the end.
func (o *Overlay) UpdateCursor(position int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursor = clamp(position, 0, len(o.units))
	if o.rendered {
		o.moveCaret()
	}
}

func (o *Overlay) moveCaret() {
	if o.cursor < len(o.units) {
		o.doc.InsertBefore(o.opts.Owner, o.container, o.caret, o.units[o.cursor])
		o.doc.SetAttr(o.opts.Owner, o.caret, "class", "ot-caret")
		return
	}
	o.doc.AppendChild(o.opts.Owner, o.container, o.caret)
	o.doc.SetAttr(o.opts.Owner, o.caret, "class", "ot-caret ot-hidden")
}

// HighlightProgress marks [0, completed) done and completed as current,
// dropping error marks anywhere except the current unit.
func (o *Overlay) HighlightProgress(completed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = clamp(completed, 0, len(o.states))
	for i := range o.errors {
		if i != o.completed {
			delete(o.errors, i)
		}
	}
	if o.rendered {
		o.applyStates()
	}
}

func (o *Overlay) applyStates() {
	var changed []int
	for i := range o.states {
		want := statePending
		switch {
		case i < o.completed:
			want = stateCompleted
		case i == o.completed:
			want = stateCurrent
		}
		o.states[i] = want
		if getAttr(o.units[i], "class") != o.classFor(i) {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return
	}
	o.doc.Edit(o.opts.Owner, page.OpAttr, o.container, func() {
		for _, i := range changed {
			setAttr(o.units[i], "class", o.classFor(i))
		}
	})
}

// ShowError flags the unit at position. Input is never blocked by it.
func (o *Overlay) ShowError(position int) {
	o.setError(position, true)
}

// ClearError removes the flag at position.
func (o *Overlay) ClearError(position int) {
	o.setError(position, false)
}

func (o *Overlay) setError(position int, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if position < 0 || position >= len(o.states) {
		return
	}
	if on {
		o.errors[position] = true
	} else {
		delete(o.errors, position)
	}
	if o.rendered {
		o.doc.SetAttr(o.opts.Owner, o.units[position], "class", o.classFor(position))
	}
}

// ShowHints toggles the shortcut hint line.
func (o *Overlay) ShowHints(show bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.showHints = show
	if o.rendered {
		o.doc.SetAttr(o.opts.Owner, o.hints, "class", hintsClass(show))
	}
}

// HintsVisible reports the current hint setting.
func (o *Overlay) HintsVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.showHints
}

// Cleanup removes every node and stylesheet the overlay added. It does not
// restore displaced host content. Safe to call more than once.
func (o *Overlay) Cleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unmount()
	o.rendered = false
}

func (o *Overlay) unmount() {
	if o.container != nil {
		o.doc.RemoveNode(o.opts.Owner, o.container)
	}
	if o.styleNode != nil {
		o.doc.RemoveNode(o.opts.Owner, o.styleNode)
	}
	if o.opts.Mode == model.ModeInPlace && o.opts.Region != nil {
		// Strays from an earlier render that the host moved around.
		for _, n := range ownedChildren(o.doc, o.opts.Region, o.opts.Owner) {
			o.doc.RemoveNode(o.opts.Owner, n)
		}
	}
}

func ownedChildren(doc *page.Document, parent *html.Node, owner string) []*html.Node {
	var out []*html.Node
	doc.View(func(*html.Node) {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if v, ok := page.Attr(c, OwnerAttr); ok && v == owner {
				out = append(out, c)
			}
		}
	})
	return out
}

// IsOwned reports whether n was created by any overlay.
func IsOwned(n *html.Node) bool {
	_, ok := page.Attr(n, OwnerAttr)
	return ok
}

func (o *Overlay) classFor(i int) string {
	r := o.frag.Runes()[i]
	parts := []string{"ot-unit", unitKind(r)}
	if o.frag.IsSkip(i) {
		parts = append(parts, "ot-skip")
	}
	switch o.states[i] {
	case stateCompleted:
		parts = append(parts, "ot-completed")
	case stateCurrent:
		parts = append(parts, "ot-current")
	default:
		parts = append(parts, "ot-pending")
	}
	if o.errors[i] {
		parts = append(parts, "ot-error")
	}
	return strings.Join(parts, " ")
}

func unitKind(r rune) string {
	switch r {
	case ' ', '\u00a0':
		return "ot-space"
	case '\t':
		return "ot-tab"
	case '\n', '\r':
		return "ot-newline"
	}
	if unicode.IsSpace(r) {
		return "ot-space"
	}
	return "ot-char"
}

func hintsClass(show bool) string {
	if show {
		return "ot-hints"
	}
	return "ot-hints ot-hidden"
}

func cssFor(s model.Style) string {
	var b strings.Builder
	add := func(prop, val string) {
		if val != "" {
			fmt.Fprintf(&b, "%s:%s;", prop, val)
		}
	}
	add("color", s.Color)
	add("font-weight", s.FontWeight)
	add("font-style", s.FontStyle)
	add("text-decoration", s.TextDecoration)
	add("font-family", s.FontFamily)
	add("font-size", s.FontSize)
	add("text-transform", s.TextTransform)
	add("text-align", s.TextAlign)
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	v, _ := page.Attr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
