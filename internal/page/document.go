// Package page models the host page a typing session runs against: an HTML
// document with geometry hints, scroll/focus state, lifecycle events and
// subscription-based mutation watching.
//
// All structural changes must go through Document so that watchers are
// notified. Tree reads from other goroutines should be wrapped in View.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Point is a scroll offset.
type Point struct {
	X float64
	Y float64
}

// Document is a mutable host page.
type Document struct {
	mu sync.RWMutex

	root   *html.Node
	source string
	rects  map[*html.Node]Rect
	scroll Point
	focus  *html.Node
	hidden bool

	watchMu   sync.Mutex
	watchers  map[int]*watcher
	listeners map[int]func(Event)
	nextID    int
}

// Parse builds a Document from HTML.
func Parse(r io.Reader, source string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	return NewDocument(root, source), nil
}

// ParseString is Parse over a string.
func ParseString(s, source string) (*Document, error) {
	return Parse(strings.NewReader(s), source)
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, source string) *Document {
	return &Document{
		root:      root,
		source:    source,
		rects:     map[*html.Node]Rect{},
		watchers:  map[int]*watcher{},
		listeners: map[int]func(Event){},
	}
}

// Source is where the document was loaded from.
func (d *Document) Source() string {
	return d.source
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// View runs fn with the tree read-locked.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *html.Node {
	return findFirst(d.root, atom.Html)
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return findFirst(d.root, atom.Body)
}

// Head returns the <head> element.
func (d *Document) Head() *html.Node {
	return findFirst(d.root, atom.Head)
}

// Attached reports whether n is still reachable from the document root.
func (d *Document) Attached(n *html.Node) bool {
	if n == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Render serialises the document.
func (d *Document) Render() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Scroll returns the current scroll offset.
func (d *Document) Scroll() Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scroll
}

// SetScroll moves the viewport.
func (d *Document) SetScroll(p Point) {
	d.mu.Lock()
	d.scroll = p
	d.mu.Unlock()
}

// Focus returns the focused element, if any.
func (d *Document) Focus() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focus
}

// SetFocus focuses n. A nil node blurs.
func (d *Document) SetFocus(n *html.Node) {
	d.mu.Lock()
	d.focus = n
	d.mu.Unlock()
}

// Hidden reports whether the page is in the background.
func (d *Document) Hidden() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hidden
}

// SetHidden changes page visibility and emits EventVisibility.
func (d *Document) SetHidden(hidden bool) {
	d.mu.Lock()
	changed := d.hidden != hidden
	d.hidden = hidden
	d.mu.Unlock()
	if changed {
		d.emit(Event{Type: EventVisibility, Hidden: hidden})
	}
}

// Unload emits EventUnload; listeners must clean up synchronously.
func (d *Document) Unload() {
	d.emit(Event{Type: EventUnload})
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates every text node under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b, nil)
	return b.String()
}

// TextContentExcluding is TextContent skipping subtrees for which skip returns true.
func TextContentExcluding(n *html.Node, skip func(*html.Node) bool) string {
	var b strings.Builder
	collectText(n, &b, skip)
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder, skip func(*html.Node) bool) {
	if n == nil {
		return
	}
	if skip != nil && skip(n) {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b, skip)
	}
}

// Contains reports whether n is anc or one of its descendants.
func Contains(anc, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}
