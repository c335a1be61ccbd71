package page

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrEmptySelection is returned when a selection covers no text.
var ErrEmptySelection = errors.New("page: empty selection")

// Boundary is a range endpoint. For text nodes Offset counts runes; for
// other nodes it is a child index.
type Boundary struct {
	Node   *html.Node
	Offset int
}

// TextRun is the part [From, To) (in runes) of a text node inside a selection.
type TextRun struct {
	Node *html.Node
	From int
	To   int
}

// Text returns the selected portion of the run.
func (r TextRun) Text() string {
	runes := []rune(r.Node.Data)
	return string(runes[r.From:r.To])
}

// Selection is a user text selection over a Document.
type Selection struct {
	doc   *Document
	Start Boundary
	End   Boundary
}

// NewSelection builds a selection; start must not come after end.
func NewSelection(doc *Document, start, end Boundary) (*Selection, error) {
	if start.Node == nil || end.Node == nil {
		return nil, fmt.Errorf("page: selection boundary without node")
	}
	s := &Selection{doc: doc, Start: start, End: end}
	order := s.documentOrder()
	sp, ok1 := s.resolve(start, order)
	ep, ok2 := s.resolve(end, order)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("page: selection boundary not in document")
	}
	if ep.less(sp) {
		return nil, fmt.Errorf("page: selection end precedes start")
	}
	return s, nil
}

// SelectNodeContents selects everything inside n.
func SelectNodeContents(doc *Document, n *html.Node) (*Selection, error) {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	if n.Type == html.TextNode {
		count = utf8.RuneCountInString(n.Data)
	}
	return NewSelection(doc, Boundary{Node: n, Offset: 0}, Boundary{Node: n, Offset: count})
}

// SelectText selects runes [from, to) of n's text content.
func SelectText(doc *Document, n *html.Node, from, to int) (*Selection, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("page: invalid text range [%d, %d)", from, to)
	}
	var texts []*html.Node
	walkText(n, func(t *html.Node) { texts = append(texts, t) })
	var start, end *Boundary
	pos := 0
	for _, t := range texts {
		l := utf8.RuneCountInString(t.Data)
		if start == nil && from <= pos+l {
			start = &Boundary{Node: t, Offset: from - pos}
		}
		if start != nil && to <= pos+l {
			end = &Boundary{Node: t, Offset: to - pos}
			break
		}
		pos += l
	}
	if start == nil || end == nil {
		return nil, fmt.Errorf("page: text range [%d, %d) exceeds content length %d", from, to, pos)
	}
	return NewSelection(doc, *start, *end)
}

// Document returns the owning document.
func (s *Selection) Document() *Document {
	return s.doc
}

// Clone returns an independent copy of the range.
func (s *Selection) Clone() *Selection {
	c := *s
	return &c
}

// Collapsed reports whether the selection covers no text.
func (s *Selection) Collapsed() bool {
	return len(s.Runs()) == 0
}

// String concatenates the selected text.
func (s *Selection) String() string {
	var b strings.Builder
	for _, r := range s.Runs() {
		b.WriteString(r.Text())
	}
	return b.String()
}

// CommonAncestor returns the deepest node containing both boundaries.
func (s *Selection) CommonAncestor() *html.Node {
	for a := s.Start.Node; a != nil; a = a.Parent {
		if Contains(a, s.End.Node) {
			return a
		}
	}
	return nil
}

// Runs lists the selected text-node fragments in document order.
func (s *Selection) Runs() []TextRun {
	order := s.documentOrder()
	sp, ok1 := s.resolve(s.Start, order)
	ep, ok2 := s.resolve(s.End, order)
	if !ok1 || !ok2 {
		return nil
	}
	var runs []TextRun
	for i := sp.index; i <= ep.index && i < len(order.texts); i++ {
		t := order.texts[i]
		l := utf8.RuneCountInString(t.Data)
		from, to := 0, l
		if i == sp.index {
			from = sp.offset
		}
		if i == ep.index {
			to = ep.offset
		}
		if from > l {
			from = l
		}
		if to > l {
			to = l
		}
		if to > from {
			runs = append(runs, TextRun{Node: t, From: from, To: to})
		}
	}
	return runs
}

// BoundingRect unions the boxes of the elements holding selected text.
func (s *Selection) BoundingRect() (Rect, bool) {
	var out Rect
	found := false
	for _, run := range s.Runs() {
		if r, ok := s.doc.elementRect(run.Node.Parent); ok {
			out = out.Union(r)
			found = true
		}
	}
	return out, found && !out.Empty()
}

type textOrder struct {
	texts []*html.Node
	index map[*html.Node]int
	// next maps every node to the index of the first text node at or after it.
	next map[*html.Node]int
}

type position struct {
	index  int
	offset int
}

func (p position) less(o position) bool {
	if p.index != o.index {
		return p.index < o.index
	}
	return p.offset < o.offset
}

func (s *Selection) documentOrder() textOrder {
	o := textOrder{index: map[*html.Node]int{}, next: map[*html.Node]int{}}
	var pending []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		pending = append(pending, n)
		if n.Type == html.TextNode {
			idx := len(o.texts)
			o.texts = append(o.texts, n)
			o.index[n] = idx
			for _, p := range pending {
				o.next[p] = idx
			}
			pending = pending[:0]
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(s.doc.root)
	for _, p := range pending {
		o.next[p] = len(o.texts)
	}
	return o
}

func (s *Selection) resolve(b Boundary, o textOrder) (position, bool) {
	if b.Node.Type == html.TextNode {
		idx, ok := o.index[b.Node]
		return position{index: idx, offset: b.Offset}, ok
	}
	child := b.Node.FirstChild
	for i := 0; i < b.Offset && child != nil; i++ {
		child = child.NextSibling
	}
	if child != nil {
		idx, ok := o.next[child]
		return position{index: idx, offset: 0}, ok
	}
	// Past the last child: the point right after b.Node's subtree.
	last := b.Node
	for last.LastChild != nil {
		last = last.LastChild
	}
	if last.Type == html.TextNode {
		idx, ok := o.index[last]
		return position{index: idx, offset: utf8.RuneCountInString(last.Data)}, ok
	}
	idx, ok := o.next[last]
	if !ok {
		return position{}, false
	}
	// next points at the first text node after last; stay before it.
	if idx > 0 {
		prev := o.texts[idx-1]
		if Contains(b.Node, prev) {
			return position{index: idx - 1, offset: utf8.RuneCountInString(prev.Data)}, true
		}
	}
	return position{index: idx, offset: 0}, true
}

func walkText(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.TextNode {
		fn(n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}
