package capture

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

// Break strengths requested by block boundaries, counted in newlines.
const (
	breakNone = iota
	breakLine
	breakParagraph
)

// styleContext is what an element hands down to its children. It is passed
// by value, so every recursion level sees its own copy.
type styleContext struct {
	style  model.Style
	depth  int
	parent int
	pre    bool
}

type walker struct {
	runs    map[*html.Node]page.TextRun
	content []rune
	nodes   []model.FormatNode
	keep    []bool
	pending int
	// lines counts <br> elements since the last visible rune. Unlike block
	// breaks they add up.
	lines int
}

func extract(sel *page.Selection) *model.Fragment {
	w := &walker{runs: map[*html.Node]page.TextRun{}}
	for _, r := range sel.Runs() {
		w.runs[r.Node] = r
	}
	root := sel.CommonAncestor()
	ctx := styleContext{parent: -1}
	if root != nil && root.Type == html.TextNode {
		ctx.style = inheritedStyle(root.Parent)
		ctx.pre = insidePre(root.Parent)
		w.text(root, ctx)
	} else if root != nil {
		ctx.style = inheritedStyle(root.Parent)
		ctx.pre = insidePre(root.Parent)
		w.element(root, ctx)
	}
	w.trimEnd()

	var nodes []model.FormatNode
	remap := map[int]int{}
	for i, n := range w.nodes {
		if !w.keep[i] || n.End < n.Start {
			continue
		}
		remap[i] = len(nodes)
		nodes = append(nodes, n)
	}
	for i := range nodes {
		if p, ok := remap[nodes[i].Parent]; ok && nodes[i].Parent >= 0 {
			nodes[i].Parent = p
		} else {
			nodes[i].Parent = -1
		}
	}
	content := string(w.content)
	return model.NewFragment(content, SkipPositions(content), sortNodes(nodes))
}

func (w *walker) element(n *html.Node, ctx styleContext) {
	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.visit(c, ctx)
		}
		return
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return
	}
	style := ctx.style.Merge(tagStyle(n)).Merge(inlineStyle(n))
	display := displayOf(n)

	idx := len(w.nodes)
	w.nodes = append(w.nodes, model.FormatNode{
		Kind:    model.KindElement,
		Start:   len(w.content),
		Depth:   ctx.depth,
		Parent:  ctx.parent,
		Tag:     n.Data,
		Attrs:   curatedAttrs(n),
		Style:   style,
		Display: display,
		Role:    roleOf(n),
	})
	w.keep = append(w.keep, false)

	brk := blockBreak(n)
	if n.DataAtom == atom.Br {
		w.lineBreak()
	} else if brk != breakNone {
		w.request(brk)
	}

	child := styleContext{
		style:  style,
		depth:  ctx.depth + 1,
		parent: idx,
		pre:    ctx.pre || n.DataAtom == atom.Pre || n.DataAtom == atom.Textarea,
	}
	start := len(w.content)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c, child)
	}
	if brk != breakNone {
		w.request(brk)
	}
	if len(w.content) > start {
		// The first emitted rune may have been a pending break; skip it.
		first := start
		for first < len(w.content) && w.content[first] == '\n' {
			first++
		}
		w.nodes[idx].Start = first
		w.nodes[idx].End = len(w.content) - 1
		w.keep[idx] = first <= len(w.content)-1
	}
}

func (w *walker) visit(n *html.Node, ctx styleContext) {
	switch n.Type {
	case html.TextNode:
		w.text(n, ctx)
	case html.ElementNode:
		w.element(n, ctx)
	}
}

func (w *walker) text(n *html.Node, ctx styleContext) {
	run, ok := w.runs[n]
	if !ok {
		return
	}
	segment := []rune(n.Data)[run.From:run.To]
	start := -1
	for _, r := range segment {
		if !ctx.pre && unicode.IsSpace(r) {
			if len(w.content) == 0 || w.last() == ' ' || w.last() == '\n' {
				continue
			}
			if w.hasPending() {
				continue
			}
			r = ' '
		}
		if r == '\r' && ctx.pre {
			continue
		}
		w.flush()
		if start < 0 {
			start = len(w.content)
		}
		w.content = append(w.content, r)
	}
	if start < 0 {
		return
	}
	w.nodes = append(w.nodes, model.FormatNode{
		Kind:   model.KindText,
		Start:  start,
		End:    len(w.content) - 1,
		Depth:  ctx.depth,
		Parent: ctx.parent,
		Style:  ctx.style,
	})
	w.keep = append(w.keep, true)
}

func (w *walker) request(strength int) {
	if len(w.content) == 0 {
		return
	}
	if strength > w.pending {
		w.pending = strength
	}
}

func (w *walker) lineBreak() {
	if len(w.content) == 0 {
		return
	}
	w.lines++
}

func (w *walker) hasPending() bool {
	return w.pending != breakNone || w.lines > 0
}

// flush writes pending breaks before the next visible rune.
func (w *walker) flush() {
	if !w.hasPending() {
		return
	}
	for len(w.content) > 0 && w.last() == ' ' {
		w.content = w.content[:len(w.content)-1]
	}
	want := w.pending
	if w.lines > want {
		want = w.lines
	}
	have := 0
	for i := len(w.content) - 1; i >= 0 && w.content[i] == '\n'; i-- {
		have++
	}
	for ; have < want; have++ {
		w.content = append(w.content, '\n')
	}
	w.pending = breakNone
	w.lines = 0
}

func (w *walker) last() rune {
	return w.content[len(w.content)-1]
}

// trimEnd drops trailing whitespace and clips annotations to the new length.
func (w *walker) trimEnd() {
	w.pending = breakNone
	w.lines = 0
	for len(w.content) > 0 && unicode.IsSpace(w.last()) {
		w.content = w.content[:len(w.content)-1]
	}
	limit := len(w.content) - 1
	for i := range w.nodes {
		if w.nodes[i].End > limit {
			w.nodes[i].End = limit
		}
		if w.nodes[i].Start > limit {
			w.keep[i] = false
		}
	}
}

func blockBreak(n *html.Node) int {
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table, atom.Figure, atom.Hr:
		return breakParagraph
	}
	if displayOf(n) == model.DisplayBlock {
		return breakLine
	}
	return breakNone
}

func insidePre(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (p.DataAtom == atom.Pre || p.DataAtom == atom.Textarea) {
			return true
		}
	}
	return false
}

// inheritedStyle computes the style context an element passes to its
// children by folding tag defaults and inline styles from the root down.
func inheritedStyle(n *html.Node) model.Style {
	var chain []*html.Node
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			chain = append(chain, p)
		}
	}
	var style model.Style
	for i := len(chain) - 1; i >= 0; i-- {
		style = style.Merge(tagStyle(chain[i])).Merge(inlineStyle(chain[i]))
	}
	return style
}

var keptAttrs = []string{"id", "class", "href", "lang", "dir", "title", "role"}

func curatedAttrs(n *html.Node) map[string]string {
	var out map[string]string
	for _, key := range keptAttrs {
		if v, ok := page.Attr(n, key); ok {
			if out == nil {
				out = map[string]string{}
			}
			out[key] = v
		}
	}
	return out
}

func roleOf(n *html.Node) string {
	if v, ok := page.Attr(n, "role"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return "heading-" + n.Data[1:]
	case atom.P:
		return "paragraph"
	case atom.A:
		return "link"
	case atom.Li:
		return "list-item"
	case atom.Ul, atom.Ol:
		return "list"
	case atom.Code, atom.Pre, atom.Kbd, atom.Samp:
		return "code"
	case atom.Blockquote, atom.Q:
		return "quote"
	case atom.Em, atom.I:
		return "emphasis"
	case atom.Strong, atom.B:
		return "strong"
	case atom.Td, atom.Th:
		return "table-cell"
	}
	return "generic"
}
