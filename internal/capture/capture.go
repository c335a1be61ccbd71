// Package capture turns a host page selection into a practice fragment:
// the text to type, the formatting annotations needed to re-render it and
// the offsets that are exempt from strict typing.
package capture

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

// ErrInvalidSelection is returned when a selection cannot start a session.
var ErrInvalidSelection = errors.New("invalid selection")

const (
	DefaultMinLength = 3
	DefaultMaxLength = 10000
)

// Options bounds acceptable selections.
type Options struct {
	MinLength int
	MaxLength int
}

func (o *Options) defaults() {
	if o.MinLength <= 0 {
		o.MinLength = DefaultMinLength
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
}

// Result is a successful capture.
type Result struct {
	Fragment  *model.Fragment
	Selection *page.Selection
	// Region is the nearest block element containing the selection.
	Region *html.Node
	// Rect is the selection box measured before any DOM mutation.
	Rect    page.Rect
	HasRect bool
}

// Capture validates sel and extracts its fragment.
func Capture(sel *page.Selection, opts Options) (*Result, error) {
	opts.defaults()
	if sel == nil {
		return nil, fmt.Errorf("%w: no selection", ErrInvalidSelection)
	}
	if err := validate(sel, opts); err != nil {
		return nil, err
	}

	doc := sel.Document()
	var (
		frag   *model.Fragment
		region *html.Node
	)
	doc.View(func(*html.Node) {
		frag = extract(sel)
		region = blockAncestor(sel.CommonAncestor())
	})
	if frag.Len() == 0 {
		return nil, fmt.Errorf("%w: no visible text", ErrInvalidSelection)
	}
	frag.Source = doc.Source()

	res := &Result{Fragment: frag, Selection: sel.Clone(), Region: region}
	if r, ok := sel.BoundingRect(); ok {
		res.Rect, res.HasRect = r, true
	} else if r, ok := doc.Rect(region); ok && !r.Empty() {
		res.Rect, res.HasRect = r, true
	}
	return res, nil
}

func validate(sel *page.Selection, opts Options) error {
	text := strings.TrimSpace(sel.String())
	if text == "" {
		return fmt.Errorf("%w: selection is empty", ErrInvalidSelection)
	}
	if strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
		return fmt.Errorf("%w: selection has only whitespace", ErrInvalidSelection)
	}
	n := utf8.RuneCountInString(text)
	if n < opts.MinLength {
		return fmt.Errorf("%w: selection too short (%d < %d)", ErrInvalidSelection, n, opts.MinLength)
	}
	if n > opts.MaxLength {
		return fmt.Errorf("%w: selection too long (%d > %d)", ErrInvalidSelection, n, opts.MaxLength)
	}
	for _, run := range sel.Runs() {
		if insideEditable(run.Node) {
			return fmt.Errorf("%w: selection is inside an editable element", ErrInvalidSelection)
		}
	}
	return nil
}

func insideEditable(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.DataAtom {
		case atom.Input, atom.Textarea, atom.Select:
			return true
		}
		if v, ok := page.Attr(p, "contenteditable"); ok && !strings.EqualFold(v, "false") {
			return true
		}
	}
	return false
}

func blockAncestor(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && displayOf(p) == model.DisplayBlock {
			return p
		}
	}
	return n
}

// SkipPositions lists offsets of control characters (other than tab,
// newline and carriage return) and symbols from the arrow, mathematical,
// technical and geometric blocks.
func SkipPositions(content string) map[int]struct{} {
	out := map[int]struct{}{}
	i := 0
	for _, r := range content {
		if IsSkipRune(r) {
			out[i] = struct{}{}
		}
		i++
	}
	return out
}

var skipRanges = [][2]rune{
	{0x2190, 0x21FF}, // arrows
	{0x2200, 0x22FF}, // mathematical operators
	{0x2300, 0x23FF}, // miscellaneous technical
	{0x25A0, 0x25FF}, // geometric shapes
	{0x27F0, 0x27FF}, // supplemental arrows-A
	{0x2900, 0x297F}, // supplemental arrows-B
}

// IsSkipRune reports whether r is exempt from strict typing.
func IsSkipRune(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if unicode.IsControl(r) {
		return true
	}
	for _, rg := range skipRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

func sortNodes(nodes []model.FormatNode) []model.FormatNode {
	idx := make([]int, len(nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		na, nb := nodes[idx[a]], nodes[idx[b]]
		if na.Start != nb.Start {
			return na.Start < nb.Start
		}
		return na.Depth < nb.Depth
	})
	remap := make(map[int]int, len(nodes))
	for newPos, old := range idx {
		remap[old] = newPos
	}
	out := make([]model.FormatNode, len(nodes))
	for newPos, old := range idx {
		n := nodes[old]
		if n.Parent >= 0 {
			n.Parent = remap[n.Parent]
		}
		out[newPos] = n
	}
	return out
}
