package overlay

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/page"
)

// HintText is shown while hints are enabled.
const HintText = "Tab: skip character · Shift+Tab: skip paragraph · Esc: exit"

// leadingRunes is how much of the fragment is matched when relocating.
const leadingRunes = 24

const stylesheet = `.ot-surface{white-space:pre-wrap;z-index:2147483647}
.ot-overlay{background:rgba(255,255,255,.96)}
.ot-unit.ot-pending{opacity:.55}
.ot-unit.ot-completed{opacity:1}
.ot-unit.ot-current{background:rgba(200,154,58,.25)}
.ot-unit.ot-error{color:#ff4d4f!important;background:rgba(255,77,79,.15)}
.ot-unit.ot-skip{opacity:.35;text-decoration:line-through}
.ot-space{display:inline-block;width:.5em}
.ot-tab{display:inline-block;width:2em}
.ot-newline{display:inline-block;width:.5em}
.ot-caret{display:inline-block;width:0;border-left:2px solid #c89a3a;margin-right:-2px}
.ot-hints{font:12px sans-serif;opacity:.7}
.ot-hidden{display:none}
`

// position walks the fallback chain: live selection geometry, the rect
// captured before mutation, the box of an element whose text starts like
// the fragment, and finally an unpositioned layout.
func (o *Overlay) position() (Placement, page.Rect) {
	if o.opts.Selection != nil {
		if r, ok := o.opts.Selection.BoundingRect(); ok && !r.Empty() {
			return PlacementSelection, r
		}
	}
	if o.opts.HasCapturedRect && !o.opts.CapturedRect.Empty() {
		return PlacementCaptured, o.opts.CapturedRect
	}
	if r, ok := o.relocate(); ok {
		return PlacementRelocated, r
	}
	return PlacementDegraded, page.Rect{}
}

func (o *Overlay) relocate() (page.Rect, bool) {
	lead := normalize(o.frag.Content)
	if r := []rune(lead); len(r) > leadingRunes {
		lead = string(r[:leadingRunes])
	}
	if lead == "" {
		return page.Rect{}, false
	}
	// Deepest candidates come last; measure outside the read lock.
	var candidates []*html.Node
	o.doc.View(func(root *html.Node) {
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				if IsOwned(n) {
					return
				}
				if strings.HasPrefix(normalize(page.TextContentExcluding(n, IsOwned)), lead) {
					candidates = append(candidates, n)
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(root)
	})
	for i := len(candidates) - 1; i >= 0; i-- {
		if r, ok := o.doc.Rect(candidates[i]); ok && !r.Empty() {
			return r, true
		}
	}
	return page.Rect{}, false
}

func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func containerStyle(p Placement, r page.Rect) string {
	if p == PlacementDegraded {
		return "position:relative;"
	}
	return fmt.Sprintf("position:absolute;left:%gpx;top:%gpx;width:%gpx;min-height:%gpx;",
		r.X, r.Y, r.Width, r.Height)
}
