package page

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// RectAttr carries layout boxes serialised by a browser host ("x,y,w,h").
const RectAttr = "data-rect"

// Rect is a layout box in page coordinates.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest box containing r and o. Empty boxes are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x1 := minf(r.X, o.X)
	y1 := minf(r.Y, o.Y)
	x2 := maxf(r.X+r.Width, o.X+o.Width)
	y2 := maxf(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// String formats the rect the way RectAttr expects it.
func (r Rect) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.X, r.Y, r.Width, r.Height)
}

// ParseRect parses "x,y,w,h".
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("page: rect %q: want 4 components", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, fmt.Errorf("page: rect %q: %w", s, err)
		}
		vals[i] = v
	}
	return Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

// SetRect records the layout box of n.
func (d *Document) SetRect(n *html.Node, r Rect) {
	d.mu.Lock()
	d.rects[n] = r
	d.mu.Unlock()
}

// Rect returns the layout box of an element, from SetRect or RectAttr.
func (d *Document) Rect(n *html.Node) (Rect, bool) {
	if n == nil {
		return Rect{}, false
	}
	d.mu.RLock()
	r, ok := d.rects[n]
	d.mu.RUnlock()
	if ok {
		return r, true
	}
	if v, ok := Attr(n, RectAttr); ok {
		parsed, err := ParseRect(v)
		if err == nil {
			return parsed, true
		}
	}
	return Rect{}, false
}

// elementRect walks up from n to the nearest element with a known box.
func (d *Document) elementRect(n *html.Node) (Rect, bool) {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if r, ok := d.Rect(p); ok {
			return r, true
		}
	}
	return Rect{}, false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
