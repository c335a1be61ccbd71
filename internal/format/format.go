// Package format resolves the captured annotations that cover a character.
package format

import (
	"sort"

	"github.com/verte-zerg/overtype/internal/model"
)

// Model answers per-offset formatting queries over a fragment's nodes.
// Styles on the nodes are the inherited values recorded at capture time and
// are never recomputed here.
type Model struct {
	nodes []model.FormatNode
}

// New builds a Model. nodes must be sorted by (Start, Depth).
func New(nodes []model.FormatNode) *Model {
	return &Model{nodes: nodes}
}

// Nodes returns the underlying annotations.
func (m *Model) Nodes() []model.FormatNode {
	return m.nodes
}

// At returns the nodes covering offset, shallowest first.
func (m *Model) At(offset int) []model.FormatNode {
	// Nodes start at or before offset; everything after that index starts later.
	limit := sort.Search(len(m.nodes), func(i int) bool {
		return m.nodes[i].Start > offset
	})
	var out []model.FormatNode
	for _, n := range m.nodes[:limit] {
		if n.Covers(offset) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Depth < out[j].Depth
	})
	return out
}

// StyleAt merges element styles deepest first; the first value set for a
// property wins and shallower nodes only fill what is still unset.
func (m *Model) StyleAt(offset int) model.Style {
	covering := m.At(offset)
	var style model.Style
	for i := len(covering) - 1; i >= 0; i-- {
		n := covering[i]
		if n.Kind != model.KindElement {
			continue
		}
		style = style.Fill(n.Style)
	}
	if style.IsZero() {
		// Text-only coverage still carries the inherited context.
		for i := len(covering) - 1; i >= 0; i-- {
			if covering[i].Kind == model.KindText {
				return covering[i].Style
			}
		}
	}
	return style
}

// RoleAt returns the semantic role of the deepest element covering offset
// that has one other than "generic".
func (m *Model) RoleAt(offset int) string {
	covering := m.At(offset)
	for i := len(covering) - 1; i >= 0; i-- {
		n := covering[i]
		if n.Kind == model.KindElement && n.Role != "" && n.Role != "generic" {
			return n.Role
		}
	}
	return ""
}

// BlockStarts lists the offsets at which a block element begins, ascending
// and without duplicates.
func (m *Model) BlockStarts() []int {
	var out []int
	seen := map[int]bool{}
	for _, n := range m.nodes {
		if n.Kind != model.KindElement || n.Display != model.DisplayBlock || seen[n.Start] {
			continue
		}
		seen[n.Start] = true
		out = append(out, n.Start)
	}
	return out
}
