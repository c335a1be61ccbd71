package model

// NodeKind distinguishes text runs from element annotations.
type NodeKind string

const (
	KindText    NodeKind = "text"
	KindElement NodeKind = "element"
)

// Display is the block/inline classification of an element.
type Display string

const (
	DisplayBlock  Display = "block"
	DisplayInline Display = "inline"
)

// Style is the curated subset of text and layout properties kept per node.
// Empty fields are unset.
type Style struct {
	Color          string `json:"color,omitempty" yaml:"color,omitempty"`
	FontWeight     string `json:"font_weight,omitempty" yaml:"font_weight,omitempty"`
	FontStyle      string `json:"font_style,omitempty" yaml:"font_style,omitempty"`
	TextDecoration string `json:"text_decoration,omitempty" yaml:"text_decoration,omitempty"`
	FontFamily     string `json:"font_family,omitempty" yaml:"font_family,omitempty"`
	FontSize       string `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	TextTransform  string `json:"text_transform,omitempty" yaml:"text_transform,omitempty"`
	TextAlign      string `json:"text_align,omitempty" yaml:"text_align,omitempty"`
}

// Merge returns s with every field set in over replacing the value in s.
func (s Style) Merge(over Style) Style {
	if over.Color != "" {
		s.Color = over.Color
	}
	if over.FontWeight != "" {
		s.FontWeight = over.FontWeight
	}
	if over.FontStyle != "" {
		s.FontStyle = over.FontStyle
	}
	if over.TextDecoration != "" {
		s.TextDecoration = over.TextDecoration
	}
	if over.FontFamily != "" {
		s.FontFamily = over.FontFamily
	}
	if over.FontSize != "" {
		s.FontSize = over.FontSize
	}
	if over.TextTransform != "" {
		s.TextTransform = over.TextTransform
	}
	if over.TextAlign != "" {
		s.TextAlign = over.TextAlign
	}
	return s
}

// Fill sets every field that is unset in s from base.
func (s Style) Fill(base Style) Style {
	return base.Merge(s)
}

// IsZero reports whether no property is set.
func (s Style) IsZero() bool {
	return s == Style{}
}

// FormatNode annotates the inclusive rune range [Start, End] of a fragment.
type FormatNode struct {
	Kind    NodeKind          `json:"kind" yaml:"kind"`
	Start   int               `json:"start" yaml:"start"`
	End     int               `json:"end" yaml:"end"`
	Depth   int               `json:"depth" yaml:"depth"`
	Parent  int               `json:"parent" yaml:"parent"`
	Tag     string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Style   Style             `json:"style" yaml:"style"`
	Display Display           `json:"display,omitempty" yaml:"display,omitempty"`
	Role    string            `json:"role,omitempty" yaml:"role,omitempty"`
}

// Covers reports whether offset falls inside the node's range.
func (n FormatNode) Covers(offset int) bool {
	return offset >= n.Start && offset <= n.End
}

// Fragment is captured practice text with its formatting and skip metadata.
// It is not modified after capture.
type Fragment struct {
	Content       string
	SkipPositions map[int]struct{}
	Nodes         []FormatNode
	Source        string

	runes []rune
}

// NewFragment builds a Fragment and caches its rune view.
func NewFragment(content string, skips map[int]struct{}, nodes []FormatNode) *Fragment {
	if skips == nil {
		skips = map[int]struct{}{}
	}
	return &Fragment{
		Content:       content,
		SkipPositions: skips,
		Nodes:         nodes,
		runes:         []rune(content),
	}
}

// Runes returns the content as runes. Callers must not modify the slice.
func (f *Fragment) Runes() []rune {
	if f.runes == nil {
		f.runes = []rune(f.Content)
	}
	return f.runes
}

// Len is the content length in runes.
func (f *Fragment) Len() int {
	return len(f.Runes())
}

// IsSkip reports whether offset is a skip position.
func (f *Fragment) IsSkip(offset int) bool {
	_, ok := f.SkipPositions[offset]
	return ok
}
