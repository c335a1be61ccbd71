package overlay

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/overtype/internal/format"
	"github.com/verte-zerg/overtype/internal/model"
)

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	skipStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

type styledRune struct {
	s         string
	width     int
	isSpace   bool
	isNewline bool
}

// View renders the surface for a terminal of the given width, using the
// same progress, cursor and error state as the page units.
func (o *Overlay) View(width int) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	cursor := o.cursor
	if cursor >= len(o.states) {
		cursor = -1
	}
	runes := buildStyledRunes(o.frag, o.format, o.completed, cursor, o.errors)
	out := wrapStyledRunes(runes, width)
	if o.showHints {
		out += "\n\n" + hintStyle.Render(HintText)
	}
	return out
}

func buildStyledRunes(frag *model.Fragment, fm *format.Model, completed, cursorIndex int, errs map[int]bool) []styledRune {
	targetRunes := frag.Runes()
	words := findWords(targetRunes)
	currentWord := wordForCursor(words, cursorIndex)

	out := make([]styledRune, 0, len(targetRunes))
	for i, target := range targetRunes {
		displayed := target
		newline := target == '\n' || target == '\r'
		if newline || target == '\t' {
			displayed = ' '
		}
		style := pendingStyle
		switch {
		case errs[i]:
			style = incorrectStyle
			if unicode.IsSpace(target) {
				displayed = '•'
			}
		case i < completed:
			style = correctStyle
		case frag.IsSkip(i):
			style = skipStyle
		case currentWord != nil && i >= currentWord.start && i < currentWord.end:
			style = currentWordStyle
		}
		style = applyFormat(style, fm.StyleAt(i))
		if i == cursorIndex {
			style = style.Underline(true)
		}
		out = append(out, styledRune{
			s:         style.Render(string(displayed)),
			width:     runewidth.RuneWidth(displayed),
			isSpace:   unicode.IsSpace(target),
			isNewline: newline,
		})
	}
	return out
}

func applyFormat(style lipgloss.Style, s model.Style) lipgloss.Style {
	switch s.FontWeight {
	case "bold", "bolder", "600", "700", "800", "900":
		style = style.Bold(true)
	}
	if s.FontStyle == "italic" || s.FontStyle == "oblique" {
		style = style.Italic(true)
	}
	if strings.Contains(s.TextDecoration, "underline") {
		style = style.Underline(true)
	}
	if strings.Contains(s.TextDecoration, "line-through") {
		style = style.Strikethrough(true)
	}
	return style
}

type wordRange struct {
	start int
	end   int
}

func findWords(targetRunes []rune) []wordRange {
	words := []wordRange{}
	start := -1
	for i, r := range targetRunes {
		if unicode.IsSpace(r) {
			if start != -1 {
				words = append(words, wordRange{start: start, end: i})
				start = -1
			}
			continue
		}
		if start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, wordRange{start: start, end: len(targetRunes)})
	}
	return words
}

func wordForCursor(words []wordRange, cursorIndex int) *wordRange {
	if len(words) == 0 || cursorIndex < 0 {
		return nil
	}
	for i, w := range words {
		if cursorIndex < w.end {
			if cursorIndex < w.start {
				return nil
			}
			return &words[i]
		}
	}
	return nil
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks lines at the last space that fits, hard-breaks
// words longer than width, and always breaks after a newline unit.
func wrapStyledRunes(runes []styledRune, width int) string {
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if width > 0 && lineWidth+item.width > width && len(line) > 0 && !item.isNewline {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx+1]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isNewline {
			out.WriteString(renderStyledRunes(line))
			out.WriteRune('\n')
			line = line[:0]
			lineWidth = 0
			lastSpaceIdx = -1
			i++
			continue
		}
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
