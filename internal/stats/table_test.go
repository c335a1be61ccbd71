package stats

import (
	"bytes"
	"testing"

	"github.com/verte-zerg/overtype/internal/model"
)

func TestRenderSkipsAlignsCounts(t *testing.T) {
	skips := map[string]int{
		model.SkipShortcut:  12,
		model.SkipParagraph: 140,
		"symbol":            3,
	}
	var buf bytes.Buffer
	if err := RenderSkips(&buf, skips); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Skips\nReason    Characters\nparagraph        140\nshortcut          12\nsymbol             3\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected skips table:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestFormatTableMeasuresWideRunes(t *testing.T) {
	rows := [][]string{
		{"漢字です", "41"},
		{"abc", "7"},
	}
	lines := formatTable([]string{"Text", "WPM"}, rows, map[int]bool{1: true})
	want := []string{
		"Text     WPM",
		"漢字です  41",
		"abc        7",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
