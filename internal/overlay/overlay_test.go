package overlay

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

const hostHTML = `<html><head><title>t</title></head><body><p id="target">a b
c</p><p id="other">other text</p></body></html>`

func setup(t *testing.T, src string) (*page.Document, *html.Node) {
	t.Helper()
	doc, err := page.ParseString(src, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n, err := doc.FindFirst("//p[@id='target']")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return doc, n
}

func unitsOf(t *testing.T, doc *page.Document) []*html.Node {
	t.Helper()
	nodes, err := doc.Find("//span[@" + UnitAttr + "]")
	if err != nil {
		t.Fatalf("find units: %v", err)
	}
	return nodes
}

func classOf(n *html.Node) string {
	v, _ := page.Attr(n, "class")
	return v
}

func TestRenderOverlayUnits(t *testing.T) {
	doc, region := setup(t, hostHTML)
	frag := model.NewFragment("a b\nc→", map[int]struct{}{5: {}}, nil)
	o := New(doc, frag, Options{Owner: "s1", Region: region})
	if err := o.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	units := unitsOf(t, doc)
	if len(units) != 6 {
		t.Fatalf("expected 6 units, got %d", len(units))
	}
	if units[1].FirstChild != nil || !strings.Contains(classOf(units[1]), "ot-space") {
		t.Fatalf("expected empty space unit, got %q", classOf(units[1]))
	}
	if !strings.Contains(classOf(units[3]), "ot-newline") || units[3].NextSibling.Data != "br" {
		t.Fatalf("expected newline unit followed by <br>")
	}
	if !strings.Contains(classOf(units[5]), "ot-skip") {
		t.Fatalf("expected skip mark on unit 5")
	}
	if !strings.Contains(classOf(units[0]), "ot-current") {
		t.Fatalf("expected unit 0 current, got %q", classOf(units[0]))
	}
	if prev := units[0].PrevSibling; prev == nil || classOf(prev) != "ot-caret" {
		t.Fatalf("expected caret before unit 0")
	}
	if o.Placement() != PlacementDegraded {
		t.Fatalf("expected degraded placement without geometry, got %q", o.Placement())
	}
	if !o.Present() {
		t.Fatalf("expected overlay present")
	}
	styles, _ := doc.Find("//head/style")
	if len(styles) != 1 {
		t.Fatalf("expected injected stylesheet")
	}
}

func TestProgressErrorsAndCursor(t *testing.T) {
	doc, region := setup(t, hostHTML)
	frag := model.NewFragment("abc", nil, nil)
	o := New(doc, frag, Options{Owner: "s1", Region: region})
	if err := o.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	o.ShowError(0)
	units := unitsOf(t, doc)
	if !strings.Contains(classOf(units[0]), "ot-error") {
		t.Fatalf("expected error mark")
	}
	o.ShowError(2)
	o.HighlightProgress(2)
	if !strings.Contains(classOf(units[0]), "ot-completed") || strings.Contains(classOf(units[0]), "ot-error") {
		t.Fatalf("expected completed unit without stale error, got %q", classOf(units[0]))
	}
	if !strings.Contains(classOf(units[2]), "ot-current") || !strings.Contains(classOf(units[2]), "ot-error") {
		t.Fatalf("expected current unit keeping its error, got %q", classOf(units[2]))
	}
	o.ClearError(2)
	if strings.Contains(classOf(units[2]), "ot-error") {
		t.Fatalf("expected error cleared")
	}

	o.UpdateCursor(1)
	if classOf(units[1].PrevSibling) != "ot-caret" {
		t.Fatalf("expected caret before unit 1")
	}
	o.UpdateCursor(3)
	caret := units[2].Parent.LastChild
	if classOf(caret) != "ot-caret ot-hidden" {
		t.Fatalf("expected hidden caret at end, got %q", classOf(caret))
	}
}

func TestCleanupRestoresMarkupInOverlayMode(t *testing.T) {
	doc, region := setup(t, hostHTML)
	before, _ := doc.Render()
	o := New(doc, model.NewFragment("a b", nil, nil), Options{Owner: "s1", Region: region, ShowHints: true})
	if err := o.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	o.ShowHints(false)
	o.Cleanup()
	o.Cleanup()
	after, _ := doc.Render()
	if before != after {
		t.Fatalf("expected original markup after cleanup\nbefore: %s\nafter:  %s", before, after)
	}
	if o.Present() {
		t.Fatalf("expected overlay gone")
	}
}

func TestInPlaceRendersInsideRegion(t *testing.T) {
	doc, region := setup(t, hostHTML)
	original := page.TextContent(region)
	o := New(doc, model.NewFragment("a b\nc", nil, nil), Options{Mode: model.ModeInPlace, Owner: "s1", Region: region})
	if err := o.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	if region.FirstChild == nil || !IsOwned(region.FirstChild) || region.FirstChild != region.LastChild {
		t.Fatalf("expected region to hold only the surface")
	}
	displaced := o.Displaced()
	if len(displaced) != 1 || displaced[0].Data != original {
		t.Fatalf("unexpected displaced nodes %+v", displaced)
	}
	if o.Placement() != PlacementInPlace {
		t.Fatalf("unexpected placement %q", o.Placement())
	}

	// Host drops the surface; a second render mounts again without
	// treating the empty region as original content.
	doc.RemoveNode("host", region.FirstChild)
	if o.Present() {
		t.Fatalf("expected missing surface to be detected")
	}
	if err := o.Render(); err != nil {
		t.Fatalf("rerender: %v", err)
	}
	if !o.Present() || len(o.Displaced()) != 1 {
		t.Fatalf("expected re-render to keep displaced originals")
	}

	o.Cleanup()
	if region.FirstChild != nil {
		t.Fatalf("cleanup must not restore host content")
	}
	doc.ReplaceChildren("s1", region, displaced)
	if page.TextContent(region) != original {
		t.Fatalf("expected restorable content")
	}
}

func TestPositioningChain(t *testing.T) {
	src := `<html><body><p id="target" data-rect="10,20,300,40">Lorem ipsum dolor</p></body></html>`
	doc, region := setup(t, src)
	frag := model.NewFragment("Lorem ipsum dolor", nil, nil)

	sel, _ := page.SelectNodeContents(doc, region)
	o := New(doc, frag, Options{Owner: "a", Selection: sel})
	_ = o.Render()
	if o.Placement() != PlacementSelection {
		t.Fatalf("expected selection placement, got %q", o.Placement())
	}
	o.Cleanup()

	captured := page.Rect{X: 1, Y: 2, Width: 3, Height: 4}
	o = New(doc, frag, Options{Owner: "b", CapturedRect: captured, HasCapturedRect: true})
	_ = o.Render()
	if o.Placement() != PlacementCaptured || o.Rect() != captured {
		t.Fatalf("expected captured placement, got %q %+v", o.Placement(), o.Rect())
	}
	o.Cleanup()

	o = New(doc, frag, Options{Owner: "c"})
	_ = o.Render()
	if o.Placement() != PlacementRelocated || o.Rect().X != 10 {
		t.Fatalf("expected relocated placement, got %q %+v", o.Placement(), o.Rect())
	}
	o.Cleanup()
}

func TestRenderWithoutBody(t *testing.T) {
	root := &html.Node{Type: html.DocumentNode}
	doc := page.NewDocument(root, "")
	o := New(doc, model.NewFragment("abc", nil, nil), Options{Owner: "x"})
	if err := o.Render(); err != ErrNoBody {
		t.Fatalf("expected ErrNoBody, got %v", err)
	}
}
