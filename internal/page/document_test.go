package page

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const testHTML = `<html><head><title>t</title></head><body>
<article id="main"><h1>Title</h1><p id="p1">Hello <b>bold</b> world.</p><p id="p2">Second one.</p></article>
<aside id="side">elsewhere</aside>
</body></html>`

func mustDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(testHTML, "test.html")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func mustFind(t *testing.T, doc *Document, expr string) *html.Node {
	t.Helper()
	n, err := doc.FindFirst(expr)
	if err != nil {
		t.Fatalf("find %s: %v", expr, err)
	}
	return n
}

func TestWatchNotifiesForRegionMutations(t *testing.T) {
	doc := mustDoc(t)
	p1 := mustFind(t, doc, "//p[@id='p1']")
	side := mustFind(t, doc, "//aside")

	var got []Mutation
	unsubscribe := doc.Watch(p1, func(m Mutation) { got = append(got, m) })

	doc.SetText("", p1.FirstChild, "Changed ")
	doc.SetAttr("", side, "class", "x")
	if len(got) != 1 || got[0].Op != OpText {
		t.Fatalf("expected one text mutation, got %+v", got)
	}

	doc.RemoveNode("host", p1)
	if len(got) != 2 || got[1].Op != OpRemove || got[1].Origin != "host" {
		t.Fatalf("expected removal of region to notify, got %+v", got)
	}

	unsubscribe()
	unsubscribe()
	doc.SetAttr("", p1, "class", "y")
	if len(got) != 2 {
		t.Fatalf("expected no notifications after unsubscribe, got %d", len(got))
	}
	if doc.WatcherCount() != 0 {
		t.Fatalf("expected no watchers, got %d", doc.WatcherCount())
	}
}

func TestCallbackMayMutateDocument(t *testing.T) {
	doc := mustDoc(t)
	p2 := mustFind(t, doc, "//p[@id='p2']")
	calls := 0
	doc.Watch(p2, func(m Mutation) {
		calls++
		if m.Origin == "" {
			doc.SetAttr("self", p2, "data-seen", "1")
		}
	})
	doc.SetAttr("", p2, "class", "z")
	if calls != 2 {
		t.Fatalf("expected nested notification, got %d calls", calls)
	}
	if v, _ := Attr(p2, "data-seen"); v != "1" {
		t.Fatalf("expected nested mutation to apply")
	}
}

func TestReplaceChildrenReturnsOriginals(t *testing.T) {
	doc := mustDoc(t)
	p1 := mustFind(t, doc, "//p[@id='p1']")
	before := TextContent(p1)

	span := &html.Node{Type: html.ElementNode, Data: "span"}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: "x"})
	old := doc.ReplaceChildren("s", p1, []*html.Node{span})
	if TextContent(p1) != "x" {
		t.Fatalf("expected replacement content, got %q", TextContent(p1))
	}
	doc.ReplaceChildren("s", p1, old)
	if TextContent(p1) != before {
		t.Fatalf("expected restored content %q, got %q", before, TextContent(p1))
	}
}

func TestLifecycleEvents(t *testing.T) {
	doc := mustDoc(t)
	var events []Event
	off := doc.OnEvent(func(e Event) { events = append(events, e) })
	doc.SetHidden(true)
	doc.SetHidden(true)
	doc.Unload()
	off()
	doc.SetHidden(false)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Type != EventVisibility || !events[0].Hidden || events[1].Type != EventUnload {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSelectTextAcrossNodes(t *testing.T) {
	doc := mustDoc(t)
	p1 := mustFind(t, doc, "//p[@id='p1']")
	sel, err := SelectText(doc, p1, 3, 13)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := sel.String(); got != "lo bold wo" {
		t.Fatalf("unexpected selection text %q", got)
	}
	if len(sel.Runs()) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(sel.Runs()))
	}
	if sel.CommonAncestor() != p1 {
		t.Fatalf("expected p1 as common ancestor")
	}
	clone := sel.Clone()
	if clone.String() != sel.String() {
		t.Fatalf("clone differs")
	}
}

func TestSelectNodeContents(t *testing.T) {
	doc := mustDoc(t)
	article := mustFind(t, doc, "//article")
	sel, err := SelectNodeContents(doc, article)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := sel.String(); got != "TitleHello bold world.Second one." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestSelectTextOutOfRange(t *testing.T) {
	doc := mustDoc(t)
	p2 := mustFind(t, doc, "//p[@id='p2']")
	if _, err := SelectText(doc, p2, 0, 200); err == nil {
		t.Fatalf("expected error for out of range selection")
	}
}

func TestBoundingRect(t *testing.T) {
	doc, err := ParseString(`<body><p data-rect="10,20,100,16">ab <b data-rect="40,20,20,16">cd</b></p><p>ef</p></body>`, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := mustFind(t, doc, "//p[1]")
	sel, err := SelectNodeContents(doc, p)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	r, ok := sel.BoundingRect()
	if !ok {
		t.Fatalf("expected rect")
	}
	if r != (Rect{X: 10, Y: 20, Width: 100, Height: 16}) {
		t.Fatalf("unexpected rect %+v", r)
	}

	p2 := mustFind(t, doc, "//p[2]")
	sel2, _ := SelectNodeContents(doc, p2)
	if _, ok := sel2.BoundingRect(); ok {
		t.Fatalf("expected no rect for unmeasured element")
	}
}

func TestFindXPathSubset(t *testing.T) {
	doc := mustDoc(t)
	cases := []struct {
		expr string
		want int
	}{
		{"//p", 2},
		{"/html/body/article/p", 2},
		{"//article/p[2]", 1},
		{"//*[@id='side']", 1},
		{"p[@id]", 2},
		{"//article//b", 1},
		{"//table", 0},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			nodes, err := doc.Find(tc.expr)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if len(nodes) != tc.want {
				t.Fatalf("expected %d nodes, got %d", tc.want, len(nodes))
			}
		})
	}
	if _, err := doc.Find("//p[x"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSanitizeKeepsStructure(t *testing.T) {
	out := string(Sanitize([]byte(`<p style="color: red" onclick="x()">hi<script>alert(1)</script></p>`)))
	if strings.Contains(out, "script") || strings.Contains(out, "onclick") {
		t.Fatalf("expected active content removed: %s", out)
	}
	if !strings.Contains(out, "hi") {
		t.Fatalf("expected text kept: %s", out)
	}
}
