package capture

import (
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
)

var headingSizes = map[atom.Atom]string{
	atom.H1: "2em",
	atom.H2: "1.5em",
	atom.H3: "1.17em",
	atom.H4: "1em",
	atom.H5: "0.83em",
	atom.H6: "0.67em",
}

// tagStyle is the user-agent default a tag contributes.
func tagStyle(n *html.Node) model.Style {
	switch n.DataAtom {
	case atom.B, atom.Strong, atom.Th:
		return model.Style{FontWeight: "bold"}
	case atom.I, atom.Em, atom.Cite, atom.Var, atom.Dfn:
		return model.Style{FontStyle: "italic"}
	case atom.U, atom.Ins:
		return model.Style{TextDecoration: "underline"}
	case atom.A:
		if _, ok := page.Attr(n, "href"); ok {
			return model.Style{TextDecoration: "underline"}
		}
	case atom.S, atom.Strike, atom.Del:
		return model.Style{TextDecoration: "line-through"}
	case atom.Code, atom.Pre, atom.Kbd, atom.Samp, atom.Tt:
		return model.Style{FontFamily: "monospace"}
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return model.Style{FontWeight: "bold", FontSize: headingSizes[n.DataAtom]}
	case atom.Center:
		return model.Style{TextAlign: "center"}
	}
	return model.Style{}
}

// inlineStyle parses the curated properties out of the style attribute.
// Malformed declarations are ignored.
func inlineStyle(n *html.Node) model.Style {
	raw, ok := page.Attr(n, "style")
	if !ok || strings.TrimSpace(raw) == "" {
		return model.Style{}
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return model.Style{}
	}
	var s model.Style
	for _, d := range decls {
		v := strings.TrimSpace(d.Value)
		if v == "" || v == "inherit" {
			continue
		}
		switch strings.ToLower(d.Property) {
		case "color":
			s.Color = v
		case "font-weight":
			s.FontWeight = v
		case "font-style":
			s.FontStyle = v
		case "text-decoration", "text-decoration-line":
			s.TextDecoration = v
		case "font-family":
			s.FontFamily = v
		case "font-size":
			s.FontSize = v
		case "text-transform":
			s.TextTransform = v
		case "text-align":
			s.TextAlign = v
		}
	}
	return s
}

var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Dd: true, atom.Details: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Html: true, atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true, atom.Table: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.Tr: true, atom.Td: true,
	atom.Th: true, atom.Ul: true, atom.Caption: true, atom.Center: true,
}

// displayOf classifies n as block or inline. An explicit display
// declaration in the style attribute wins over the tag default.
func displayOf(n *html.Node) model.Display {
	if raw, ok := page.Attr(n, "style"); ok && strings.Contains(raw, "display") {
		if decls, err := parser.ParseDeclarations(raw); err == nil {
			for _, d := range decls {
				if !strings.EqualFold(d.Property, "display") {
					continue
				}
				v := strings.ToLower(strings.TrimSpace(d.Value))
				switch {
				case strings.HasPrefix(v, "inline"):
					return model.DisplayInline
				case v == "contents":
					return model.DisplayInline
				case v != "":
					return model.DisplayBlock
				}
			}
		}
	}
	if blockTags[n.DataAtom] {
		return model.DisplayBlock
	}
	return model.DisplayInline
}
