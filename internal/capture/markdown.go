package capture

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the captured region as markdown. Overlay-owned nodes
// never appear because capture happens before the session mutates the page.
func Markdown(res *Result) (string, error) {
	if res == nil || res.Region == nil {
		return "", fmt.Errorf("capture: no region")
	}
	var (
		buf bytes.Buffer
		err error
	)
	res.Selection.Document().View(func(*html.Node) {
		err = html.Render(&buf, res.Region)
	})
	if err != nil {
		return "", fmt.Errorf("capture: render region: %w", err)
	}
	out, err := mdConverter.ConvertString(buf.String(), converter.WithDomain(res.Fragment.Source))
	if err != nil {
		return "", fmt.Errorf("capture: convert markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Excerpt is the first line of content cut to limit runes.
func Excerpt(content string, limit int) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	r := []rune(strings.TrimSpace(line))
	if limit > 0 && len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return string(r)
}
