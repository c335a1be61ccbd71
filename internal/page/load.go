package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/microcosm-cc/bluemonday"
)

// LoadOptions controls how a page is obtained.
type LoadOptions struct {
	// Sanitize strips scripts, event handlers and other active content.
	Sanitize bool
	// Browser renders remote pages in headless Chrome so geometry is known.
	Browser bool
	// Timeout bounds remote fetches. Default: 30s.
	Timeout time.Duration
}

const maxPageBytes = 16 << 20

// rectScript stamps every element with its layout box before serialising.
const rectScript = `() => {
	for (const el of document.querySelectorAll('body, body *')) {
		const r = el.getBoundingClientRect();
		el.setAttribute('` + RectAttr + `', [r.left + window.scrollX, r.top + window.scrollY, r.width, r.height].join(','));
	}
}`

// Load reads a page from a local path or an http(s) URL.
func Load(ctx context.Context, target string, opts LoadOptions) (*Document, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case isRemote(target) && opts.Browser:
		data, err = fetchRendered(ctx, target, opts.Timeout)
	case isRemote(target):
		data, err = fetchHTTP(ctx, target, opts.Timeout)
	default:
		data, err = os.ReadFile(target)
	}
	if err != nil {
		return nil, err
	}
	if opts.Sanitize {
		data = Sanitize(data)
	}
	return Parse(bytes.NewReader(data), target)
}

// Sanitize removes active content while keeping the structure, inline
// styles and geometry attributes that capture relies on.
func Sanitize(data []byte) []byte {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("style", "class", "id", "role", "lang", "dir", "title", "contenteditable", RectAttr).Globally()
	policy.AllowStyles("color", "font-weight", "font-style", "text-decoration", "font-family",
		"font-size", "text-transform", "text-align").Globally()
	policy.AllowElements("article", "section", "main", "header", "footer", "aside", "nav", "figure", "figcaption", "span", "div")
	policy.AllowElements("input", "textarea", "select", "option", "label", "button")
	policy.AllowAttrs("type", "value", "name", "placeholder").OnElements("input", "textarea", "select", "option", "button")
	return policy.SanitizeBytes(data)
}

func isRemote(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func fetchHTTP(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("page: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page: fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page: fetch %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("page: read %s: %w", url, err)
	}
	return data, nil
}

// fetchRendered loads url in headless Chrome, records element geometry and
// returns the serialised DOM.
func fetchRendered(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browser := rod.New().Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("page: connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	p, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("page: open %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page: wait load %s: %w", url, err)
	}
	if _, err := p.Eval(rectScript); err != nil {
		return nil, fmt.Errorf("page: measure %s: %w", url, err)
	}
	out, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("page: serialise %s: %w", url, err)
	}
	return []byte(out), nil
}
