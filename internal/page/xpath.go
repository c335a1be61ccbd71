package page

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Find evaluates a practical XPath subset against the document:
//
//	/html/body/article/p   absolute child steps
//	//article//p           descendant steps anywhere in the path
//	//div[@id='main']      attribute equality, [@attr] presence
//	//p[2]                 1-based position among matching siblings
//	*                      any element
func (d *Document) Find(expr string) ([]*html.Node, error) {
	steps, err := parseSteps(expr)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	current := []*html.Node{d.root}
	for _, st := range steps {
		var next []*html.Node
		seen := map[*html.Node]bool{}
		for _, ctx := range current {
			for _, m := range st.apply(ctx) {
				if !seen[m] {
					seen[m] = true
					next = append(next, m)
				}
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current, nil
}

// FindFirst returns the first match of expr.
func (d *Document) FindFirst(expr string) (*html.Node, error) {
	nodes, err := d.Find(expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("page: no element matches %q", expr)
	}
	return nodes[0], nil
}

type step struct {
	descendant bool
	tag        string
	attrName   string
	attrValue  string
	hasValue   bool
	position   int
}

func parseSteps(expr string) ([]step, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("page: empty xpath")
	}
	if !strings.HasPrefix(expr, "/") {
		expr = "//" + expr
	}
	var steps []step
	for i := 0; i < len(expr); {
		if expr[i] != '/' {
			return nil, fmt.Errorf("page: xpath %q: expected '/' at %d", expr, i)
		}
		desc := false
		i++
		if i < len(expr) && expr[i] == '/' {
			desc = true
			i++
		}
		j := i
		depth := 0
		for j < len(expr) && (expr[j] != '/' || depth > 0) {
			switch expr[j] {
			case '[':
				depth++
			case ']':
				depth--
			}
			j++
		}
		raw := expr[i:j]
		if raw == "" {
			return nil, fmt.Errorf("page: xpath %q: empty step", expr)
		}
		st, err := parseStep(raw)
		if err != nil {
			return nil, fmt.Errorf("page: xpath %q: %w", expr, err)
		}
		st.descendant = desc
		steps = append(steps, st)
		i = j
	}
	return steps, nil
}

func parseStep(raw string) (step, error) {
	st := step{tag: raw}
	idx := strings.IndexByte(raw, '[')
	if idx < 0 {
		return st, nil
	}
	if !strings.HasSuffix(raw, "]") {
		return st, fmt.Errorf("unterminated predicate in %q", raw)
	}
	st.tag = raw[:idx]
	pred := raw[idx+1 : len(raw)-1]
	if n, err := strconv.Atoi(pred); err == nil {
		if n < 1 {
			return st, fmt.Errorf("position must be >= 1 in %q", raw)
		}
		st.position = n
		return st, nil
	}
	if !strings.HasPrefix(pred, "@") {
		return st, fmt.Errorf("unsupported predicate %q", pred)
	}
	attr := pred[1:]
	if eq := strings.IndexByte(attr, '='); eq >= 0 {
		st.attrName = attr[:eq]
		st.attrValue = strings.Trim(attr[eq+1:], `'"`)
		st.hasValue = true
	} else {
		st.attrName = attr
	}
	return st, nil
}

func (st step) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if st.tag != "*" && n.Data != st.tag {
		return false
	}
	if st.attrName == "" {
		return true
	}
	v, ok := Attr(n, st.attrName)
	if !ok {
		return false
	}
	return !st.hasValue || v == st.attrValue
}

func (st step) apply(ctx *html.Node) []*html.Node {
	var parents []*html.Node
	if st.descendant {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			parents = append(parents, n)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(ctx)
	} else {
		parents = []*html.Node{ctx}
	}
	var out []*html.Node
	for _, p := range parents {
		pos := 0
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if !st.matches(c) {
				continue
			}
			pos++
			if st.position == 0 || st.position == pos {
				out = append(out, c)
			}
		}
	}
	return out
}
