package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/kbukum/flowgate/orchestrator"
)

// extractText outputs the text of every element matching "Selector" in
// "Html", joined in document order.
func extractText(_ context.Context, n *orchestrator.NodeEnv) error {
	sel, err := parseSelector(n.Input("Selector"))
	if err != nil {
		return err
	}
	doc, err := html.Parse(strings.NewReader(n.Input("Html")))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	matches := sel.match(doc)
	if len(matches) == 0 {
		return fmt.Errorf("no element matches %q", n.Input("Selector"))
	}
	var b strings.Builder
	for _, m := range matches {
		collectText(m, &b)
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if text == "" {
		return fmt.Errorf("element %q has no text", n.Input("Selector"))
	}
	n.SetOutput("Extracted text", text)
	return nil
}

// compound is one selector step: tag, #id and .class constraints.
type compound struct {
	tag     string
	id      string
	classes []string
	// child requires the parent, not just an ancestor, to match the
	// previous step.
	child bool
}

// selector is a chain of compounds joined by descendant (" ") or child
// (">") combinators.
type selector []compound

func parseSelector(raw string) (selector, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ">", " > ")
	if raw == "" {
		return nil, errors.New("selector is empty")
	}
	var (
		sel   selector
		child bool
	)
	for _, tok := range strings.Fields(raw) {
		if tok == ">" {
			if len(sel) == 0 || child {
				return nil, fmt.Errorf("invalid selector %q", raw)
			}
			child = true
			continue
		}
		c, err := parseCompound(tok)
		if err != nil {
			return nil, err
		}
		c.child = child
		child = false
		sel = append(sel, c)
	}
	if child {
		return nil, fmt.Errorf("invalid selector %q", raw)
	}
	return sel, nil
}

func parseCompound(tok string) (compound, error) {
	var c compound
	rest := tok
	i := strings.IndexAny(rest, "#.")
	if i < 0 {
		i = len(rest)
	}
	c.tag = strings.ToLower(rest[:i])
	if c.tag == "*" {
		c.tag = ""
	}
	rest = rest[i:]
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		j := strings.IndexAny(rest, "#.")
		if j < 0 {
			j = len(rest)
		}
		name := rest[:j]
		rest = rest[j:]
		if name == "" {
			return compound{}, fmt.Errorf("invalid selector step %q", tok)
		}
		if kind == '#' {
			c.id = name
		} else {
			c.classes = append(c.classes, name)
		}
	}
	return c, nil
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			found := false
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// match returns the elements under root matched by the whole chain.
func (s selector) match(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if s.matchesAt(n, len(s)-1) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// matchesAt checks step i against n and the earlier steps against n's
// ancestors.
func (s selector) matchesAt(n *html.Node, i int) bool {
	if !s[i].matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if s[i].child {
		return n.Parent != nil && s.matchesAt(n.Parent, i-1)
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if s.matchesAt(p, i-1) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
