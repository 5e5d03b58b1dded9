package htmlpage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

// locator re-runs query against the current document on every call.
// Actions apply to the first match.
type locator struct {
	p     *Page
	query func() ([]*html.Node, error)
}

func (l *locator) derive(q func(nodes []*html.Node) ([]*html.Node, error)) *locator {
	return &locator{p: l.p, query: func() ([]*html.Node, error) {
		nodes, err := l.query()
		if err != nil {
			return nil, err
		}
		return q(nodes)
	}}
}

// resolve runs the query under the page lock. Caller holds p.mu.
func (l *locator) resolve(op string) ([]*html.Node, error) {
	if err := l.p.check(op); err != nil {
		return nil, err
	}
	nodes, err := l.query()
	if err != nil {
		return nil, browser.Wrap(op, err)
	}
	return nodes, nil
}

func (l *locator) first(op string) (*html.Node, error) {
	nodes, err := l.resolve(op)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, browser.Wrap(op, browser.ErrNotFound)
	}
	return nodes[0], nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	nodes, err := l.resolve("count")
	return len(nodes), err
}

func (l *locator) First() browser.Locator { return l.Nth(0) }

func (l *locator) Nth(i int) browser.Locator {
	return l.derive(func(nodes []*html.Node) ([]*html.Node, error) {
		if i < 0 || i >= len(nodes) {
			return nil, nil
		}
		return nodes[i : i+1], nil
	})
}

func (l *locator) All(ctx context.Context) ([]browser.Locator, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Locator, n)
	for i := range out {
		out[i] = l.Nth(i)
	}
	return out, nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	nodes, err := l.resolve("is visible")
	if err != nil || len(nodes) == 0 {
		return false, err
	}
	return visible(nodes[0]), nil
}

// WaitVisible checks once; the document never changes on its own.
func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := l.IsVisible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return browser.Wrap("wait visible", fmt.Errorf("%w after %s", browser.ErrTimeout, timeout))
	}
	return nil
}

func (l *locator) actionable(op string) (*html.Node, error) {
	n, err := l.first(op)
	if err != nil {
		return nil, err
	}
	if !visible(n) {
		return nil, browser.Wrap(op, browser.ErrNotVisible)
	}
	return n, nil
}

func (l *locator) Click(ctx context.Context) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.actionable("click")
	if err != nil {
		return err
	}
	if disabled(n) {
		return browser.Wrap("click", fmt.Errorf("element %s is disabled", describe(n)))
	}
	l.p.record("click", describe(n), "")

	if n.Data == "label" {
		if c := labelledControl(l.p.doc, n); c != nil {
			n = c
		}
	}
	if n.Data == "input" {
		switch strings.ToLower(attrOr(n, "type", "")) {
		case "checkbox":
			if hasAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "")
			}
			return nil
		case "radio":
			setAttr(n, "checked", "")
			return nil
		}
	}
	if href := linkTarget(n); href != "" {
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return nil
		}
		return l.p.load(href)
	}
	if action, ok := submitTarget(n); ok {
		return l.p.load(action)
	}
	return nil
}

// linkTarget returns the href of the nearest enclosing link.
func linkTarget(n *html.Node) string {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.Data == "a" {
			return attrOr(c, "href", "")
		}
	}
	return ""
}

// submitTarget returns the form action a submit control navigates to.
func submitTarget(n *html.Node) (string, bool) {
	isSubmit := false
	switch n.Data {
	case "button":
		t := strings.ToLower(attrOr(n, "type", "submit"))
		isSubmit = t == "submit"
	case "input":
		t := strings.ToLower(attrOr(n, "type", ""))
		isSubmit = t == "submit" || t == "image"
	}
	if !isSubmit {
		return "", false
	}
	if fa, ok := attr(n, "formaction"); ok && fa != "" {
		return fa, true
	}
	for c := n.Parent; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.Data == "form" {
			if a := attrOr(c, "action", ""); a != "" {
				return a, true
			}
			return "", false
		}
	}
	return "", false
}

func (l *locator) Fill(ctx context.Context, value string) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.actionable("fill")
	if err != nil {
		return err
	}
	if !fillable(n) {
		return browser.Wrap("fill", fmt.Errorf("element %s is not an input, textarea or contenteditable", describe(n)))
	}
	if disabled(n) || hasAttr(n, "readonly") {
		return browser.Wrap("fill", fmt.Errorf("element %s is not editable", describe(n)))
	}
	if n.Data == "input" {
		setAttr(n, "value", value)
	} else {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	}
	// The recorded value is masked for password fields.
	recorded := value
	if strings.EqualFold(attrOr(n, "type", ""), "password") {
		recorded = strings.Repeat("*", len(value))
	}
	l.p.record("fill", describe(n), recorded)
	return nil
}

func (l *locator) Hover(ctx context.Context) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.actionable("hover")
	if err != nil {
		return err
	}
	l.p.record("hover", describe(n), "")
	return nil
}

func (l *locator) SelectOption(ctx context.Context, value string) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.actionable("select")
	if err != nil {
		return err
	}
	if n.Data != "select" {
		return browser.Wrap("select", fmt.Errorf("element %s is not a <select>", describe(n)))
	}
	opts := goquery.NewDocumentFromNode(n).Find("option").Nodes
	var chosen *html.Node
	for _, o := range opts {
		if v, ok := attr(o, "value"); ok && v == value {
			chosen = o
			break
		}
	}
	if chosen == nil {
		for _, o := range opts {
			if browser.Fold(value).Matches(nodeText(o)) {
				chosen = o
				break
			}
		}
	}
	if chosen == nil {
		return browser.Wrap("select", fmt.Errorf("%w: no option %q", browser.ErrNotFound, value))
	}
	for _, o := range opts {
		removeAttr(o, "selected")
	}
	setAttr(chosen, "selected", "")
	l.p.record("select", describe(n), value)
	return nil
}

func (l *locator) ScrollIntoView(ctx context.Context) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.actionable("scroll into view")
	if err != nil {
		return err
	}
	l.p.record("scroll", describe(n), "")
	return nil
}

func (l *locator) Text(ctx context.Context) (string, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.first("text")
	if err != nil {
		return "", err
	}
	return nodeText(n), nil
}

func (l *locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.first("attribute")
	if err != nil {
		return "", false, err
	}
	v, ok := attr(n, name)
	return v, ok, nil
}

func (l *locator) TagName(ctx context.Context) (string, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	n, err := l.first("tag name")
	if err != nil {
		return "", err
	}
	return n.Data, nil
}

func (l *locator) Filter(m browser.TextMatch) browser.Locator {
	if m.IsZero() {
		return l
	}
	return l.derive(func(nodes []*html.Node) ([]*html.Node, error) {
		var out []*html.Node
		for _, n := range nodes {
			if m.Mode == browser.MatchContains || m.Mode == "" {
				if browser.Contains(m.Value).Matches(nodeText(n)) {
					out = append(out, n)
				}
				continue
			}
			if m.Matches(nodeText(n)) {
				out = append(out, n)
			}
		}
		return out, nil
	})
}

func (l *locator) CSS(selector string) browser.Locator {
	return l.derive(func(nodes []*html.Node) ([]*html.Node, error) {
		return byCSS(nodes, selector)
	})
}

func (l *locator) ByText(text browser.TextMatch) browser.Locator {
	return l.derive(func(nodes []*html.Node) ([]*html.Node, error) {
		return byText(nodes, text), nil
	})
}

func (l *locator) ByRole(r string, name browser.TextMatch) browser.Locator {
	return l.derive(func(nodes []*html.Node) ([]*html.Node, error) {
		return byRole(l.p.doc, nodes, r, name), nil
	})
}

// describe renders a short element description such as button#save.
func describe(n *html.Node) string {
	s := n.Data
	if id := attrOr(n, "id", ""); id != "" {
		s += "#" + id
	} else if name := attrOr(n, "name", ""); name != "" {
		s += "[name=" + name + "]"
	}
	return s
}

func byCSS(roots []*html.Node, selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	for _, r := range roots {
		for _, n := range cascadia.QueryAll(r, sel) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func collect(roots []*html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	for _, r := range roots {
		for _, n := range elements(r) {
			if !seen[n] && keep(n) {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// byRole matches like the accessibility tree: hidden elements are excluded.
func byRole(doc *goquery.Document, roots []*html.Node, r string, name browser.TextMatch) []*html.Node {
	return collect(roots, func(n *html.Node) bool {
		return role(n) == r && visible(n) && name.Matches(accessibleName(doc, n))
	})
}

// byText returns the innermost elements whose text satisfies m.
func byText(roots []*html.Node, m browser.TextMatch) []*html.Node {
	matches := func(n *html.Node) bool {
		switch n.Data {
		case "html", "head", "body", "script", "style", "title":
			return false
		}
		return m.Matches(nodeText(n))
	}
	return collect(roots, func(n *html.Node) bool {
		if !matches(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && matches(c) {
				return false
			}
		}
		return true
	})
}

func byLabel(doc *goquery.Document, m browser.TextMatch) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	add := func(n *html.Node) {
		if n != nil && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	doc.Find("label").Each(func(_ int, s *goquery.Selection) {
		if m.Matches(nodeText(s.Nodes[0])) {
			add(labelledControl(doc, s.Nodes[0]))
		}
	})
	doc.Find("[aria-label]").Each(func(_ int, s *goquery.Selection) {
		if v, _ := s.Attr("aria-label"); m.Matches(v) {
			add(s.Nodes[0])
		}
	})
	return out
}

func byPlaceholder(roots []*html.Node, m browser.TextMatch) []*html.Node {
	return collect(roots, func(n *html.Node) bool {
		v, ok := attr(n, "placeholder")
		return ok && m.Matches(v)
	})
}

var _ browser.Locator = (*locator)(nil)
