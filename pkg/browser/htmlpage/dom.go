package htmlpage

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key, def string) string {
	if v, ok := attr(n, key); ok {
		return v
	}
	return def
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// nodeText returns the whitespace-normalized rendered text of n, skipping
// script, style and hidden subtrees.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch c.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
			if hiddenSelf(c) {
				return
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return browser.NormalizeSpace(b.String())
}

// hiddenSelf reports whether n itself hides its subtree.
func hiddenSelf(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if v, _ := attr(n, "aria-hidden"); v == "true" {
		return true
	}
	if n.Data == "input" && strings.EqualFold(attrOr(n, "type", ""), "hidden") {
		return true
	}
	style := strings.ToLower(strings.ReplaceAll(attrOr(n, "style", ""), " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// visible reports whether n and all of its ancestors are rendered.
func visible(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "head", "script", "style", "template", "title", "meta":
			return false
		}
		if hiddenSelf(c) {
			return false
		}
	}
	return true
}

var inputRoles = map[string]string{
	"":         "textbox",
	"text":     "textbox",
	"email":    "textbox",
	"tel":      "textbox",
	"url":      "textbox",
	"search":   "searchbox",
	"number":   "spinbutton",
	"checkbox": "checkbox",
	"radio":    "radio",
	"submit":   "button",
	"button":   "button",
	"reset":    "button",
	"image":    "button",
	"range":    "slider",
}

var tagRoles = map[string]string{
	"button":   "button",
	"textarea": "textbox",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"li":       "listitem",
	"ul":       "list",
	"ol":       "list",
	"nav":      "navigation",
	"main":     "main",
	"article":  "article",
	"table":    "table",
	"tr":       "row",
	"td":       "cell",
	"option":   "option",
	"dialog":   "dialog",
	"form":     "form",
}

// role returns the explicit or implicit ARIA role of n.
func role(n *html.Node) string {
	if r, ok := attr(n, "role"); ok {
		if f := strings.Fields(r); len(f) > 0 {
			return f[0]
		}
	}
	switch n.Data {
	case "a", "area":
		if _, ok := attr(n, "href"); ok {
			return "link"
		}
		return ""
	case "input":
		return inputRoles[strings.ToLower(attrOr(n, "type", ""))]
	case "select":
		if _, ok := attr(n, "multiple"); ok {
			return "listbox"
		}
		return "combobox"
	case "img":
		if alt, ok := attr(n, "alt"); ok && alt != "" {
			return "img"
		}
		return ""
	}
	return tagRoles[n.Data]
}

// accessibleName approximates the accessible name computation.
func accessibleName(doc *goquery.Document, n *html.Node) string {
	if v, ok := attr(n, "aria-label"); ok && strings.TrimSpace(v) != "" {
		return browser.NormalizeSpace(v)
	}
	if ids, ok := attr(n, "aria-labelledby"); ok {
		var parts []string
		for _, id := range strings.Fields(ids) {
			if ref := doc.Find("#" + id); ref.Length() > 0 {
				parts = append(parts, nodeText(ref.Nodes[0]))
			}
		}
		if len(parts) > 0 {
			return browser.NormalizeSpace(strings.Join(parts, " "))
		}
	}
	switch n.Data {
	case "input":
		t := strings.ToLower(attrOr(n, "type", ""))
		if t == "submit" || t == "button" || t == "reset" {
			if v := attrOr(n, "value", ""); v != "" {
				return browser.NormalizeSpace(v)
			}
			if t == "submit" {
				return "Submit"
			}
		}
		if l := labelText(doc, n); l != "" {
			return l
		}
		if v := attrOr(n, "placeholder", ""); v != "" {
			return browser.NormalizeSpace(v)
		}
	case "textarea", "select":
		if l := labelText(doc, n); l != "" {
			return l
		}
		if v := attrOr(n, "placeholder", ""); v != "" {
			return browser.NormalizeSpace(v)
		}
	case "img":
		return browser.NormalizeSpace(attrOr(n, "alt", ""))
	default:
		if t := nodeText(n); t != "" {
			return t
		}
	}
	return browser.NormalizeSpace(attrOr(n, "title", ""))
}

// labelText returns the text of the <label> associated with a form control.
func labelText(doc *goquery.Document, n *html.Node) string {
	if id, ok := attr(n, "id"); ok && id != "" {
		var text string
		doc.Find("label").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if f, _ := s.Attr("for"); f == id {
				text = nodeText(s.Nodes[0])
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "label" {
			return nodeText(p)
		}
	}
	return ""
}

// labelledControl returns the form control a <label> refers to.
func labelledControl(doc *goquery.Document, label *html.Node) *html.Node {
	if f, ok := attr(label, "for"); ok && f != "" {
		if s := doc.Find("#" + f); s.Length() > 0 {
			return s.Nodes[0]
		}
		return nil
	}
	s := goquery.NewDocumentFromNode(label).Find("input, textarea, select")
	if s.Length() > 0 {
		return s.Nodes[0]
	}
	return nil
}

func fillable(n *html.Node) bool {
	switch n.Data {
	case "textarea":
		return true
	case "input":
		switch strings.ToLower(attrOr(n, "type", "")) {
		case "checkbox", "radio", "submit", "button", "reset", "image", "file", "hidden":
			return false
		}
		return true
	}
	v, ok := attr(n, "contenteditable")
	return ok && (v == "" || v == "true")
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func disabled(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && hasAttr(c, "disabled") {
			switch c.Data {
			case "button", "input", "select", "textarea", "fieldset", "option":
				return true
			}
		}
	}
	return false
}

// elements returns all element nodes under root in document order.
func elements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func contains(ancestor, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == ancestor {
			return true
		}
	}
	return false
}
