// Package inventory takes a read-only snapshot of the visible interactive
// elements on a page. The snapshot grounds step generation and lists
// candidates when a target cannot be resolved.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

// MaxPerCategory caps each category of the inventory.
const MaxPerCategory = 50

const (
	buttonSelector = `button, [role="button"], input[type="submit"], input[type="button"], input[type="reset"]`
	linkSelector   = `a[href]`
	inputSelector  = `input:not([type="hidden"]):not([type="submit"]):not([type="button"]):not([type="reset"]), textarea, select`
)

// Element is one interactive element.
type Element struct {
	Text        string `json:"text"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
}

// Inventory groups visible interactive elements by category.
type Inventory struct {
	Buttons []Element `json:"buttons"`
	Links   []Element `json:"links"`
	Inputs  []Element `json:"inputs"`
}

// Scan reads the page and returns its inventory. Elements that cannot be
// inspected are skipped; only a failure to enumerate a whole category is
// returned as an error.
func Scan(ctx context.Context, page browser.Page) (*Inventory, error) {
	inv := &Inventory{}
	var err error
	if inv.Buttons, err = scanCategory(ctx, page, buttonSelector, inspectClickable); err != nil {
		return nil, fmt.Errorf("scan buttons: %w", err)
	}
	if inv.Links, err = scanCategory(ctx, page, linkSelector, inspectClickable); err != nil {
		return nil, fmt.Errorf("scan links: %w", err)
	}
	if inv.Inputs, err = scanCategory(ctx, page, inputSelector, inspectInput); err != nil {
		return nil, fmt.Errorf("scan inputs: %w", err)
	}
	return inv, nil
}

type inspectFunc func(ctx context.Context, page browser.Page, l browser.Locator) (Element, bool)

func scanCategory(ctx context.Context, page browser.Page, selector string, inspect inspectFunc) ([]Element, error) {
	all, err := page.CSS(selector).All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []Element{}
	for _, l := range all {
		if len(out) >= MaxPerCategory {
			break
		}
		if ctx.Err() != nil {
			return out, nil
		}
		if ok, err := l.IsVisible(ctx); err != nil || !ok {
			continue
		}
		el, ok := inspect(ctx, page, l)
		if !ok {
			continue
		}
		key := strings.ToLower(el.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, el)
	}
	return out, nil
}

func inspectClickable(ctx context.Context, _ browser.Page, l browser.Locator) (Element, bool) {
	tag, err := l.TagName(ctx)
	if err != nil {
		return Element{}, false
	}
	text, _ := l.Text(ctx)
	if text == "" {
		text = firstAttr(ctx, l, "aria-label", "title", "value")
	}
	text = browser.NormalizeSpace(text)
	if text == "" {
		return Element{}, false
	}
	el := Element{Text: text, Type: tag}
	el.ID, _, _ = l.Attribute(ctx, "id")
	return el, true
}

func inspectInput(ctx context.Context, page browser.Page, l browser.Locator) (Element, bool) {
	tag, err := l.TagName(ctx)
	if err != nil {
		return Element{}, false
	}
	typ := tag
	if tag == "input" {
		if t, ok, _ := l.Attribute(ctx, "type"); ok && t != "" {
			typ = strings.ToLower(t)
		} else {
			typ = "text"
		}
	}
	el := Element{Type: typ}
	el.Placeholder, _, _ = l.Attribute(ctx, "placeholder")
	el.Name, _, _ = l.Attribute(ctx, "name")
	el.ID, _, _ = l.Attribute(ctx, "id")
	el.Label, _, _ = l.Attribute(ctx, "aria-label")
	if el.Label == "" && el.ID != "" {
		lab := page.CSS(fmt.Sprintf(`label[for=%q]`, el.ID)).First()
		if n, err := lab.Count(ctx); err == nil && n > 0 {
			el.Label, _ = lab.Text(ctx)
		}
	}
	el.Label = browser.NormalizeSpace(el.Label)
	for _, s := range []string{el.Label, el.Placeholder, el.Name, el.ID} {
		if s != "" {
			el.Text = s
			break
		}
	}
	if el.Text == "" {
		return Element{}, false
	}
	return el, true
}

func firstAttr(ctx context.Context, l browser.Locator, names ...string) string {
	for _, n := range names {
		if v, ok, err := l.Attribute(ctx, n); err == nil && ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Len returns the total number of elements.
func (inv *Inventory) Len() int {
	if inv == nil {
		return 0
	}
	return len(inv.Buttons) + len(inv.Links) + len(inv.Inputs)
}

// Candidates returns up to limit short descriptions of the elements, buttons
// first, for diagnostics.
func (inv *Inventory) Candidates(limit int) []string {
	if inv == nil {
		return nil
	}
	var out []string
	add := func(kind string, els []Element) {
		for _, e := range els {
			if limit > 0 && len(out) >= limit {
				return
			}
			out = append(out, fmt.Sprintf("%s %q", kind, e.Text))
		}
	}
	add("button", inv.Buttons)
	add("link", inv.Links)
	add("input", inv.Inputs)
	return out
}

// Summary renders the inventory as a compact multi-line listing.
func (inv *Inventory) Summary() string {
	if inv.Len() == 0 {
		return "no visible interactive elements"
	}
	var b strings.Builder
	line := func(title string, els []Element, describe func(Element) string) {
		if len(els) == 0 {
			return
		}
		parts := make([]string, len(els))
		for i, e := range els {
			parts[i] = describe(e)
		}
		fmt.Fprintf(&b, "%s: %s\n", title, strings.Join(parts, ", "))
	}
	quoted := func(e Element) string { return fmt.Sprintf("%q", e.Text) }
	line("Buttons", inv.Buttons, quoted)
	line("Links", inv.Links, quoted)
	line("Inputs", inv.Inputs, func(e Element) string {
		s := fmt.Sprintf("%s %q", e.Type, e.Text)
		if e.Placeholder != "" && e.Placeholder != e.Text {
			s += fmt.Sprintf(" (placeholder %q)", e.Placeholder)
		}
		return s
	})
	return strings.TrimRight(b.String(), "\n")
}
