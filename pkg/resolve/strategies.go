package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Kind tags a strategy with the family of heuristic it applies.
type Kind string

const (
	KindRoleMatch       Kind = "role-match"
	KindExactText       Kind = "exact-text"
	KindPartialText     Kind = "partial-text"
	KindScopedContainer Kind = "scoped-container"
	KindCSSFallback     Kind = "css-fallback"
	KindAttributeMatch  Kind = "attribute-match"
)

// Strategy is one named resolution heuristic.
type Strategy struct {
	Name string
	Kind Kind
	// Applies reports whether the strategy can be attempted for target.
	// A nil Applies always applies.
	Applies func(target string, hint Hint) bool
	// Locate returns the candidate elements for target. The resolver picks
	// the first visible, acceptable candidate.
	Locate func(ctx context.Context, page browser.Page, target string, hint Hint) (browser.Locator, error)
	// Accept filters candidates, for example to editable elements. Nil accepts all.
	Accept func(ctx context.Context, el browser.Locator) bool
}

// Hint carries execution context used by scoped resolution.
type Hint struct {
	// Context names a previously referenced entity, such as a card title.
	Context string
}

var (
	clickRoles = []string{"button", "link", "menuitem", "tab", "checkbox"}
	fieldRoles = []string{"textbox", "searchbox", "combobox", "spinbutton"}
	anyRoles   = []string{"button", "link", "menuitem", "tab", "heading", "img", "listitem"}

	clickableTags = `button, a, [role="button"], [role="link"], input[type="submit"], input[type="button"], label, summary`
	fieldTags     = `input, textarea, select, [contenteditable]`
	containerTags = `article, li, section, tr, [role="listitem"], [role="article"], [role="row"], div`
)

func textual(target string, _ Hint) bool { return !explicitSelector(target) }

func hasHint(_ string, hint Hint) bool { return strings.TrimSpace(hint.Context) != "" }

// firstNonEmpty returns the first locator with at least one match.
func firstNonEmpty(ctx context.Context, locs ...browser.Locator) (browser.Locator, error) {
	var last browser.Locator
	for _, l := range locs {
		n, err := l.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return l, nil
		}
		last = l
	}
	return last, nil
}

func roleMatch(name string, roles []string) Strategy {
	return Strategy{
		Name:    name,
		Kind:    KindRoleMatch,
		Applies: textual,
		Locate: func(ctx context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			t := unquote(target)
			locs := make([]browser.Locator, len(roles))
			for i, r := range roles {
				locs[i] = page.ByRole(r, browser.Exact(t))
			}
			return firstNonEmpty(ctx, locs...)
		},
	}
}

func textMatch(name string, kind Kind, mode browser.MatchMode) Strategy {
	return Strategy{
		Name:    name,
		Kind:    kind,
		Applies: textual,
		Locate: func(_ context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			return page.ByText(browser.TextMatch{Value: unquote(target), Mode: mode}), nil
		},
	}
}

func tagScan() Strategy {
	return Strategy{
		Name:    "clickable-tag-scan",
		Kind:    KindPartialText,
		Applies: textual,
		Locate: func(_ context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			return page.CSS(clickableTags).Filter(browser.Contains(unquote(target))), nil
		},
	}
}

// scopedContainer narrows the search to the smallest container whose text
// contains the hint, then looks for target inside it with inner.
func scopedContainer(inner func(ctx context.Context, scope browser.Locator, target string) (browser.Locator, error)) Strategy {
	return Strategy{
		Name:    "scoped-container",
		Kind:    KindScopedContainer,
		Applies: hasHint,
		Locate: func(ctx context.Context, page browser.Page, target string, hint Hint) (browser.Locator, error) {
			containers, err := page.CSS(containerTags).Filter(browser.Contains(hint.Context)).All(ctx)
			if err != nil {
				return nil, err
			}
			type scored struct {
				loc  browser.Locator
				size int
			}
			var cands []scored
			for i, c := range containers {
				if i >= 200 {
					break
				}
				text, err := c.Text(ctx)
				if err != nil {
					continue
				}
				cands = append(cands, scored{loc: c, size: len(text)})
			}
			sort.SliceStable(cands, func(i, j int) bool { return cands[i].size < cands[j].size })
			for _, c := range cands {
				l, err := inner(ctx, c.loc, target)
				if err != nil {
					continue
				}
				if n, err := l.Count(ctx); err == nil && n > 0 {
					return l, nil
				}
			}
			return nil, fmt.Errorf("no container matching %q holds %q", hint.Context, target)
		},
	}
}

func clickInScope(ctx context.Context, scope browser.Locator, target string) (browser.Locator, error) {
	t := unquote(target)
	return firstNonEmpty(ctx,
		scope.ByRole("button", browser.Fold(t)),
		scope.ByRole("link", browser.Fold(t)),
		scope.ByText(browser.Fold(t)),
		scope.ByText(browser.Contains(t)),
	)
}

func fieldInScope(ctx context.Context, scope browser.Locator, target string) (browser.Locator, error) {
	t := unquote(target)
	locs := []browser.Locator{scope.ByRole("textbox", browser.Fold(t)), scope.ByRole("combobox", browser.Fold(t))}
	for _, tok := range append([]string{t}, attributeTokens(t)...) {
		if sel := containsSelector([]string{"placeholder", "aria-label", "name", "id"}, tok, "input", "textarea", "select"); sel != "" {
			locs = append(locs, scope.CSS(sel))
		}
	}
	return firstNonEmpty(ctx, locs...)
}

func cssFallback() Strategy {
	return Strategy{
		Name:    "css-fallback",
		Kind:    KindCSSFallback,
		Applies: func(target string, _ Hint) bool { return LooksLikeSelector(target) },
		Locate: func(_ context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			return selectorLocator(page, strings.TrimSpace(target)), nil
		},
	}
}

// attributeMatch looks for identifier-style spellings of target in common
// attributes. tags restricts the element types searched; empty means any.
func attributeMatch(tags ...string) Strategy {
	return Strategy{
		Name: "attribute-match",
		Kind: KindAttributeMatch,
		Applies: func(target string, _ Hint) bool {
			return len(attributeTokens(unquote(target))) > 0
		},
		Locate: func(ctx context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			attrs := []string{"id", "name", "class", "data-testid", "data-test", "aria-label"}
			var locs []browser.Locator
			for _, tok := range attributeTokens(unquote(target)) {
				if sel := containsSelector(attrs, tok, tags...); sel != "" {
					locs = append(locs, page.CSS(sel))
				}
			}
			if len(locs) == 0 {
				return nil, fmt.Errorf("no attribute tokens for %q", target)
			}
			return firstNonEmpty(ctx, locs...)
		},
	}
}

// containsSelector builds tag[attr*="value"] alternatives. Values with
// characters that would need escaping are skipped.
func containsSelector(attrs []string, value string, tags ...string) string {
	if value == "" || strings.ContainsAny(value, `"\`) {
		return ""
	}
	if len(tags) == 0 {
		tags = []string{""}
	}
	var parts []string
	for _, tag := range tags {
		for _, a := range attrs {
			parts = append(parts, fmt.Sprintf(`%s[%s*="%s"]`, tag, a, value))
		}
	}
	return strings.Join(parts, ", ")
}

func labelMatch() Strategy {
	return Strategy{
		Name:    "label",
		Kind:    KindExactText,
		Applies: textual,
		Locate: func(ctx context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			t := unquote(target)
			return firstNonEmpty(ctx, page.ByLabel(browser.Fold(t)), page.ByLabel(browser.Contains(t)))
		},
	}
}

func placeholderMatch() Strategy {
	return Strategy{
		Name:    "placeholder",
		Kind:    KindPartialText,
		Applies: textual,
		Locate: func(ctx context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			t := unquote(target)
			return firstNonEmpty(ctx, page.ByPlaceholder(browser.Fold(t)), page.ByPlaceholder(browser.Contains(t)))
		},
	}
}

func nameAttribute() Strategy {
	return Strategy{
		Name: "name-attribute",
		Kind: KindAttributeMatch,
		Applies: func(target string, _ Hint) bool {
			t := unquote(target)
			return t != "" && !strings.ContainsAny(t, `"\ `)
		},
		Locate: func(_ context.Context, page browser.Page, target string, _ Hint) (browser.Locator, error) {
			t := unquote(target)
			return page.CSS(fmt.Sprintf(`[name="%s"], [id="%s"]`, t, t)), nil
		},
	}
}

// editable accepts elements that fill can type into.
func editable(ctx context.Context, el browser.Locator) bool {
	tag, err := el.TagName(ctx)
	if err != nil {
		return false
	}
	switch tag {
	case "input":
		t, _, _ := el.Attribute(ctx, "type")
		switch strings.ToLower(t) {
		case "checkbox", "radio", "submit", "button", "reset", "image", "file", "hidden":
			return false
		}
		return true
	case "textarea":
		return true
	}
	v, ok, _ := el.Attribute(ctx, "contenteditable")
	return ok && (v == "" || v == "true")
}

func selectable(ctx context.Context, el browser.Locator) bool {
	tag, err := el.TagName(ctx)
	return err == nil && tag == "select"
}

func withAccept(s Strategy, accept func(context.Context, browser.Locator) bool) Strategy {
	s.Accept = accept
	return s
}

func fieldChain(accept func(context.Context, browser.Locator) bool) []Strategy {
	chain := []Strategy{
		scopedContainer(fieldInScope),
		labelMatch(),
		placeholderMatch(),
		roleMatch("role-match", fieldRoles),
		nameAttribute(),
		cssFallback(),
		attributeMatch("input", "textarea", "select"),
	}
	for i := range chain {
		chain[i] = withAccept(chain[i], accept)
	}
	return chain
}

// DefaultChains returns the declared strategy order for each action that
// resolves a target. With a context hint, scoped-container runs first so
// repeated targets resolve inside the referenced entity.
func DefaultChains() map[schema.Action][]Strategy {
	click := []Strategy{
		scopedContainer(clickInScope),
		roleMatch("role-match", clickRoles),
		textMatch("exact-text", KindExactText, browser.MatchExact),
		textMatch("case-insensitive-text", KindExactText, browser.MatchFold),
		textMatch("partial-text", KindPartialText, browser.MatchContains),
		tagScan(),
		cssFallback(),
		attributeMatch(),
	}
	generic := []Strategy{
		scopedContainer(clickInScope),
		roleMatch("role-match", anyRoles),
		textMatch("exact-text", KindExactText, browser.MatchExact),
		textMatch("partial-text", KindPartialText, browser.MatchContains),
		cssFallback(),
		attributeMatch(),
	}
	return map[schema.Action][]Strategy{
		schema.ActionClick:  click,
		schema.ActionFill:   fieldChain(editable),
		schema.ActionSelect: fieldChain(selectable),
		schema.ActionHover:  generic,
		schema.ActionScroll: generic,
		schema.ActionWait:   generic,
	}
}
