package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// unsupportedPseudo lists selector syntax that plain CSS engines reject.
var unsupportedPseudo = []string{":contains(", ":has-text(", ":text(", ":visible"}

// checkTarget rejects targets that can never match.
func checkTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return &schema.ValidationError{Phase: "domain", Path: "target", Message: "target is empty", Severity: "error"}
	}
	lower := strings.ToLower(target)
	for _, p := range unsupportedPseudo {
		if strings.Contains(lower, p) {
			return &schema.ValidationError{
				Phase:    "domain",
				Path:     "target",
				Message:  fmt.Sprintf("unsupported pseudo-selector %q in target %q; use plain text or standard CSS", strings.TrimSuffix(p, "("), target),
				Severity: "error",
			}
		}
	}
	return nil
}

var semanticPrefixes = []string{"text=", "role=", "label=", "aria-label=", "placeholder=", "css="}

func semanticPrefix(t string) (prefix, value string, ok bool) {
	for _, p := range semanticPrefixes {
		if strings.HasPrefix(t, p) {
			return strings.TrimSuffix(p, "="), strings.TrimSpace(t[len(p):]), true
		}
	}
	return "", "", false
}

var (
	qualifiedTag = regexp.MustCompile(`^[a-zA-Z][\w-]*[#.\[][^\s]+$`)
	plainTags    = map[string]bool{
		"a": true, "button": true, "input": true, "select": true, "textarea": true,
		"form": true, "table": true, "tr": true, "li": true, "ul": true, "h1": true,
		"h2": true, "h3": true, "nav": true, "img": true, "label": true, "main": true,
	}
)

// explicitSelector reports whether t is unambiguously a selector rather
// than visible text.
func explicitSelector(t string) bool {
	if _, _, ok := semanticPrefix(t); ok {
		return true
	}
	if strings.HasPrefix(t, "#") || strings.HasPrefix(t, ".") || strings.HasPrefix(t, "[") {
		return len(t) > 1
	}
	return strings.Contains(t, " > ") || qualifiedTag.MatchString(t)
}

// LooksLikeSelector reports whether t may be a selector. Bare tag names
// count, so "button" can still be tried as CSS after text matching fails.
func LooksLikeSelector(t string) bool {
	t = strings.TrimSpace(t)
	return explicitSelector(t) || plainTags[strings.ToLower(t)]
}

// selectorLocator maps a selector-like target onto a locator. Semantic
// prefixes select the matching locator factory; anything else is CSS.
func selectorLocator(page browser.Page, t string) browser.Locator {
	if prefix, v, ok := semanticPrefix(t); ok {
		switch prefix {
		case "text":
			return page.ByText(browser.Fold(unquote(v)))
		case "role":
			role, name := v, ""
			if i := strings.Index(v, "["); i > 0 && strings.HasSuffix(v, "]") {
				role = v[:i]
				name = strings.TrimPrefix(v[i+1:len(v)-1], "name=")
			}
			return page.ByRole(role, browser.Fold(unquote(name)))
		case "label", "aria-label":
			return page.ByLabel(browser.Fold(unquote(v)))
		case "placeholder":
			return page.ByPlaceholder(browser.Fold(unquote(v)))
		case "css":
			return page.CSS(v)
		}
	}
	return page.CSS(t)
}

// unquote strips one pair of matching surrounding quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	s = strings.TrimPrefix(s, "“")
	return strings.TrimSuffix(s, "”")
}

var quotedRe = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)

// ExtractHint returns the last quoted entity in text that is not the target
// itself, for example "Blue Shirt" in `Click "Buy" on the "Blue Shirt" card`.
func ExtractHint(text, target string) string {
	target = unquote(target)
	var hint string
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		q := m[1]
		if q == "" {
			q = m[2]
		}
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, target) {
			continue
		}
		hint = q
	}
	return hint
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// attributeTokens derives identifier-style spellings of a target, such as
// add-to-cart, add_to_cart and addtocart for "Add to cart".
func attributeTokens(t string) []string {
	base := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(t), " "), " ")
	if base == "" {
		return nil
	}
	words := strings.Fields(base)
	seen := map[string]bool{}
	var out []string
	for _, tok := range []string{
		strings.Join(words, "-"),
		strings.Join(words, "_"),
		strings.Join(words, ""),
	} {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// Locate returns a locator for a free-form expression used by assertions:
// selector-like expressions are queried as selectors, anything else matches
// elements whose text contains it.
func Locate(page browser.Page, expr string) browser.Locator {
	expr = strings.TrimSpace(expr)
	if explicitSelector(expr) || plainTags[strings.ToLower(expr)] {
		return selectorLocator(page, expr)
	}
	return page.ByText(browser.Contains(unquote(expr)))
}
