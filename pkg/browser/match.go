package browser

import (
	"regexp"
	"strings"
)

// MatchMode controls how a TextMatch compares text.
type MatchMode string

const (
	// MatchExact compares whitespace-normalized text exactly.
	MatchExact MatchMode = "exact"
	// MatchFold compares whitespace-normalized text case-insensitively.
	MatchFold MatchMode = "fold"
	// MatchContains matches a case-insensitive substring.
	MatchContains MatchMode = "contains"
)

// TextMatch describes a text predicate used by locators.
type TextMatch struct {
	Value string
	Mode  MatchMode
}

// Exact returns an exact TextMatch.
func Exact(v string) TextMatch { return TextMatch{Value: v, Mode: MatchExact} }

// Fold returns a case-insensitive exact TextMatch.
func Fold(v string) TextMatch { return TextMatch{Value: v, Mode: MatchFold} }

// Contains returns a case-insensitive substring TextMatch.
func Contains(v string) TextMatch { return TextMatch{Value: v, Mode: MatchContains} }

// IsZero reports whether the match has no value and so matches anything.
func (m TextMatch) IsZero() bool { return m.Value == "" }

// Matches reports whether s satisfies the match.
func (m TextMatch) Matches(s string) bool {
	if m.IsZero() {
		return true
	}
	got := NormalizeSpace(s)
	want := NormalizeSpace(m.Value)
	switch m.Mode {
	case MatchFold:
		return strings.EqualFold(got, want)
	case MatchContains:
		return strings.Contains(strings.ToLower(got), strings.ToLower(want))
	default:
		return got == want
	}
}

// Regexp returns an equivalent anchored or unanchored regular expression,
// for drivers that accept patterns.
func (m TextMatch) Regexp() *regexp.Regexp {
	q := regexp.QuoteMeta(NormalizeSpace(m.Value))
	switch m.Mode {
	case MatchFold:
		return regexp.MustCompile(`(?i)^\s*` + q + `\s*$`)
	case MatchContains:
		return regexp.MustCompile(`(?i)` + q)
	default:
		return regexp.MustCompile(`^\s*` + q + `\s*$`)
	}
}

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeSpace collapses runs of whitespace and trims the ends.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
