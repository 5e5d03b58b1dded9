// Package assertions implements the five page assertion kinds. Each
// evaluation is a single observation; nothing is retried.
package assertions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// AssertionFailure is returned when the observed value does not satisfy
// the assertion. Result carries the same values with Passed false.
type AssertionFailure struct {
	Type     schema.AssertionType
	Expected string
	Actual   string
	Result   *schema.AssertionResult
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %q, got %q", e.Type, e.Expected, e.Actual)
}

// Evaluate runs spec against the current page state. target supplies the
// locator for count assertions and the fallback locator for element
// assertions. On success the result has Passed true; when the observation
// does not match it returns the result together with an *AssertionFailure.
func Evaluate(ctx context.Context, page browser.Page, spec schema.AssertionSpec, target string) (*schema.AssertionResult, error) {
	var (
		res *schema.AssertionResult
		err error
	)
	switch spec.Type {
	case schema.AssertText:
		res, err = EvalText(ctx, page, spec.Expected)
	case schema.AssertURL:
		res = EvalURL(page.URL(), spec.Expected)
	case schema.AssertTitle:
		res, err = EvalTitle(ctx, page, spec.Expected)
	case schema.AssertElement:
		locator := spec.Expected
		if strings.TrimSpace(locator) == "" {
			locator = target
		}
		res, err = EvalElement(ctx, page, locator)
	case schema.AssertCount:
		res, err = EvalCount(ctx, page, target, spec.Expected)
	default:
		return nil, &schema.ValidationError{
			Phase:    "domain",
			Path:     "assertion.type",
			Message:  fmt.Sprintf("unknown assertion type %q", spec.Type),
			Severity: "error",
		}
	}
	if err != nil {
		return nil, err
	}
	if !res.Passed {
		return res, &AssertionFailure{Type: res.Type, Expected: res.Expected, Actual: res.Actual, Result: res}
	}
	return res, nil
}

// EvalText checks that the page body text contains expected.
func EvalText(ctx context.Context, page browser.Page, expected string) (*schema.AssertionResult, error) {
	body, err := page.BodyText(ctx)
	if err != nil {
		return nil, fmt.Errorf("read body text: %w", err)
	}
	passed := strings.Contains(body, expected)
	msg := fmt.Sprintf("page contains %q", expected)
	if !passed {
		msg = fmt.Sprintf("page does not contain %q", expected)
	}
	return &schema.AssertionResult{
		Type:     schema.AssertText,
		Expected: expected,
		Actual:   truncate(body, 200),
		Passed:   passed,
		Message:  msg,
	}, nil
}

// EvalURL checks that the current URL contains expected.
func EvalURL(current, expected string) *schema.AssertionResult {
	passed := strings.Contains(current, expected)
	msg := fmt.Sprintf("url contains %q", expected)
	if !passed {
		msg = fmt.Sprintf("url %q does not contain %q", current, expected)
	}
	return &schema.AssertionResult{
		Type:     schema.AssertURL,
		Expected: expected,
		Actual:   current,
		Passed:   passed,
		Message:  msg,
	}
}

// EvalTitle checks that the page title contains expected.
func EvalTitle(ctx context.Context, page browser.Page, expected string) (*schema.AssertionResult, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	passed := strings.Contains(title, expected)
	msg := fmt.Sprintf("title contains %q", expected)
	if !passed {
		msg = fmt.Sprintf("title %q does not contain %q", title, expected)
	}
	return &schema.AssertionResult{
		Type:     schema.AssertTitle,
		Expected: expected,
		Actual:   title,
		Passed:   passed,
		Message:  msg,
	}, nil
}

// EvalElement checks that the first element matching locator is visible.
func EvalElement(ctx context.Context, page browser.Page, locator string) (*schema.AssertionResult, error) {
	visible, err := resolve.Locate(page, locator).First().IsVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("check %q: %w", locator, err)
	}
	actual := "hidden or absent"
	msg := fmt.Sprintf("element %q is not visible", locator)
	if visible {
		actual = "visible"
		msg = fmt.Sprintf("element %q is visible", locator)
	}
	return &schema.AssertionResult{
		Type:     schema.AssertElement,
		Expected: locator,
		Actual:   actual,
		Passed:   visible,
		Message:  msg,
	}, nil
}

// EvalCount checks that exactly expected elements match locator.
func EvalCount(ctx context.Context, page browser.Page, locator, expected string) (*schema.AssertionResult, error) {
	want, err := strconv.Atoi(strings.TrimSpace(expected))
	if err != nil {
		return nil, &schema.ValidationError{
			Phase:    "domain",
			Path:     "assertion.expected",
			Message:  fmt.Sprintf("count expects an integer, got %q", expected),
			Severity: "error",
		}
	}
	got, err := resolve.Locate(page, locator).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %q: %w", locator, err)
	}
	passed := got == want
	msg := fmt.Sprintf("%d elements match %q", got, locator)
	if !passed {
		msg = fmt.Sprintf("%d elements match %q, want %d", got, locator, want)
	}
	return &schema.AssertionResult{
		Type:     schema.AssertCount,
		Expected: strconv.Itoa(want),
		Actual:   strconv.Itoa(got),
		Passed:   passed,
		Message:  msg,
	}, nil
}

// truncate keeps the first max runes of s.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
