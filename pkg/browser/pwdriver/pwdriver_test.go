package pwdriver

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

func TestTextArg(t *testing.T) {
	if got := textArg(browser.Exact("  Log   in ")); got != "Log in" {
		t.Errorf("textArg(exact) = %v", got)
	}
	re, ok := textArg(browser.Fold("Log in")).(*regexp.Regexp)
	if !ok || !re.MatchString("LOG IN") {
		t.Errorf("textArg(fold) = %v", re)
	}
}

func TestExactFlag(t *testing.T) {
	if f := exactFlag(browser.Exact("x")); f == nil || !*f {
		t.Error("exact match should set Exact")
	}
	if f := exactFlag(browser.Contains("x")); f != nil {
		t.Error("contains match should leave Exact unset")
	}
}

func TestRoleOptions_ZeroName(t *testing.T) {
	o := roleOptions(browser.TextMatch{})
	if o.Name != nil || o.Exact != nil {
		t.Errorf("options = %+v", o)
	}
}

func TestTranslate(t *testing.T) {
	if translate("click", nil) != nil {
		t.Error("translate(nil) != nil")
	}
	err := translate("click", fmt.Errorf("locator: %w", playwright.ErrTimeout))
	if !browser.IsTimeout(err) {
		t.Errorf("timeout not mapped: %v", err)
	}
	err = translate("fill", playwright.ErrTargetClosed)
	if !errors.Is(err, browser.ErrClosed) {
		t.Errorf("closed not mapped: %v", err)
	}
	other := errors.New("boom")
	if err := translate("hover", other); !errors.Is(err, other) || browser.IsTimeout(err) {
		t.Errorf("translate(other) = %v", err)
	}
}
