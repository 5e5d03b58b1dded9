package engine

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ormasoftchile/uirun/pkg/assertions"
	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// DefaultWait is the pause of a wait step with neither target nor value.
const DefaultWait = time.Second

// scrollStep is the distance of a directional scroll.
const scrollStep = 600

// outcome is what a successful step execution observed.
type outcome struct {
	strategy  string
	assertion *schema.AssertionResult
}

// execute performs def, which already has credentials substituted, and
// evaluates its assertion if present. The returned outcome is populated
// even when the assertion fails.
func (r *Runner) execute(ctx context.Context, page browser.Page, def schema.StepDefinition, hint resolve.Hint) (outcome, error) {
	var out outcome
	switch def.Action {
	case schema.ActionNavigate:
		dest, err := absoluteURL(page.URL(), firstNonEmpty(def.Value, def.Target))
		if err != nil {
			return out, err
		}
		if err := page.Goto(ctx, dest); err != nil {
			return out, fmt.Errorf("navigate to %s: %w", dest, err)
		}

	case schema.ActionClick, schema.ActionFill, schema.ActionSelect, schema.ActionHover:
		res, err := r.resolver.Resolve(ctx, page, def, hint)
		if err != nil {
			return out, err
		}
		out.strategy = res.Strategy
		if err := interact(ctx, res.Locator, def); err != nil {
			return out, err
		}

	case schema.ActionScroll:
		if strings.TrimSpace(def.Target) != "" {
			res, err := r.resolver.Resolve(ctx, page, def, hint)
			if err != nil {
				return out, err
			}
			out.strategy = res.Strategy
			if err := res.Locator.ScrollIntoView(ctx); err != nil {
				return out, fmt.Errorf("scroll to %q: %w", def.Target, err)
			}
			break
		}
		dy, err := scrollDistance(def.Value)
		if err != nil {
			return out, err
		}
		if err := page.Scroll(ctx, dy); err != nil {
			return out, fmt.Errorf("scroll: %w", err)
		}

	case schema.ActionWait:
		if strings.TrimSpace(def.Target) != "" {
			res, err := r.resolver.Resolve(ctx, page, def, hint)
			if err != nil {
				return out, err
			}
			out.strategy = res.Strategy
			break
		}
		d := DefaultWait
		if v := strings.TrimSpace(def.Value); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil {
				return out, &schema.ValidationError{Phase: "domain", Path: "value", Message: "wait value is not a millisecond count", Severity: "error"}
			}
			d = time.Duration(ms) * time.Millisecond
		}
		if err := page.Wait(ctx, d); err != nil {
			return out, fmt.Errorf("wait: %w", err)
		}

	case schema.ActionKeyboard:
		key := strings.TrimSpace(def.Value)
		if key == "" {
			key = strings.TrimSpace(def.Target)
		} else if strings.TrimSpace(def.Target) != "" {
			focus := def
			focus.Action = schema.ActionClick
			res, err := r.resolver.Resolve(ctx, page, focus, hint)
			if err != nil {
				return out, err
			}
			out.strategy = res.Strategy
			if err := res.Locator.Click(ctx); err != nil {
				return out, fmt.Errorf("focus %q: %w", def.Target, err)
			}
		}
		if err := page.PressKey(ctx, key); err != nil {
			return out, fmt.Errorf("press %s: %w", key, err)
		}

	case schema.ActionAssert, schema.ActionScreenshot:
		// The assertion below and the per-step capture do the work.

	default:
		return out, &schema.UnknownActionError{Action: def.Action}
	}

	if def.Assertion != nil {
		res, err := assertions.Evaluate(ctx, page, *def.Assertion, def.Target)
		out.assertion = res
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func interact(ctx context.Context, el browser.Locator, def schema.StepDefinition) error {
	var err error
	switch def.Action {
	case schema.ActionClick:
		err = el.Click(ctx)
	case schema.ActionFill:
		err = el.Fill(ctx, def.Value)
	case schema.ActionSelect:
		err = el.SelectOption(ctx, def.Value)
	case schema.ActionHover:
		err = el.Hover(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s %q: %w", def.Action, def.Target, err)
	}
	return nil
}

// scrollDistance maps a scroll value to pixels: an integer, "up", or
// "down" (the default).
func scrollDistance(v string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "down":
		return scrollStep, nil
	case "up":
		return -scrollStep, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &schema.ValidationError{Phase: "domain", Path: "value", Message: fmt.Sprintf("scroll value %q is not up, down or a pixel count", v), Severity: "error"}
	}
	return n, nil
}

// absoluteURL resolves ref against the current page URL.
func absoluteURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return "", &schema.ValidationError{Phase: "domain", Path: "target", Message: fmt.Sprintf("invalid url: %v", err), Severity: "error"}
	}
	if u.IsAbs() || base == "" {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil || (b.Scheme != "http" && b.Scheme != "https") {
		return ref, nil
	}
	return b.ResolveReference(u).String(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
