package assertions

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/browser/htmlpage"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

const listHTML = `<html><head><title>Orders - Shop</title></head><body>
<h1>Dashboard</h1>
<ul><li class="item">A</li><li class="item">B</li></ul>
<div id="banner" style="display:none">Saved</div>
<p>Welcome back</p>
</body></html>`

func openPage(t *testing.T) browser.Page {
	t.Helper()
	const u = "https://shop.test/orders?page=1"
	d := htmlpage.New(htmlpage.Site{u: listHTML})
	ctx := context.Background()
	s, _ := d.Launch(ctx, browser.LaunchOptions{})
	bc, _ := s.NewContext(ctx, browser.ContextOptions{})
	p, _ := bc.NewPage(ctx)
	if err := p.Goto(ctx, u); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		spec   schema.AssertionSpec
		target string
		passed bool
		actual string
	}{
		{"text pass", schema.AssertionSpec{Type: schema.AssertText, Expected: "Dashboard"}, "", true, ""},
		{"text case-sensitive", schema.AssertionSpec{Type: schema.AssertText, Expected: "dashboard"}, "", false, ""},
		{"url pass", schema.AssertionSpec{Type: schema.AssertURL, Expected: "/orders"}, "", true, "https://shop.test/orders?page=1"},
		{"url fail", schema.AssertionSpec{Type: schema.AssertURL, Expected: "/cart"}, "", false, "https://shop.test/orders?page=1"},
		{"title pass", schema.AssertionSpec{Type: schema.AssertTitle, Expected: "Orders"}, "", true, "Orders - Shop"},
		{"element visible", schema.AssertionSpec{Type: schema.AssertElement, Expected: "Welcome"}, "", true, "visible"},
		{"element hidden", schema.AssertionSpec{Type: schema.AssertElement, Expected: "#banner"}, "", false, "hidden or absent"},
		{"element from target", schema.AssertionSpec{Type: schema.AssertElement}, "h1", true, "visible"},
		{"count exact", schema.AssertionSpec{Type: schema.AssertCount, Expected: "2"}, ".item", true, "2"},
		{"count over", schema.AssertionSpec{Type: schema.AssertCount, Expected: "3"}, ".item", false, "2"},
		{"count under", schema.AssertionSpec{Type: schema.AssertCount, Expected: "1"}, ".item", false, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(context.Background(), openPage(t), tt.spec, tt.target)
			if res == nil {
				t.Fatalf("no result, err = %v", err)
			}
			if res.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", res.Passed, tt.passed, res.Message)
			}
			if tt.actual != "" && res.Actual != tt.actual {
				t.Errorf("actual = %q, want %q", res.Actual, tt.actual)
			}
			var af *AssertionFailure
			if tt.passed && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.passed && !errors.As(err, &af) {
				t.Errorf("error = %v, want *AssertionFailure", err)
			}
		})
	}
}

func TestEvaluate_CountOffByOne(t *testing.T) {
	_, err := Evaluate(context.Background(), openPage(t), schema.AssertionSpec{Type: schema.AssertCount, Expected: "3"}, ".item")
	var af *AssertionFailure
	if !errors.As(err, &af) {
		t.Fatalf("error = %v, want *AssertionFailure", err)
	}
	if af.Expected != "3" || af.Actual != "2" {
		t.Errorf("expected/actual = %q/%q, want 3/2", af.Expected, af.Actual)
	}
	if af.Result == nil || af.Result.Passed {
		t.Error("failure should carry a non-passing result")
	}
}

func TestEvaluate_CountNonInteger(t *testing.T) {
	_, err := Evaluate(context.Background(), openPage(t), schema.AssertionSpec{Type: schema.AssertCount, Expected: "two"}, ".item")
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *schema.ValidationError", err)
	}
}

func TestEvaluate_UnknownType(t *testing.T) {
	_, err := Evaluate(context.Background(), openPage(t), schema.AssertionSpec{Type: "color"}, "")
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *schema.ValidationError", err)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 150)
	got := truncate(s, 101)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 101) + "..."; got != want {
		t.Errorf("truncate = %q, want %q", got, want)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
}
