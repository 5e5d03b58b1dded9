package htmlpage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

const loginHTML = `<html><head><title>Sign in</title></head><body>
<nav><a href="/help">Help</a></nav>
<form action="/dashboard">
  <label for="email">Email address</label><input id="email" name="email" type="email">
  <label>Password <input name="password" type="password"></label>
  <input name="q" placeholder="Search products">
  <select id="lang"><option value="en">English</option><option value="fr">French</option></select>
  <button type="submit">Login</button>
  <button type="button" style="display: none">Ghost</button>
  <div hidden><button>Hidden Login</button></div>
</form>
</body></html>`

const dashboardHTML = `<html><head><title>Dashboard</title></head><body><h1>Dashboard</h1><p>Welcome back</p></body></html>`

func newTestPage(t *testing.T) *Page {
	t.Helper()
	d := New(Site{
		"https://app.test/login":     loginHTML,
		"https://app.test/dashboard": dashboardHTML,
		"https://app.test/help":      "<html><body>Help</body></html>",
	})
	ctx := context.Background()
	s, err := d.Launch(ctx, browser.LaunchOptions{Browser: browser.Chromium, Headless: true})
	if err != nil {
		t.Fatal(err)
	}
	bc, err := s.NewContext(ctx, browser.ContextOptions{ViewportWidth: 1280, ViewportHeight: 720})
	if err != nil {
		t.Fatal(err)
	}
	p, err := bc.NewPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Goto(ctx, "https://app.test/login"); err != nil {
		t.Fatal(err)
	}
	return p.(*Page)
}

func TestGoto_UnknownURL(t *testing.T) {
	p := newTestPage(t)
	err := p.Goto(context.Background(), "https://app.test/missing")
	if !errors.Is(err, browser.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if p.URL() != "https://app.test/login" {
		t.Errorf("url = %q, want unchanged", p.URL())
	}
}

func TestByRole(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	n, err := p.ByRole("button", browser.Exact("Login")).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("button Login count = %d, want 1", n)
	}
	n, _ = p.ByRole("link", browser.Fold("HELP")).Count(ctx)
	if n != 1 {
		t.Errorf("link help count = %d, want 1", n)
	}
	n, _ = p.ByRole("combobox", browser.TextMatch{}).Count(ctx)
	if n != 1 {
		t.Errorf("combobox count = %d, want 1", n)
	}
}

func TestVisibility(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	if n, _ := p.ByRole("button", browser.Exact("Ghost")).Count(ctx); n != 0 {
		t.Errorf("hidden button matched by role, count = %d", n)
	}
	ghost := p.CSS(`button[type="button"]`).First()
	if v, _ := ghost.IsVisible(ctx); v {
		t.Error("display:none button should not be visible")
	}
	hidden := p.ByText(browser.Exact("Hidden Login")).First()
	if v, _ := hidden.IsVisible(ctx); v {
		t.Error("button under [hidden] should not be visible")
	}
	if err := ghost.Click(ctx); !errors.Is(err, browser.ErrNotVisible) {
		t.Errorf("click hidden = %v, want ErrNotVisible", err)
	}
	if err := hidden.WaitVisible(ctx, 0); !errors.Is(err, browser.ErrTimeout) {
		t.Errorf("wait hidden = %v, want ErrTimeout", err)
	}
}

func TestByLabelAndPlaceholder(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	if err := p.ByLabel(browser.Exact("Email address")).First().Fill(ctx, "a@b.c"); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := p.CSS("#email").Attribute(ctx, "value"); v != "a@b.c" {
		t.Errorf("email value = %q", v)
	}
	if err := p.ByLabel(browser.Contains("password")).First().Fill(ctx, "hunter2"); err != nil {
		t.Fatal(err)
	}
	if err := p.ByPlaceholder(browser.Fold("search products")).First().Fill(ctx, "shirt"); err != nil {
		t.Fatal(err)
	}
	for _, a := range p.Actions() {
		if a.Value == "hunter2" {
			t.Error("password value recorded in cleartext")
		}
	}
}

func TestClickSubmitNavigates(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()
	if err := p.ByRole("button", browser.Exact("Login")).First().Click(ctx); err != nil {
		t.Fatal(err)
	}
	if p.URL() != "https://app.test/dashboard" {
		t.Fatalf("url = %q, want dashboard", p.URL())
	}
	title, _ := p.Title(ctx)
	if title != "Dashboard" {
		t.Errorf("title = %q", title)
	}
	body, _ := p.BodyText(ctx)
	if body != "Dashboard Welcome back" {
		t.Errorf("body = %q", body)
	}
}

func TestSelectOption(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()
	sel := p.CSS("#lang")
	if err := sel.SelectOption(ctx, "French"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := sel.CSS(`option[value="fr"]`).Attribute(ctx, "selected"); !ok {
		t.Error("french option not selected")
	}
	if err := sel.SelectOption(ctx, "German"); !errors.Is(err, browser.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestInvalidSelector(t *testing.T) {
	p := newTestPage(t)
	if _, err := p.CSS("button:has-text(").Count(context.Background()); err == nil {
		t.Error("expected invalid selector error")
	}
}

func TestFilterAndScopedQueries(t *testing.T) {
	d := New(Site{"https://shop.test/": `<html><body><ul>
		<li class="card"><h3>Red Shirt</h3><button>Buy</button></li>
		<li class="card"><h3>Blue Shirt</h3><button>Buy</button></li>
	</ul></body></html>`})
	ctx := context.Background()
	s, _ := d.Launch(ctx, browser.LaunchOptions{})
	bc, _ := s.NewContext(ctx, browser.ContextOptions{})
	pg, _ := bc.NewPage(ctx)
	if err := pg.Goto(ctx, "https://shop.test/"); err != nil {
		t.Fatal(err)
	}
	p := pg.(*Page)

	if n, _ := p.ByRole("button", browser.Exact("Buy")).Count(ctx); n != 2 {
		t.Fatalf("buy count = %d, want 2", n)
	}
	card := p.CSS("li").Filter(browser.Contains("blue shirt"))
	if n, _ := card.Count(ctx); n != 1 {
		t.Fatalf("card count = %d, want 1", n)
	}
	if err := card.ByRole("button", browser.Exact("Buy")).First().Click(ctx); err != nil {
		t.Fatal(err)
	}
	acts := p.Actions()
	if last := acts[len(acts)-1]; last.Kind != "click" {
		t.Errorf("last action = %+v", last)
	}
}

func TestScreenshotIsPNG(t *testing.T) {
	p := newTestPage(t)
	data, err := p.Screenshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("screenshot is not a PNG")
	}
}

func TestClosedPage(t *testing.T) {
	p := newTestPage(t)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Title(context.Background()); !errors.Is(err, browser.ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}
