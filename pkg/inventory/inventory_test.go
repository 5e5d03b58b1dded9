package inventory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/browser/htmlpage"
)

func openPage(t *testing.T, body string) *htmlpage.Page {
	t.Helper()
	const u = "https://app.test/"
	d := htmlpage.New(htmlpage.Site{u: "<html><body>" + body + "</body></html>"})
	ctx := context.Background()
	s, err := d.Launch(ctx, browser.LaunchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	bc, _ := s.NewContext(ctx, browser.ContextOptions{})
	p, _ := bc.NewPage(ctx)
	if err := p.Goto(ctx, u); err != nil {
		t.Fatal(err)
	}
	return p.(*htmlpage.Page)
}

func TestScan(t *testing.T) {
	p := openPage(t, `
		<button>Login</button>
		<button>Login</button>
		<button aria-label="Close dialog"></button>
		<button style="display:none">Secret</button>
		<input type="submit" value="Send">
		<a href="/help">Help</a>
		<a>No href</a>
		<label for="email">Email</label><input id="email" type="email">
		<input name="q" placeholder="Search">
		<input type="hidden" name="csrf" value="x">
		<textarea aria-label="Comment"></textarea>
	`)
	inv, err := Scan(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	var buttons []string
	for _, b := range inv.Buttons {
		buttons = append(buttons, b.Text)
	}
	if got := strings.Join(buttons, "|"); got != "Login|Close dialog|Send" {
		t.Errorf("buttons = %q, want Login|Close dialog|Send", got)
	}
	if len(inv.Links) != 1 || inv.Links[0].Text != "Help" {
		t.Errorf("links = %+v", inv.Links)
	}
	if len(inv.Inputs) != 3 {
		t.Fatalf("inputs = %+v, want 3", inv.Inputs)
	}
	if in := inv.Inputs[0]; in.Type != "email" || in.Label != "Email" || in.Text != "Email" {
		t.Errorf("email input = %+v", in)
	}
	if in := inv.Inputs[1]; in.Text != "Search" || in.Name != "q" || in.Type != "text" {
		t.Errorf("search input = %+v", in)
	}
	if in := inv.Inputs[2]; in.Type != "textarea" || in.Text != "Comment" {
		t.Errorf("textarea = %+v", in)
	}
}

func TestScan_Cap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxPerCategory+10; i++ {
		fmt.Fprintf(&b, "<button>Item %d</button>", i)
	}
	p := openPage(t, b.String())
	inv, err := Scan(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Buttons) != MaxPerCategory {
		t.Errorf("buttons = %d, want %d", len(inv.Buttons), MaxPerCategory)
	}
}

func TestScan_ReadOnly(t *testing.T) {
	p := openPage(t, `<a href="/next">Next</a><input name="q">`)
	if _, err := Scan(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	for _, a := range p.Actions() {
		if a.Kind != "goto" {
			t.Errorf("scan performed action %+v", a)
		}
	}
}

func TestSummaryAndCandidates(t *testing.T) {
	inv := &Inventory{
		Buttons: []Element{{Text: "Login", Type: "button"}},
		Links:   []Element{{Text: "Help", Type: "a"}},
		Inputs:  []Element{{Text: "Email", Type: "email", Placeholder: "you@example.com"}},
	}
	s := inv.Summary()
	for _, want := range []string{`Buttons: "Login"`, `Links: "Help"`, `email "Email" (placeholder "you@example.com")`} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %s:\n%s", want, s)
		}
	}
	c := inv.Candidates(2)
	if len(c) != 2 || c[0] != `button "Login"` || c[1] != `link "Help"` {
		t.Errorf("candidates = %v", c)
	}
	if (&Inventory{}).Summary() != "no visible interactive elements" {
		t.Error("empty summary")
	}
}
