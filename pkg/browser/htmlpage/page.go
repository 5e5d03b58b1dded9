package htmlpage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

// Action records one interaction performed on a page.
type Action struct {
	Kind   string // goto, click, fill, hover, select, press, scroll, wait, screenshot
	Target string // tag#id or URL
	Value  string
}

// Page is a static document loaded from the site map.
type Page struct {
	site Site
	opts browser.ContextOptions

	mu      sync.Mutex
	url     string
	doc     *goquery.Document
	actions []Action
	scrollY int
	timeout time.Duration
	closed  bool
}

func newPage(site Site, opts browser.ContextOptions) *Page {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	return &Page{site: site, opts: opts, url: "about:blank", doc: doc, timeout: 30 * time.Second}
}

// Actions returns the interactions recorded so far.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Document exposes the live document for inspection in tests.
func (p *Page) Document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *Page) record(kind, target, value string) {
	p.actions = append(p.actions, Action{Kind: kind, Target: target, Value: value})
}

func (p *Page) check(op string) error {
	if p.closed {
		return browser.Wrap(op, browser.ErrClosed)
	}
	return nil
}

func (p *Page) Goto(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("goto"); err != nil {
		return err
	}
	return p.load(rawURL)
}

// load replaces the document with the site entry for rawURL, resolved
// against the current URL. Caller holds p.mu.
func (p *Page) load(rawURL string) error {
	target := rawURL
	if base, err := url.Parse(p.url); err == nil && p.url != "about:blank" {
		if ref, err := url.Parse(rawURL); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}
	src, ok := p.site[target]
	if !ok {
		if u, err := url.Parse(target); err == nil && u.Fragment != "" {
			u.Fragment = ""
			src, ok = p.site[u.String()]
		}
	}
	if !ok {
		return browser.Wrap("goto", fmt.Errorf("%w: no document for %s", browser.ErrNotFound, target))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return browser.Wrap("goto", err)
	}
	p.url = target
	p.doc = doc
	p.scrollY = 0
	p.record("goto", target, "")
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("title"); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("body text"); err != nil {
		return "", err
	}
	body := p.doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}
	return nodeText(body.Nodes[0]), nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("screenshot"); err != nil {
		return nil, err
	}
	p.record("screenshot", p.url, "")
	return placeholderPNG(p.opts.ViewportWidth, p.opts.ViewportHeight, p.url)
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("press"); err != nil {
		return err
	}
	p.record("press", "", key)
	return nil
}

func (p *Page) Scroll(ctx context.Context, dy int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("scroll"); err != nil {
		return err
	}
	p.scrollY += dy
	if p.scrollY < 0 {
		p.scrollY = 0
	}
	p.record("scroll", "", fmt.Sprint(dy))
	return nil
}

// ScrollY returns the accumulated vertical scroll offset.
func (p *Page) ScrollY() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY
}

// Wait records the wait and returns immediately unless ctx is already done.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("wait"); err != nil {
		return err
	}
	p.record("wait", "", d.String())
	return nil
}

func (p *Page) SetDefaultTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.Wrap("close page", browser.ErrClosed)
	}
	p.closed = true
	return nil
}

func (p *Page) root() []*html.Node {
	return p.doc.Nodes
}

func (p *Page) ByRole(r string, name browser.TextMatch) browser.Locator {
	return &locator{p: p, query: func() ([]*html.Node, error) {
		return byRole(p.doc, p.root(), r, name), nil
	}}
}

func (p *Page) ByText(text browser.TextMatch) browser.Locator {
	return &locator{p: p, query: func() ([]*html.Node, error) {
		return byText(p.root(), text), nil
	}}
}

func (p *Page) ByLabel(text browser.TextMatch) browser.Locator {
	return &locator{p: p, query: func() ([]*html.Node, error) {
		return byLabel(p.doc, text), nil
	}}
}

func (p *Page) ByPlaceholder(text browser.TextMatch) browser.Locator {
	return &locator{p: p, query: func() ([]*html.Node, error) {
		return byPlaceholder(p.root(), text), nil
	}}
}

func (p *Page) CSS(selector string) browser.Locator {
	return &locator{p: p, query: func() ([]*html.Node, error) {
		return byCSS(p.root(), selector)
	}}
}

var _ browser.Page = (*Page)(nil)
