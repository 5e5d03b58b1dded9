// Package pwdriver implements the browser port on top of playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

// Driver launches real browsers through a shared playwright instance.
// The playwright server is started lazily on first Launch.
type Driver struct {
	// InstallBrowsers downloads missing browser binaries on start.
	InstallBrowsers bool

	mu sync.Mutex
	pw *playwright.Playwright
}

// New creates a Driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}
	if d.InstallBrowsers {
		if err := playwright.Install(); err != nil {
			return nil, fmt.Errorf("%w: install: %v", browser.ErrUnavailable, err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", browser.ErrUnavailable, err)
	}
	d.pw = pw
	return pw, nil
}

// Launch starts a browser of the requested kind.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.start()
	if err != nil {
		return nil, browser.Wrap("launch", err)
	}
	var bt playwright.BrowserType
	switch opts.Browser {
	case browser.Firefox:
		bt = pw.Firefox
	case browser.WebKit:
		bt = pw.WebKit
	case browser.Chromium, "":
		bt = pw.Chromium
	default:
		return nil, browser.Wrap("launch", fmt.Errorf("unsupported browser %q", opts.Browser))
	}
	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, browser.Wrap("launch", err)
	}
	return &session{b: b}, nil
}

// Stop shuts down the playwright server.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

type session struct {
	b playwright.Browser
}

func (s *session) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		o.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	bc, err := s.b.NewContext(o)
	if err != nil {
		return nil, browser.Wrap("new context", err)
	}
	return &bctx{c: bc}, nil
}

func (s *session) Close() error {
	return browser.Wrap("close session", s.b.Close())
}

type bctx struct {
	c playwright.BrowserContext
}

func (c *bctx) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.c.NewPage()
	if err != nil {
		return nil, browser.Wrap("new page", err)
	}
	return &page{p: p, timeout: 30 * time.Second}, nil
}

func (c *bctx) Close() error {
	return browser.Wrap("close context", c.c.Close())
}

type page struct {
	p       playwright.Page
	timeout time.Duration
}

func (p *page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return translate("goto", err)
}

func (p *page) URL() string { return p.p.URL() }

func (p *page) Title(ctx context.Context) (string, error) {
	t, err := p.p.Title()
	return t, translate("title", err)
}

func (p *page) BodyText(ctx context.Context) (string, error) {
	t, err := p.p.Locator("body").InnerText()
	return t, translate("body text", err)
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.p.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	return data, translate("screenshot", err)
}

func (p *page) PressKey(ctx context.Context, key string) error {
	return translate("press", p.p.Keyboard().Press(key))
}

func (p *page) Scroll(ctx context.Context, dy int) error {
	return translate("scroll", p.p.Mouse().Wheel(0, float64(dy)))
}

func (p *page) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *page) SetDefaultTimeout(d time.Duration) {
	p.timeout = d
	p.p.SetDefaultTimeout(float64(d.Milliseconds()))
}

func (p *page) ByRole(role string, name browser.TextMatch) browser.Locator {
	return &locator{l: p.p.GetByRole(playwright.AriaRole(role), roleOptions(name))}
}

func (p *page) ByText(text browser.TextMatch) browser.Locator {
	return &locator{l: p.p.GetByText(textArg(text), playwright.PageGetByTextOptions{Exact: exactFlag(text)})}
}

func (p *page) ByLabel(text browser.TextMatch) browser.Locator {
	return &locator{l: p.p.GetByLabel(textArg(text), playwright.PageGetByLabelOptions{Exact: exactFlag(text)})}
}

func (p *page) ByPlaceholder(text browser.TextMatch) browser.Locator {
	return &locator{l: p.p.GetByPlaceholder(textArg(text), playwright.PageGetByPlaceholderOptions{Exact: exactFlag(text)})}
}

func (p *page) CSS(selector string) browser.Locator {
	return &locator{l: p.p.Locator(selector)}
}

func (p *page) Close() error {
	return browser.Wrap("close page", p.p.Close())
}

// textArg converts a TextMatch into the string-or-regexp argument playwright
// accepts. Fold matching is expressed as an anchored case-insensitive pattern.
func textArg(m browser.TextMatch) interface{} {
	if m.Mode == browser.MatchFold {
		return m.Regexp()
	}
	return browser.NormalizeSpace(m.Value)
}

func exactFlag(m browser.TextMatch) *bool {
	if m.Mode == browser.MatchExact {
		return playwright.Bool(true)
	}
	return nil
}

func roleOptions(name browser.TextMatch) playwright.PageGetByRoleOptions {
	if name.IsZero() {
		return playwright.PageGetByRoleOptions{}
	}
	return playwright.PageGetByRoleOptions{Name: textArg(name), Exact: exactFlag(name)}
}

type locator struct {
	l playwright.Locator
}

func (l *locator) Count(ctx context.Context) (int, error) {
	n, err := l.l.Count()
	return n, translate("count", err)
}

func (l *locator) First() browser.Locator { return &locator{l: l.l.First()} }

func (l *locator) Nth(i int) browser.Locator { return &locator{l: l.l.Nth(i)} }

func (l *locator) All(ctx context.Context) ([]browser.Locator, error) {
	all, err := l.l.All()
	if err != nil {
		return nil, translate("all", err)
	}
	out := make([]browser.Locator, len(all))
	for i, a := range all {
		out[i] = &locator{l: a}
	}
	return out, nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	v, err := l.l.IsVisible()
	return v, translate("is visible", err)
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	err := l.l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return translate("wait visible", err)
}

func (l *locator) Click(ctx context.Context) error {
	return translate("click", l.l.Click())
}

func (l *locator) Fill(ctx context.Context, value string) error {
	return translate("fill", l.l.Fill(value))
}

func (l *locator) Hover(ctx context.Context) error {
	return translate("hover", l.l.Hover())
}

func (l *locator) SelectOption(ctx context.Context, value string) error {
	_, err := l.l.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}})
	if err == nil {
		return nil
	}
	// Generators usually name the visible option label rather than its value.
	if _, lerr := l.l.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}); lerr == nil {
		return nil
	}
	return translate("select", err)
}

func (l *locator) ScrollIntoView(ctx context.Context) error {
	return translate("scroll into view", l.l.ScrollIntoViewIfNeeded())
}

func (l *locator) Text(ctx context.Context) (string, error) {
	t, err := l.l.InnerText()
	return t, translate("text", err)
}

func (l *locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	has, err := l.l.Evaluate("(el, n) => el.hasAttribute(n)", name)
	if err != nil {
		return "", false, translate("attribute", err)
	}
	if ok, _ := has.(bool); !ok {
		return "", false, nil
	}
	v, err := l.l.GetAttribute(name)
	return v, true, translate("attribute", err)
}

func (l *locator) TagName(ctx context.Context) (string, error) {
	v, err := l.l.Evaluate("el => el.tagName.toLowerCase()", nil)
	if err != nil {
		return "", translate("tag name", err)
	}
	s, _ := v.(string)
	return s, nil
}

func (l *locator) Filter(m browser.TextMatch) browser.Locator {
	if m.IsZero() {
		return l
	}
	var has interface{} = m.Regexp()
	return &locator{l: l.l.Filter(playwright.LocatorFilterOptions{HasText: has})}
}

func (l *locator) CSS(selector string) browser.Locator {
	return &locator{l: l.l.Locator(selector)}
}

func (l *locator) ByText(text browser.TextMatch) browser.Locator {
	return &locator{l: l.l.GetByText(textArg(text), playwright.LocatorGetByTextOptions{Exact: exactFlag(text)})}
}

func (l *locator) ByRole(role string, name browser.TextMatch) browser.Locator {
	o := playwright.LocatorGetByRoleOptions{}
	if !name.IsZero() {
		o.Name = textArg(name)
		o.Exact = exactFlag(name)
	}
	return &locator{l: l.l.GetByRole(playwright.AriaRole(role), o)}
}

// translate maps playwright errors onto the port's sentinel errors.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &browser.DriverError{Op: op, Err: fmt.Errorf("%w: %v", browser.ErrTimeout, err)}
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return &browser.DriverError{Op: op, Err: fmt.Errorf("%w: %v", browser.ErrClosed, err)}
	}
	return browser.Wrap(op, err)
}

var _ browser.Driver = (*Driver)(nil)
