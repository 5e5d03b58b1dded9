// Package htmlpage implements the browser port over static HTML documents
// parsed with goquery. Pages come from an in-memory site map, so runs are
// deterministic and need no browser binary. Clicking a link or submitting a
// form navigates within the site; fill and select mutate the parsed DOM.
package htmlpage

import (
	"context"
	"sync"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

// Site maps absolute URLs to HTML documents.
type Site map[string]string

// Driver serves pages from a Site.
type Driver struct {
	site Site

	mu       sync.Mutex
	launches []browser.LaunchOptions
	pages    []*Page
	sessions []*Session
	// LaunchErr, when set, is returned by Launch.
	LaunchErr error
}

// New creates a Driver for site.
func New(site Site) *Driver {
	return &Driver{site: site}
}

// Launch returns a new session. The browser kind is recorded but otherwise ignored.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, browser.Wrap("launch", d.LaunchErr)
	}
	d.launches = append(d.launches, opts)
	s := &Session{d: d}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Sessions returns every session launched by this driver.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Launches returns the options of every Launch call.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Pages returns every page opened through this driver, in creation order.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.pages...)
}

// LastPage returns the most recently opened page, or nil.
func (d *Driver) LastPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil
	}
	return d.pages[len(d.pages)-1]
}

// Session is a fake browser process.
type Session struct {
	d      *Driver
	mu     sync.Mutex
	closed bool
}

func (s *Session) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.Wrap("new context", browser.ErrClosed)
	}
	return &Context{s: s, opts: opts}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.Wrap("close session", browser.ErrClosed)
	}
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Context is an isolated browsing context.
type Context struct {
	s      *Session
	opts   browser.ContextOptions
	mu     sync.Mutex
	closed bool
}

func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, browser.Wrap("new page", browser.ErrClosed)
	}
	p := newPage(c.s.d.site, c.opts)
	c.s.d.mu.Lock()
	c.s.d.pages = append(c.s.d.pages, p)
	c.s.d.mu.Unlock()
	return p, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return browser.Wrap("close context", browser.ErrClosed)
	}
	c.closed = true
	return nil
}

var (
	_ browser.Driver  = (*Driver)(nil)
	_ browser.Session = (*Session)(nil)
	_ browser.Context = (*Context)(nil)
)
