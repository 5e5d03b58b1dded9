// Package browser defines the port implemented by browser driver adapters.
// The engine only talks to these interfaces; pwdriver backs them with a real
// browser and htmlpage with a static DOM.
package browser

import (
	"context"
	"time"
)

// Kind selects the browser engine.
type Kind string

const (
	Chromium Kind = "chromium"
	Firefox  Kind = "firefox"
	WebKit   Kind = "webkit"
)

// LaunchOptions configures a browser session.
type LaunchOptions struct {
	Browser  Kind
	Headless bool
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	ViewportWidth  int
	ViewportHeight int
}

// Driver launches browser sessions.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one launched browser process.
type Session interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context (cookies, storage) within a session.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	Title(ctx context.Context) (string, error)
	// BodyText returns the rendered text of the document body.
	BodyText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PressKey(ctx context.Context, key string) error
	// Scroll scrolls the viewport by dy pixels (negative scrolls up).
	Scroll(ctx context.Context, dy int) error
	Wait(ctx context.Context, d time.Duration) error
	SetDefaultTimeout(d time.Duration)

	ByRole(role string, name TextMatch) Locator
	ByText(text TextMatch) Locator
	ByLabel(text TextMatch) Locator
	ByPlaceholder(text TextMatch) Locator
	CSS(selector string) Locator

	Close() error
}

// Locator is a lazy query for zero or more elements. Queries are re-evaluated
// against the live document on every call.
type Locator interface {
	Count(ctx context.Context) (int, error)
	First() Locator
	Nth(i int) Locator
	All(ctx context.Context) ([]Locator, error)

	IsVisible(ctx context.Context) (bool, error)
	// WaitVisible blocks until the first match is visible or timeout elapses.
	WaitVisible(ctx context.Context, timeout time.Duration) error

	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Hover(ctx context.Context) error
	SelectOption(ctx context.Context, value string) error
	ScrollIntoView(ctx context.Context) error

	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	TagName(ctx context.Context) (string, error)

	// Filter narrows matches to elements whose text satisfies m.
	Filter(m TextMatch) Locator
	// CSS, ByText, and ByRole search within the matched elements.
	CSS(selector string) Locator
	ByText(text TextMatch) Locator
	ByRole(role string, name TextMatch) Locator
}
