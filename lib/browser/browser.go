// Package browser wraps the Chrome DevTools Protocol behind the narrow
// driver surface the scraping services actually need. Everything above this
// package talks in terms of Session so login flows can be exercised against
// fakes in tests.
package browser

import "context"

// Locator describes one way of finding an element on the current page.
// Flows keep ordered lists of these and try them in order, first hit wins,
// since the markup of third-party consoles changes across cohorts.
type Locator struct {
	// Name is a human readable label used in logs and trace attributes.
	Name string
	// XPath expression evaluated against the current document.
	XPath string
}

// Element is an opaque handle to an element located on the current page.
// Its concrete type belongs to the Session implementation that produced it
// and it is only valid for that session.
type Element any

// Session is a live automation-controlled browser. All methods block until
// the underlying protocol call resolves or ctx is done.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	FindCandidates(ctx context.Context, loc Locator) ([]Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	// RunScript evaluates js in the page and unmarshals the result into out.
	// Pass nil to discard the result.
	RunScript(ctx context.Context, js string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Quit tears down the browser process and the session's profile
	// directory. The session is unusable afterwards.
	Quit() error
}
