// Package browser abstracts the headless-browser automation engine the
// crawl pipeline drives: navigate, snapshot rendered HTML, hover,
// click, scroll, and resource blocking. The pipeline never talks to
// chromedp directly, which keeps extraction testable against static
// HTML fixtures.
package browser

import (
	"context"
	"time"
)

// Session is one browser tab. Selectors are CSS by default; selectors
// beginning with "//" are evaluated as XPath, which is the only way to
// address elements by their text content.
type Session interface {
	// Navigate loads the URL and waits for the initial render.
	Navigate(ctx context.Context, url string) error
	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)
	// Hover reveals hover-driven UI such as mega-menus.
	Hover(ctx context.Context, selector string) error
	// Click presses the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// ScrollBottom scrolls the window to the document end, triggering
	// lazy loading.
	ScrollBottom(ctx context.Context) error
	// Exists reports whether any element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)
	// IsDisabled reports whether the first matching element carries the
	// disabled property.
	IsDisabled(ctx context.Context, selector string) (bool, error)
	// Wait pauses for the given duration or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error
	// Close releases the tab.
	Close() error
}

// Browser creates sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
