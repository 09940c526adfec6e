package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// blockedResources suppresses image and font loads; the pipeline only
// reads markup, and the storefront pages are heavy.
var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf",
}

// Chrome drives a headless Chrome instance through chromedp.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	renderWait  time.Duration
}

// Options configures the Chrome engine.
type Options struct {
	UserAgent  string
	Headless   bool
	RenderWait time.Duration
}

// NewChrome starts a Chrome allocator shared by all sessions.
func NewChrome(opts Options) *Chrome {
	allocatorOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("headless", opts.Headless),
		chromedp.UserAgent(opts.UserAgent),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	renderWait := opts.RenderWait
	if renderWait <= 0 {
		renderWait = 2 * time.Second
	}
	return &Chrome{allocCtx: allocCtx, allocCancel: allocCancel, renderWait: renderWait}
}

// NewSession opens a tab with resource blocking enabled.
func (c *Chrome) NewSession(ctx context.Context) (Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLs(blockedResources),
		chromedp.EmulateViewport(1920, 1080),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("initialise browser session: %w", err)
	}

	return &chromeSession{ctx: tabCtx, cancel: tabCancel, renderWait: c.renderWait}, nil
}

// Close tears down the allocator and every open session.
func (c *Chrome) Close() error {
	c.allocCancel()
	return nil
}

type chromeSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	renderWait time.Duration
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.renderWait),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("snapshot html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Hover(ctx context.Context, selector string) error {
	// chromedp has no hover action; dispatch the event in-page.
	script := fmt.Sprintf(
		`(() => { const el = %s; if (!el) return false; el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: true})); return true; })()`,
		lookupJS(selector),
	)
	var hovered bool
	if err := s.run(ctx, chromedp.Evaluate(script, &hovered)); err != nil {
		return fmt.Errorf("hover %q: %w", selector, err)
	}
	if !hovered {
		return fmt.Errorf("hover %q: element not found", selector)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, queryOption(selector))); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) ScrollBottom(ctx context.Context) error {
	if err := s.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); true`, nil),
	); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => %s !== null)()`, lookupJS(selector))
	var exists bool
	if err := s.run(ctx, chromedp.Evaluate(script, &exists)); err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return exists, nil
}

func (s *chromeSession) IsDisabled(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(
		`(() => { const el = %s; return el ? !!el.disabled : true; })()`,
		lookupJS(selector),
	)
	var disabled bool
	if err := s.run(ctx, chromedp.Evaluate(script, &disabled)); err != nil {
		return false, fmt.Errorf("query disabled %q: %w", selector, err)
	}
	return disabled, nil
}

func (s *chromeSession) Wait(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

// queryOption maps selector syntax to a chromedp query strategy.
func queryOption(selector string) chromedp.QueryOption {
	if strings.HasPrefix(selector, "//") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// lookupJS builds an in-page expression resolving a selector to a
// single element (or null).
func lookupJS(selector string) string {
	if strings.HasPrefix(selector, "//") {
		return fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			selector,
		)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, selector)
}
