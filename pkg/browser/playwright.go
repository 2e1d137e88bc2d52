package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/roomkeeper/roomkeeper/pkg/config"
)

// PlaywrightSession is a Driver backed by a single Playwright page.
type PlaywrightSession struct {
	mu         sync.Mutex
	playwright *playwright.Playwright
	browser    playwright.Browser
	context    playwright.BrowserContext
	page       playwright.Page
	navTimeout float64

	// CreatedAt is the timestamp when the session was launched
	CreatedAt time.Time

	// CurrentURL is the URL of the current page
	CurrentURL string
}

// openPlaywright installs the driver if needed, launches Chromium and opens a page.
func openPlaywright(opts Options) (*PlaywrightSession, error) {
	// Discard driver output so it does not interleave with our logs
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	navTimeout := float64(opts.NavigationTimeout.Milliseconds())
	page.SetDefaultNavigationTimeout(navTimeout)

	return &PlaywrightSession{
		playwright: pw,
		browser:    browser,
		context:    bctx,
		page:       page,
		navTimeout: navTimeout,
		CreatedAt:  time.Now(),
		CurrentURL: "about:blank",
	}, nil
}

// SetCookies adds cookies to the browser context.
func (s *PlaywrightSession) SetCookies(cookies []config.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return ErrNoPage
	}
	if len(cookies) == 0 {
		return nil
	}

	if err := s.context.AddCookies(toPlaywrightCookies(cookies)); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

// Navigate navigates the page to url and waits for DOMContentLoaded.
func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	page := s.currentPage()
	if page == nil {
		return ErrNoPage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.navTimeout),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.mu.Lock()
	s.CurrentURL = page.URL()
	s.mu.Unlock()
	return nil
}

// Locate returns a lazy handle for sel.
func (s *PlaywrightSession) Locate(sel Selector) Element {
	page := s.currentPage()
	if page == nil {
		return missingElement{}
	}

	loc := page.Locator(playwrightSelector(sel))
	if sel.HasText != "" {
		loc = loc.Filter(playwright.LocatorFilterOptions{HasText: sel.HasText})
	}
	if sel.First {
		loc = loc.First()
	}
	return playwrightElement{loc: loc}
}

// Wait sleeps for d unless ctx ends first.
func (s *PlaywrightSession) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// HasPage reports whether the page is still open.
func (s *PlaywrightSession) HasPage() bool {
	page := s.currentPage()
	return page != nil && !page.IsClosed()
}

// Close closes the page, context, browser and the driver process.
func (s *PlaywrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		_ = s.page.Close() // Ignore errors, continue cleanup
	}
	if s.context != nil {
		_ = s.context.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	s.page, s.context, s.browser = nil, nil, nil

	if s.playwright != nil {
		pw := s.playwright
		s.playwright = nil
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}
	return nil
}

func (s *PlaywrightSession) currentPage() playwright.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e playwrightElement) IsVisible() (bool, error) {
	// First() avoids strict-mode violations when several elements match
	visible, err := e.loc.First().IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility probe failed: %w", err)
	}
	return visible, nil
}

func (e playwrightElement) Click() error {
	if err := e.loc.First().Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

type missingElement struct{}

func (missingElement) IsVisible() (bool, error) { return false, ErrNoPage }
func (missingElement) Click() error              { return ErrNoPage }

// playwrightSelector renders sel in Playwright's selector syntax.
func playwrightSelector(sel Selector) string {
	if sel.Text != "" {
		return "text=" + sel.Text
	}
	return sel.CSS
}

func toPlaywrightCookies(cookies []config.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
		}
		if c.Domain != "" {
			oc.Domain = playwright.String(c.Domain)
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		oc.Path = playwright.String(path)
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			oc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			oc.Secure = playwright.Bool(true)
		}
		if c.SameSite != "" {
			sameSite := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &sameSite
		}
		out = append(out, oc)
	}
	return out
}
