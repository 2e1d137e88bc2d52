package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/roomkeeper/roomkeeper/pkg/config"
)

// RodSession is a Driver backed by a go-rod page.
type RodSession struct {
	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
}

func openRod(ctx context.Context, opts Options) (*RodSession, error) {
	controlURL, err := launcher.New().Headless(opts.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Viewport.Width,
		Height:            opts.Viewport.Height,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &RodSession{
		browser:    browser,
		page:       page,
		navTimeout: opts.NavigationTimeout,
	}, nil
}

// SetCookies installs cookies browser-wide.
func (s *RodSession) SetCookies(cookies []config.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return ErrNoPage
	}
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}

	if err := s.browser.SetCookies(params); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	page := s.currentPage()
	if page == nil {
		return ErrNoPage
	}

	p := page.Context(ctx).Timeout(s.navTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Locate returns a lazy handle for sel.
func (s *RodSession) Locate(sel Selector) Element {
	page := s.currentPage()
	if page == nil {
		return missingElement{}
	}
	return rodElement{page: page, sel: sel}
}

// Wait sleeps for d unless ctx ends first.
func (s *RodSession) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// HasPage reports whether the target still exists.
func (s *RodSession) HasPage() bool {
	page := s.currentPage()
	if page == nil {
		return false
	}
	_, err := page.Info()
	return err == nil
}

// Close closes the browser.
func (s *RodSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser, s.page = nil, nil
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (s *RodSession) currentPage() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

type rodElement struct {
	page *rod.Page
	sel  Selector
}

// matches resolves the selector without waiting for elements to appear.
func (e rodElement) matches() (rod.Elements, error) {
	var (
		els rod.Elements
		err error
	)
	if e.sel.Text != "" {
		els, err = e.page.ElementsX(textXPath(e.sel.Text))
	} else {
		els, err = e.page.Elements(e.sel.CSS)
	}
	if err != nil {
		return nil, err
	}

	if e.sel.HasText != "" {
		filtered := els[:0]
		for _, el := range els {
			text, textErr := el.Text()
			if textErr == nil && strings.Contains(text, e.sel.HasText) {
				filtered = append(filtered, el)
			}
		}
		els = filtered
	}

	if e.sel.First && len(els) > 1 {
		els = els[:1]
	}
	return els, nil
}

func (e rodElement) IsVisible() (bool, error) {
	els, err := e.matches()
	if err != nil {
		return false, fmt.Errorf("visibility probe failed: %w", err)
	}
	if len(els) == 0 {
		return false, nil
	}
	visible, err := els[0].Visible()
	if err != nil {
		return false, fmt.Errorf("visibility probe failed: %w", err)
	}
	return visible, nil
}

func (e rodElement) Click() error {
	els, err := e.matches()
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	if len(els) == 0 {
		return fmt.Errorf("click failed: no element matches %+v", e.sel)
	}
	if err := els[0].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// textXPath matches elements with a direct text node containing text.
func textXPath(text string) string {
	return fmt.Sprintf("//*[text()[contains(., %s)]]", xpathLiteral(text))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
