package browser

import (
	"context"
	"errors"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/config"
)

// ErrNoPage is returned when an operation needs a page that is gone.
var ErrNoPage = errors.New("browser page not available")

// Selector identifies page elements independent of the driver.
type Selector struct {
	// CSS is a CSS selector. Ignored when Text is set.
	CSS string

	// Text matches elements whose own text contains this string
	Text string

	// HasText keeps only matches whose text content contains this string
	HasText string

	// First restricts the match set to the first element
	First bool
}

// Element is a lazily evaluated handle to zero or more matching elements.
type Element interface {
	// IsVisible reports whether the first matching element is visible.
	// Zero matches report false with no error; an error means the probe
	// itself failed (page crashed, target closed).
	IsVisible() (bool, error)

	// Click clicks the first matching element.
	Click() error
}

// Session is the page automation surface the presence machine consumes.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Locate(sel Selector) Element
	Wait(ctx context.Context, d time.Duration) error

	// HasPage reports false once the page or browser is gone.
	HasPage() bool
}

// Driver is a Session plus the startup and shutdown operations.
type Driver interface {
	Session
	SetCookies(cookies []config.Cookie) error
	Close() error
}

// Options configures Open.
type Options struct {
	// Engine is config.EnginePlaywright or config.EngineRod
	Engine string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// NavigationTimeout bounds a single Navigate call
	NavigationTimeout time.Duration

	// Viewport sets the initial viewport size
	Viewport *Viewport
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for various operations
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
)

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = config.EnginePlaywright
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	return o
}

// OptionsFromConfig maps the browser config section to Options.
func OptionsFromConfig(c config.BrowserConfig) Options {
	opts := Options{
		Engine:            c.Engine,
		Headless:          c.Headless,
		NavigationTimeout: c.NavigationTimeout,
	}
	if c.ViewportWidth > 0 && c.ViewportHeight > 0 {
		opts.Viewport = &Viewport{Width: c.ViewportWidth, Height: c.ViewportHeight}
	}
	return opts
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
