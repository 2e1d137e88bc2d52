// Package app wires the browser, the presence machine and the claim worker
// into one long-running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roomkeeper/roomkeeper/pkg/browser"
	"github.com/roomkeeper/roomkeeper/pkg/claim"
	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
	"github.com/roomkeeper/roomkeeper/pkg/presence"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

// DefaultShutdownTimeout bounds the cleanup after the run context ends.
const DefaultShutdownTimeout = 15 * time.Second

// BrowserOpener starts a browser session.
type BrowserOpener func(ctx context.Context, opts browser.Options) (browser.Driver, error)

// Runner owns the process lifecycle.
type Runner struct {
	cfg    *config.Config
	logger *logging.Logger

	sink      notify.Sink
	open      BrowserOpener
	provider  identity.Provider
	store     claim.StateStore
	scheduler schedule.Scheduler

	shutdownTimeout time.Duration
	live            atomic.Bool

	machine *presence.Machine
	worker  *claim.Worker
	watcher *CookieWatcher
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink overrides the notification sink.
func WithSink(sink notify.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithBrowserOpener overrides how the browser is started.
func WithBrowserOpener(open BrowserOpener) Option {
	return func(r *Runner) { r.open = open }
}

// WithProvider overrides the identity provider and enables the claim worker.
func WithProvider(p identity.Provider) Option {
	return func(r *Runner) { r.provider = p }
}

// WithStateStore overrides the claim state store.
func WithStateStore(s claim.StateStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithScheduler overrides the scheduler.
func WithScheduler(s schedule.Scheduler) Option {
	return func(r *Runner) { r.scheduler = s }
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.shutdownTimeout = d
		}
	}
}

// NewRunner validates cfg. The sink is built here, before anything that can
// fail at startup, so startup failures can be reported.
func NewRunner(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.MustLogger("app")
	}

	r := &Runner{
		cfg:             cfg,
		logger:          logger,
		open:            browser.Open,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = NewSink(cfg, logger)
	}
	return r, nil
}

// Live reports whether the initial join loop has completed.
func (r *Runner) Live() bool {
	return r.live.Load()
}

// Sink returns the notification sink in use.
func (r *Runner) Sink() notify.Sink {
	return r.sink
}

// Run starts the browser, joins a room, arms the presence check and the
// claim worker, then blocks until ctx ends. Startup failures are notified
// and returned. Cancellation is a clean exit.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.logger.Infof("starting roomkeeper for account %q with %d room(s)", r.cfg.AccountName, len(r.cfg.Meeting.RoomIDs))

	driver, err := r.startBrowser(ctx)
	if err != nil {
		r.sink.Send(ctx, notify.StartupFailed(err))
		r.closeSink()
		return err
	}

	var service *schedule.Service
	if r.scheduler == nil {
		service = schedule.New(ctx, r.logger)
		r.scheduler = service
	}

	defer func() {
		if shutdownErr := r.shutdown(driver, service); shutdownErr != nil {
			r.logger.Warnf("shutdown: %v", shutdownErr)
			if err == nil {
				err = shutdownErr
			}
		}
	}()

	r.watchCookies(ctx, driver)

	opts := presence.OptionsFromConfig(r.cfg)
	opts.OnTransition = func(from, to presence.State) {
		r.logger.Debugf("presence %s -> %s", from, to)
	}
	r.machine, err = presence.NewMachine(driver, r.sink, r.scheduler, opts, r.logger)
	if err != nil {
		r.sink.Send(ctx, notify.StartupFailed(err))
		return err
	}

	if err := r.machine.Start(ctx); err != nil {
		if presence.IsContextError(err) {
			r.logger.Infof("stopped before joining")
			return nil
		}
		return err
	}
	r.live.Store(true)
	r.logger.Infof("initial join complete, monitoring presence")

	if err := r.startClaims(ctx); err != nil {
		r.logger.Warnf("claim worker not started: %v", err)
	}

	<-ctx.Done()
	r.logger.Infof("shutting down")
	return nil
}

// startBrowser covers the fatal startup steps: launch, page, cookies.
func (r *Runner) startBrowser(ctx context.Context) (browser.Driver, error) {
	driver, err := r.open(ctx, browser.OptionsFromConfig(r.cfg.Browser))
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	cookies, err := config.LoadCookies(r.cfg.Meeting.CookieFile)
	if err != nil {
		r.logger.Warnf("ignoring cookie file: %v", err)
		cookies = nil
	}
	if len(cookies) > 0 {
		if err := driver.SetCookies(cookies); err != nil {
			_ = driver.Close()
			return nil, fmt.Errorf("failed to set cookies: %w", err)
		}
		r.logger.Infof("loaded %d cookie(s)", len(cookies))
	}
	return driver, nil
}

// watchCookies starts the cookie watcher when enabled. Failure is not fatal.
func (r *Runner) watchCookies(ctx context.Context, driver browser.Driver) {
	if !r.cfg.Meeting.WatchCookies || r.cfg.Meeting.CookieFile == "" {
		return
	}
	w, err := NewCookieWatcher(r.cfg.Meeting.CookieFile, driver.SetCookies, r.logger)
	if err != nil {
		r.logger.Warnf("cookie file will not be watched: %v", err)
		return
	}
	r.watcher = w
	go w.Run(ctx)
	r.logger.Infof("watching %s for cookie changes", r.cfg.Meeting.CookieFile)
}

func (r *Runner) startClaims(ctx context.Context) error {
	if !r.cfg.Claim.Enabled {
		return nil
	}

	if r.provider == nil {
		if !r.cfg.ClaimReady() {
			return errors.New("claim enabled but wallet or API base URL missing")
		}
		p, err := NewProvider(r.cfg, r.logger)
		if err != nil {
			return err
		}
		r.provider = p
	}
	if r.store == nil {
		store, err := NewStateStore(ctx, r.cfg)
		if err != nil {
			return err
		}
		r.store = store
	}

	worker, err := claim.NewWorker(r.provider, r.sink, r.store, claim.OptionsFromConfig(r.cfg.Claim), r.logger)
	if err != nil {
		return err
	}
	if err := worker.Restore(ctx); err != nil {
		r.logger.Warnf("starting with empty claim state: %v", err)
	}
	worker.Start(r.scheduler)
	r.worker = worker
	return nil
}

// shutdown stops timers, then closes the browser, the sink and the store
// concurrently.
func (r *Runner) shutdown(driver browser.Driver, service *schedule.Service) error {
	if r.machine != nil {
		r.machine.Stop()
	}
	if r.worker != nil {
		r.worker.Stop()
	}
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Warnf("close cookie watcher: %v", err)
		}
		<-r.watcher.Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	if service != nil {
		done := make(chan struct{})
		go func() {
			service.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			r.logger.Warnf("timed out waiting for scheduled callbacks")
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := driver.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return r.closeSinkContext(ctx)
	})
	if closer, ok := r.store.(io.Closer); ok {
		g.Go(func() error {
			if err := closer.Close(); err != nil {
				return fmt.Errorf("close claim store: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

type contextCloser interface {
	Close(ctx context.Context) error
}

func (r *Runner) closeSink() {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	if err := r.closeSinkContext(ctx); err != nil {
		r.logger.Warnf("notifications not flushed: %v", err)
	}
}

func (r *Runner) closeSinkContext(ctx context.Context) error {
	if c, ok := r.sink.(contextCloser); ok {
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("flush notifications: %w", err)
		}
	}
	return nil
}
