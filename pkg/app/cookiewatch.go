package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

// CookieWatcher re-applies the cookie file to the browser whenever it is
// rewritten, so a refreshed export takes effect on the next navigation.
type CookieWatcher struct {
	path    string
	apply   func([]config.Cookie) error
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	debounceDur time.Duration
	reloads     atomic.Int64

	mu      sync.Mutex
	pending time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCookieWatcher watches the directory holding path. Editors and export
// tools often replace the file, so the file itself is not watched.
func NewCookieWatcher(path string, apply func([]config.Cookie) error, logger *logging.Logger) (*CookieWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &CookieWatcher{
		path:        abs,
		apply:       apply,
		logger:      logger,
		watcher:     watcher,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Reloads returns how many times cookies were re-applied.
func (w *CookieWatcher) Reloads() int {
	return int(w.reloads.Load())
}

// Run processes events until ctx ends or Close is called.
func (w *CookieWatcher) Run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("cookie watcher error: %v", err)

		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

// Close stops Run and releases the watcher. Safe to call more than once.
func (w *CookieWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

// Done is closed when Run returns.
func (w *CookieWatcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *CookieWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.logger.Debugf("cookie file changed: %s", event)
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *CookieWatcher) processDebounced() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	cookies, err := config.LoadCookies(w.path)
	if err != nil {
		w.logger.Warnf("ignoring cookie file change: %v", err)
		return
	}
	if len(cookies) == 0 {
		return
	}
	if err := w.apply(cookies); err != nil {
		w.logger.Warnf("failed to re-apply cookies: %v", err)
		return
	}

	w.reloads.Add(1)
	w.logger.Infof("re-applied %d cookie(s) from %s", len(cookies), w.path)
}
