package presence

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/browser"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

// page is what the scripted session shows after one navigation.
type page struct {
	navErr         error
	probeErr       error
	joinButton     bool
	hostNotStarted bool
	inMeeting      bool
	inSpace        bool
}

// fakeSession replays one page per navigation. Past the end of the script it
// repeats the last page.
type fakeSession struct {
	mu        sync.Mutex
	sel       Selectors
	script    []page
	navs      []string
	waits     []time.Duration
	clicks    int
	hasPage   bool
	presence  bool
	presErr   error
	unlockHit bool
}

func newFakeSession(script ...page) *fakeSession {
	return &fakeSession{sel: DefaultSelectors(), script: script, hasPage: true}
}

func (s *fakeSession) current() page {
	if len(s.navs) == 0 || len(s.script) == 0 {
		return page{}
	}
	i := len(s.navs) - 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navs = append(s.navs, url)
	return s.current().navErr
}

func (s *fakeSession) Locate(sel browser.Selector) browser.Element {
	return &fakeElement{s: s, sel: sel}
}

func (s *fakeSession) Wait(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeSession) HasPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPage
}

func (s *fakeSession) setPresence(visible bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = visible
	s.presErr = err
}

func (s *fakeSession) navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.navs))
	copy(out, s.navs)
	return out
}

type fakeElement struct {
	s   *fakeSession
	sel browser.Selector
}

func (e *fakeElement) IsVisible() (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	p := e.s.current()
	switch e.sel {
	case e.s.sel.Presence:
		return e.s.presence, e.s.presErr
	case e.s.sel.JoinButton:
		return p.joinButton, nil
	case e.s.sel.HostNotStarted:
		return p.hostNotStarted, p.probeErr
	case e.s.sel.InMeeting:
		return p.inMeeting, p.probeErr
	case e.s.sel.InSpace:
		return p.inSpace, p.probeErr
	case e.s.sel.HostLocked:
		return true, nil
	case e.s.sel.HostUnlocked:
		return e.s.unlockHit, nil
	}
	return false, nil
}

func (e *fakeElement) Click() error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.clicks++
	if e.sel == e.s.sel.HostLocked {
		e.s.unlockHit = true
	}
	return nil
}

type fakeTimer struct {
	mu    sync.Mutex
	stops int
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTimer) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// fakeScheduler records armed timers; callbacks are driven by the test.
type fakeScheduler struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	intervals []time.Duration
}

func (f *fakeScheduler) Every(interval time.Duration, fn schedule.Func) schedule.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{}
	f.timers = append(f.timers, t)
	f.intervals = append(f.intervals, interval)
	return t
}

func (f *fakeScheduler) After(delay time.Duration, fn schedule.Func) schedule.Timer {
	return f.Every(delay, fn)
}

func (f *fakeScheduler) armed() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTimer(nil), f.timers...)
}

var errNavTimeout = errors.New("Timeout 30000ms exceeded")

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("presence", io.Discard)
}

func testOptions(rooms ...string) Options {
	return Options{
		URLTemplate: "https://meet.test/room/{roomId}",
		RoomIDs:     rooms,
		Timing: Timing{
			SettleDelay:   10 * time.Second,
			ClickDelay:    3 * time.Second,
			ConfirmDelay:  10 * time.Second,
			RenderDelay:   20 * time.Second,
			RetryDelay:    10 * time.Second,
			CheckInterval: time.Minute,
		},
		Selectors: DefaultSelectors(),
	}
}
