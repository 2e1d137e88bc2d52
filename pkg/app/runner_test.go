package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkeeper/roomkeeper/pkg/browser"
	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
	"github.com/roomkeeper/roomkeeper/pkg/presence"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

// fakeDriver shows an in-meeting page for every room.
type fakeDriver struct {
	mu        sync.Mutex
	cookies   []config.Cookie
	cookieErr error
	closed    bool
	navs      []string
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navs = append(d.navs, url)
	return nil
}

func (d *fakeDriver) Locate(sel browser.Selector) browser.Element {
	return fakeElement{visible: sel == presence.DefaultSelectors().InMeeting || sel == presence.DefaultSelectors().Presence}
}

func (d *fakeDriver) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (d *fakeDriver) HasPage() bool { return true }

func (d *fakeDriver) SetCookies(c []config.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = c
	return d.cookieErr
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeElement struct {
	visible bool
}

func (e fakeElement) IsVisible() (bool, error) { return e.visible, nil }
func (e fakeElement) Click() error { return nil }

type stubProvider struct {
	mu     sync.Mutex
	claims int
}

func (p *stubProvider) RequestNonce(context.Context) (string, error) { return "n", nil }
func (p *stubProvider) Login(context.Context, string) error { return nil }
func (p *stubProvider) FetchSession(context.Context) (string, error) { return "{}", nil }
func (p *stubProvider) Authenticate(context.Context) error { return nil }
func (p *stubProvider) ClaimQuest(context.Context) identity.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims++
	return identity.Result{Success: true, Message: "Points awarded successfully!"}
}

func (p *stubProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claims
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Meeting.RoomIDs = []string{"room-a", "room-b"}
	cfg.Meeting.CookieFile = filepath.Join(t.TempDir(), "missing.json")
	cfg.Claim.Enabled = false
	return cfg
}

func quiet() *logging.Logger {
	return logging.NewWriterLogger("app", io.Discard)
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewRunner(cfg, quiet())
	assert.Error(t, err)
}

func TestRun_BrowserFailureIsNotified(t *testing.T) {
	rec := &notify.Recorder{}
	r, err := NewRunner(testConfig(t), quiet(),
		WithSink(rec),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) {
			return nil, errors.New("could not install driver")
		}),
	)
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not install driver")

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], notify.MarkerStartupFailed)
	assert.False(t, r.Live())
}

func TestRun_CookieFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meeting.CookieFile = filepath.Join(t.TempDir(), "cookie.json")
	require.NoError(t, os.WriteFile(cfg.Meeting.CookieFile,
		[]byte(`[{"name":"session","value":"v","domain":".huddle01.app","path":"/"}]`), 0o600))

	driver := &fakeDriver{cookieErr: errors.New("context closed")}
	rec := &notify.Recorder{}
	r, err := NewRunner(cfg, quiet(), WithSink(rec),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) { return driver, nil }))
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, driver.isClosed())
	assert.Len(t, driver.cookies, 1)
	assert.Contains(t, rec.Messages()[0], notify.MarkerStartupFailed)
}

func TestRun_JoinsThenRunsUntilCancelled(t *testing.T) {
	driver := &fakeDriver{}
	rec := &notify.Recorder{}
	r, err := NewRunner(testConfig(t), quiet(), WithSink(rec),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) { return driver, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, r.Live, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{notify.Joined("room-a")}, rec.Messages())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.True(t, driver.isClosed())
}

func TestRun_CancelBeforeJoinIsClean(t *testing.T) {
	driver := &fakeDriver{}
	r, err := NewRunner(testConfig(t), quiet(), WithSink(&notify.Recorder{}),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) { return driver, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, r.Run(ctx))
	assert.False(t, r.Live())
	assert.True(t, driver.isClosed())
}

func TestRun_ArmsClaimWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Claim.Enabled = true
	cfg.Claim.TickInterval = 10 * time.Millisecond
	cfg.Claim.ClaimInterval = time.Hour

	provider := &stubProvider{}
	rec := &notify.Recorder{}
	r, err := NewRunner(cfg, quiet(), WithSink(rec), WithProvider(provider),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) { return &fakeDriver{}, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return provider.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	// interval gate holds across further ticks
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, provider.count())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_ClaimEnabledWithoutWalletSkipsWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Claim.Enabled = true

	sched := &recordingScheduler{}
	r, err := NewRunner(cfg, quiet(), WithSink(&notify.Recorder{}), WithScheduler(sched),
		WithBrowserOpener(func(context.Context, browser.Options) (browser.Driver, error) { return &fakeDriver{}, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, r.Live, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// presence check only
	assert.Equal(t, 1, sched.count())
}

type recordingScheduler struct {
	mu    sync.Mutex
	armed int
}

type noopTimer struct{}

func (noopTimer) Stop() {}

func (s *recordingScheduler) Every(time.Duration, schedule.Func) schedule.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed++
	return noopTimer{}
}

func (s *recordingScheduler) After(d time.Duration, fn schedule.Func) schedule.Timer {
	return s.Every(d, fn)
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func TestNewSink_FallsBackToLog(t *testing.T) {
	cfg := testConfig(t)
	_, ok := NewSink(cfg, quiet()).(notify.LogSink)
	assert.True(t, ok)

	cfg.Notify.TelegramToken = "t"
	cfg.Notify.ChatID = "c"
	sink := NewSink(cfg, quiet())
	async, ok := sink.(*notify.Async)
	require.True(t, ok)
	require.NoError(t, async.Close(context.Background()))
}

func TestNewStateStore(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewStateStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.Claim.StatePath = filepath.Join(t.TempDir(), "claim.db")
	store, err = NewStateStore(context.Background(), cfg)
	require.NoError(t, err)
	closer, ok := store.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
}

func TestNewProvider_RequiresWallet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Claim.APIBaseURL = "https://api.example.test"
	_, err := NewProvider(cfg, quiet())
	assert.ErrorIs(t, err, identity.ErrNoWallet)
}
