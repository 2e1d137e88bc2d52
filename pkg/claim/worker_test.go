package claim

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RequestNonce(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Login(ctx context.Context, nonce string) error {
	return m.Called(ctx, nonce).Error(0)
}

func (m *mockProvider) FetchSession(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProvider) ClaimQuest(ctx context.Context) identity.Result {
	return m.Called(ctx).Get(0).(identity.Result)
}

// clock is a settable time source.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	awarded = identity.Result{Success: true, Message: "Points awarded successfully!", Points: "10"}
	capped  = identity.Result{MaxHPReached: true, Message: "You have reached max HP for today"}
)

func newTestWorker(t *testing.T, p identity.Provider, store StateStore) (*Worker, *notify.Recorder, *clock) {
	t.Helper()
	rec := &notify.Recorder{}
	w, err := NewWorker(p, rec, store, Options{TickInterval: 5 * time.Minute, ClaimInterval: time.Hour},
		logging.NewWriterLogger("claim", io.Discard))
	require.NoError(t, err)

	c := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)}
	w.now = c.now
	return w, rec, c
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(nil, nil, nil, Options{TickInterval: time.Minute, ClaimInterval: time.Hour}, nil)
	assert.Error(t, err)

	_, err = NewWorker(&mockProvider{}, nil, nil, Options{ClaimInterval: time.Hour}, nil)
	assert.Error(t, err)
}

func TestTick_FirstTickClaims(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil).Once()
	p.On("ClaimQuest", mock.Anything).Return(awarded).Once()

	w, rec, c := newTestWorker(t, p, nil)
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))

	s := w.State()
	require.NotNil(t, s.LastClaimTime)
	assert.Equal(t, c.t, *s.LastClaimTime)
	assert.Equal(t, 10, s.LastCheckDay)
	assert.False(t, s.MaxHPReachedToday)

	assert.Equal(t, []string{notify.ClaimStarted(), notify.QuestClaimed(awarded.Message, awarded.Points)}, rec.Messages())
	p.AssertExpectations(t)
}

func TestTick_IdempotentWithinInterval(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(awarded)

	w, _, c := newTestWorker(t, p, nil)
	require.Equal(t, OutcomeClaimed, w.Tick(context.Background()))

	for i := 0; i < 11; i++ {
		c.advance(5 * time.Minute)
		assert.Equal(t, OutcomeNotDue, w.Tick(context.Background()), "tick at +%v", time.Duration(i+1)*5*time.Minute)
	}
	p.AssertNumberOfCalls(t, "ClaimQuest", 1)

	c.advance(5 * time.Minute) // exactly one hour
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
	p.AssertNumberOfCalls(t, "ClaimQuest", 2)
}

func TestTick_DayRolloverResets(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(awarded)

	w, _, c := newTestWorker(t, p, nil)
	claimed := c.t.Add(-10 * time.Minute)
	w.state = State{LastClaimTime: &claimed, MaxHPReachedToday: true, LastCheckDay: 9}

	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
	s := w.State()
	assert.Equal(t, 10, s.LastCheckDay)
	assert.False(t, s.MaxHPReachedToday)
	require.NotNil(t, s.LastClaimTime)
	assert.Equal(t, c.t, *s.LastClaimTime)
}

func TestTick_MaxHPBreaker(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(capped).Once()

	w, rec, c := newTestWorker(t, p, nil)
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
	assert.True(t, w.State().MaxHPReachedToday)

	msgs := rec.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, notify.ClaimStarted(), msgs[0])
	assert.Contains(t, msgs[1], notify.MarkerQuestFailed)
	assert.Contains(t, msgs[1], "max HP for today")
	assert.Equal(t, notify.MaxHPReached(), msgs[2])

	// rest of the day: no claim even after the interval
	for i := 0; i < 5; i++ {
		c.advance(2 * time.Hour)
		if c.t.Day() != 10 {
			break
		}
		assert.Equal(t, OutcomeBreakerOpen, w.Tick(context.Background()))
	}
	p.AssertNumberOfCalls(t, "ClaimQuest", 1)

	// next day claims again
	p.On("ClaimQuest", mock.Anything).Return(awarded)
	c.t = time.Date(2025, 3, 11, 0, 1, 0, 0, time.Local)
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
	assert.False(t, w.State().MaxHPReachedToday)
}

func TestTick_AuthFailureLeavesClaimUnset(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(identity.ErrNoNonce)

	w, rec, _ := newTestWorker(t, p, nil)
	assert.Equal(t, OutcomeAuthFailed, w.Tick(context.Background()))

	assert.Nil(t, w.State().LastClaimTime)
	assert.Equal(t, []string{notify.ClaimStarted(), notify.ClaimAuthFailed()}, rec.Messages())
	p.AssertNotCalled(t, "ClaimQuest", mock.Anything)

	// due again on the very next tick
	assert.Equal(t, OutcomeAuthFailed, w.Tick(context.Background()))
	p.AssertNumberOfCalls(t, "Authenticate", 2)
}

func TestTick_FailedClaimStillSetsLastClaimTime(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(identity.Result{Message: "quest not found"})

	w, rec, c := newTestWorker(t, p, nil)
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))

	s := w.State()
	require.NotNil(t, s.LastClaimTime)
	assert.False(t, s.MaxHPReachedToday)
	assert.Equal(t, notify.QuestFailed("quest not found"), rec.Messages()[1])

	c.advance(30 * time.Minute)
	assert.Equal(t, OutcomeNotDue, w.Tick(context.Background()))
}

func TestTick_PersistsAndRecords(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(capped)

	store := NewMemoryStore()
	w, _, c := newTestWorker(t, p, store)
	w.Tick(context.Background())

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved.MaxHPReachedToday)
	require.NotNil(t, saved.LastClaimTime)
	assert.Equal(t, c.t, *saved.LastClaimTime)

	attempts := store.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, capped, attempts[0].Result)
}

func TestRestore(t *testing.T) {
	p := &mockProvider{}
	store := NewMemoryStore()
	w, _, c := newTestWorker(t, p, store)

	last := c.t.Add(-20 * time.Minute)
	require.NoError(t, store.Save(context.Background(), State{LastClaimTime: &last, LastCheckDay: c.t.Day()}))
	require.NoError(t, w.Restore(context.Background()))

	assert.Equal(t, OutcomeNotDue, w.Tick(context.Background()))
	p.AssertNotCalled(t, "Authenticate", mock.Anything)
}

func TestRestore_StateFromAnotherMonthIsReset(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(awarded)

	store := NewMemoryStore()
	w, _, c := newTestWorker(t, p, store)

	// same day of month, one month earlier
	last := time.Date(2025, 2, 10, 22, 0, 0, 0, time.Local)
	require.NoError(t, store.Save(context.Background(), State{LastClaimTime: &last, MaxHPReachedToday: true, LastCheckDay: 10}))
	require.NoError(t, w.Restore(context.Background()))

	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
	s := w.State()
	assert.False(t, s.MaxHPReachedToday)
	require.NotNil(t, s.LastClaimTime)
	assert.Equal(t, c.t, *s.LastClaimTime)
	p.AssertNumberOfCalls(t, "ClaimQuest", 1)
}

func TestRestore_BreakerFromTodayStaysOpen(t *testing.T) {
	p := &mockProvider{}
	store := NewMemoryStore()
	w, _, c := newTestWorker(t, p, store)

	last := c.t.Add(-3 * time.Hour)
	require.NoError(t, store.Save(context.Background(), State{LastClaimTime: &last, MaxHPReachedToday: true, LastCheckDay: 10}))
	require.NoError(t, w.Restore(context.Background()))

	assert.Equal(t, OutcomeBreakerOpen, w.Tick(context.Background()))
	p.AssertNotCalled(t, "Authenticate", mock.Anything)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (State, error) { return State{}, errors.New("disk gone") }
func (failingStore) Save(context.Context, State) error   { return errors.New("disk gone") }

func TestStoreFailuresDoNotStopClaims(t *testing.T) {
	p := &mockProvider{}
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ClaimQuest", mock.Anything).Return(awarded)

	w, _, _ := newTestWorker(t, p, failingStore{})
	assert.Error(t, w.Restore(context.Background()))
	assert.Equal(t, OutcomeClaimed, w.Tick(context.Background()))
}

func TestStart_ArmsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := schedule.New(ctx, logging.NewWriterLogger("schedule", io.Discard))

	w, _, _ := newTestWorker(t, &mockProvider{}, nil)
	w.Start(sched)
	w.Start(sched)
	w.Stop()
	w.Stop()

	cancel()
	sched.Wait()
}
