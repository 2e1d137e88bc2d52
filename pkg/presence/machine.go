// Package presence keeps an automated participant inside one of several
// rotating meeting rooms.
//
// The Machine owns a single State and a RoomSelector. Its join loop tries
// rooms in order until one confirms membership, then a recurring presence
// check watches the in-meeting indicator and triggers a rejoin when it
// disappears. The loop never gives up; only context cancellation ends it.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/browser"
	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

// Selectors locate the page surfaces the machine probes.
type Selectors struct {
	JoinButton     browser.Selector
	HostNotStarted browser.Selector
	InMeeting      browser.Selector
	InSpace        browser.Selector
	// Presence is probed by the recurring check
	Presence     browser.Selector
	HostLocked   browser.Selector
	HostUnlocked browser.Selector
}

// DefaultSelectors returns the selectors for the huddle01 room UI.
func DefaultSelectors() Selectors {
	return Selectors{
		JoinButton:     browser.Selector{CSS: "button#join-button"},
		HostNotStarted: browser.Selector{Text: "Host has not started the meeting"},
		InMeeting:      browser.Selector{CSS: `button[aria-label="leave"]`},
		InSpace:        browser.Selector{CSS: `button[aria-label="endCall"]`, HasText: "Leave the spaces"},
		Presence:       browser.Selector{CSS: `button[aria-label="endCall"]`, First: true},
		HostLocked:     browser.Selector{CSS: "div.cursor-pointer", HasText: "Locked"},
		HostUnlocked:   browser.Selector{CSS: "div.cursor-pointer", HasText: "Unlocked"},
	}
}

// Timing holds the fixed waits of a join attempt and the check period.
type Timing struct {
	SettleDelay   time.Duration
	ClickDelay    time.Duration
	ConfirmDelay  time.Duration
	RenderDelay   time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	CheckInterval time.Duration
}

// Options configures a Machine.
type Options struct {
	URLTemplate  string
	RoomIDs      []string
	Timing       Timing
	Selectors    Selectors
	UnlockAsHost bool

	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
}

// OptionsFromConfig maps the meeting and presence sections to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URLTemplate: cfg.Meeting.URLTemplate,
		RoomIDs:     cfg.Meeting.RoomIDs,
		Timing: Timing{
			SettleDelay:   cfg.Presence.SettleDelay,
			ClickDelay:    cfg.Presence.ClickDelay,
			ConfirmDelay:  cfg.Presence.ConfirmDelay,
			RenderDelay:   cfg.Presence.RenderDelay,
			RetryDelay:    cfg.Presence.RetryDelay,
			MaxRetryDelay: cfg.Presence.MaxRetryDelay,
			CheckInterval: cfg.Presence.CheckInterval,
		},
		Selectors:    DefaultSelectors(),
		UnlockAsHost: cfg.Presence.UnlockAsHost,
	}
}

// Machine is the join/monitor/rejoin state machine.
type Machine struct {
	session   browser.Session
	sink      notify.Sink
	scheduler schedule.Scheduler
	logger    *logging.Logger
	opts      Options
	rooms     *RoomSelector

	mu         sync.Mutex
	state      State
	checkTimer schedule.Timer
	failures   int
	joinedRoom string
}

// NewMachine validates opts and returns a Machine in StateSearching.
func NewMachine(session browser.Session, sink notify.Sink, scheduler schedule.Scheduler, opts Options, logger *logging.Logger) (*Machine, error) {
	rooms, err := NewRoomSelector(opts.RoomIDs)
	if err != nil {
		return nil, err
	}
	if opts.Timing.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if logger == nil {
		logger = logging.MustLogger("presence")
	}

	return &Machine{
		session:   session,
		sink:      sink,
		scheduler: scheduler,
		logger:    logger,
		opts:      opts,
		rooms:     rooms,
		state:     StateSearching,
	}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cursor returns the room cursor index.
func (m *Machine) Cursor() int {
	return m.rooms.Cursor()
}

// JoinedRoom returns the room of the last confirmed join.
func (m *Machine) JoinedRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinedRoom
}

// Start runs the join loop to completion, then arms the presence check.
// It returns only when joined or when ctx ends.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.JoinLoop(ctx); err != nil {
		return err
	}
	m.armCheck()
	return nil
}

// Stop cancels the presence check timer.
func (m *Machine) Stop() {
	m.cancelCheck()
}

// JoinLoop attempts rooms from the current cursor until one confirms
// membership. Failed attempts advance the cursor and wait the retry delay.
func (m *Machine) JoinLoop(ctx context.Context) error {
	m.logger.Infof("starting join loop at room index %d", m.rooms.Cursor())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		roomID := m.rooms.Current()
		outcome, err := m.attempt(ctx, roomID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Errorf("attempt on room %s failed: %v", roomID, err)
			m.notify(ctx, notify.JoinError(roomID, err))
			if err := m.retry(ctx); err != nil {
				return err
			}
			continue
		}

		switch outcome {
		case OutcomeJoined:
			m.mu.Lock()
			m.failures = 0
			m.joinedRoom = roomID
			m.mu.Unlock()
			m.transition(StateJoined)
			m.logger.Infof("joined room %s", roomID)
			m.notify(ctx, notify.Joined(roomID))
			if m.opts.UnlockAsHost {
				m.unlockAsHost()
			}
			return nil

		case OutcomeHostNotStarted:
			m.logger.Warnf("host has not started room %s", roomID)
			m.notify(ctx, notify.HostNotStarted(roomID))

		default:
			m.logger.Warnf("could not confirm join for room %s", roomID)
			m.notify(ctx, notify.JoinUnconfirmed(roomID))
		}

		if err := m.retry(ctx); err != nil {
			return err
		}
	}
}

// attempt performs one navigate/join/classify cycle for roomID.
func (m *Machine) attempt(ctx context.Context, roomID string) (Outcome, error) {
	t := m.opts.Timing
	sel := m.opts.Selectors

	m.logger.Infof("trying room %s", roomID)
	url := BuildURL(m.opts.URLTemplate, config.RoomIDPlaceholder, roomID)
	if err := m.session.Navigate(ctx, url); err != nil {
		return OutcomeUnconfirmed, err
	}
	if err := m.session.Wait(ctx, t.SettleDelay); err != nil {
		return OutcomeUnconfirmed, err
	}

	join := m.session.Locate(sel.JoinButton)
	visible, err := join.IsVisible()
	if err != nil {
		return OutcomeUnconfirmed, err
	}
	if visible {
		m.logger.Debugf("join button found, clicking")
		if err := join.Click(); err != nil {
			return OutcomeUnconfirmed, err
		}
		if err := m.session.Wait(ctx, t.ClickDelay); err != nil {
			return OutcomeUnconfirmed, err
		}
	}

	if err := m.session.Wait(ctx, t.ConfirmDelay); err != nil {
		return OutcomeUnconfirmed, err
	}
	if err := m.session.Wait(ctx, t.RenderDelay); err != nil {
		return OutcomeUnconfirmed, err
	}

	probe, err := m.probe()
	if err != nil {
		return OutcomeUnconfirmed, err
	}
	return Classify(probe), nil
}

func (m *Machine) probe() (Probe, error) {
	sel := m.opts.Selectors
	var p Probe
	var err error

	if p.HostNotStarted, err = m.session.Locate(sel.HostNotStarted).IsVisible(); err != nil {
		return p, err
	}
	if p.InMeeting, err = m.session.Locate(sel.InMeeting).IsVisible(); err != nil {
		return p, err
	}
	if p.InSpace, err = m.session.Locate(sel.InSpace).IsVisible(); err != nil {
		return p, err
	}
	return p, nil
}

// retry advances the cursor, stays in SEARCHING and waits before the next attempt.
func (m *Machine) retry(ctx context.Context) error {
	next := m.rooms.Advance()
	m.transition(StateSearching)

	m.mu.Lock()
	m.failures++
	delay := backoff(m.opts.Timing.RetryDelay, m.opts.Timing.MaxRetryDelay, m.failures)
	m.mu.Unlock()

	m.logger.Debugf("next room %s in %v", next, delay)
	return m.session.Wait(ctx, delay)
}

// backoff returns the wait after the n-th consecutive failure. With max at or
// below base the delay is fixed.
func backoff(base, max time.Duration, n int) time.Duration {
	if max <= base || n <= 1 {
		return base
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	return d
}

// CheckPresence is the body of the recurring check. A visible indicator
// keeps the machine JOINED; anything else triggers a rejoin.
func (m *Machine) CheckPresence(ctx context.Context) {
	m.logger.Debugf("checking presence")

	if !m.session.HasPage() {
		m.logger.Warnf("browser page missing, rejoining")
		m.lose(ctx, notify.PageMissing())
		return
	}

	visible, err := m.session.Locate(m.opts.Selectors.Presence).IsVisible()
	switch {
	case err != nil:
		m.logger.Errorf("presence check failed: %v", err)
		m.lose(ctx, notify.CheckError(err))
	case !visible:
		m.logger.Warnf("left the meeting, rejoining")
		m.lose(ctx, notify.LeftMeeting())
	default:
		m.logger.Infof("still in the meeting")
		m.transition(StateJoined)
		m.notify(ctx, notify.StillPresent())
	}
}

func (m *Machine) lose(ctx context.Context, reason string) {
	m.transition(StateLost)
	m.notify(ctx, reason)
	if err := m.rejoin(ctx); err != nil {
		m.logger.Warnf("rejoin interrupted: %v", err)
	}
}

// rejoin cancels the running check, reruns the join loop from the current
// cursor and re-arms the check.
func (m *Machine) rejoin(ctx context.Context) error {
	m.transition(StateRejoining)
	m.cancelCheck()
	m.notify(ctx, notify.Rejoining())

	m.transition(StateSearching)
	if err := m.JoinLoop(ctx); err != nil {
		return err
	}
	m.armCheck()
	return nil
}

func (m *Machine) armCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkTimer != nil {
		m.checkTimer.Stop()
	}
	m.checkTimer = m.scheduler.Every(m.opts.Timing.CheckInterval, m.CheckPresence)
	m.logger.Infof("presence check armed every %v", m.opts.Timing.CheckInterval)
}

func (m *Machine) cancelCheck() {
	m.mu.Lock()
	timer := m.checkTimer
	m.checkTimer = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// unlockAsHost opens a locked room when the participant owns it. Best effort.
func (m *Machine) unlockAsHost() {
	sel := m.opts.Selectors
	locked := m.session.Locate(sel.HostLocked)
	visible, err := locked.IsVisible()
	if err != nil || !visible {
		m.logger.Debugf("not host of this room")
		return
	}

	m.logger.Infof("room is locked and we are host, unlocking")
	if err := locked.Click(); err != nil {
		m.logger.Warnf("failed to unlock room: %v", err)
		return
	}
	if unlocked, err := m.session.Locate(sel.HostUnlocked).IsVisible(); err == nil && unlocked {
		m.logger.Infof("room unlocked")
	}
}

func (m *Machine) transition(to State) {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		panic(fmt.Sprintf("presence: illegal transition %s -> %s", from, to))
	}
	m.state = to
	hook := m.opts.OnTransition
	m.mu.Unlock()

	if hook != nil && from != to {
		hook(from, to)
	}
}

func (m *Machine) notify(ctx context.Context, message string) {
	if m.sink == nil {
		return
	}
	m.sink.Send(ctx, message)
}

// IsContextError reports whether err ended a loop because ctx was done.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
