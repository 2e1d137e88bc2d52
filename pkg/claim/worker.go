// Package claim runs the scheduled quest claim workflow.
//
// The Worker ticks on its own timer. Each tick resets the day-scoped state
// when the day of month changes, skips while the max-HP breaker is tripped,
// and claims once the claim interval has elapsed since the last claim call.
// It never touches the browser or the presence machine.
package claim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
	"github.com/roomkeeper/roomkeeper/pkg/schedule"
)

// Options configures a Worker.
type Options struct {
	TickInterval  time.Duration
	ClaimInterval time.Duration
}

// OptionsFromConfig maps the claim section to Options.
func OptionsFromConfig(cfg config.ClaimConfig) Options {
	return Options{TickInterval: cfg.TickInterval, ClaimInterval: cfg.ClaimInterval}
}

// Outcome describes what a tick did.
type Outcome int

const (
	// OutcomeNotDue means the claim interval has not elapsed.
	OutcomeNotDue Outcome = iota
	// OutcomeBreakerOpen means max HP was reached earlier today.
	OutcomeBreakerOpen
	// OutcomeAuthFailed means the handshake failed; no claim was made.
	OutcomeAuthFailed
	// OutcomeClaimed means a claim call was made, whatever its result.
	OutcomeClaimed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBreakerOpen:
		return "breaker-open"
	case OutcomeAuthFailed:
		return "auth-failed"
	case OutcomeClaimed:
		return "claimed"
	default:
		return "not-due"
	}
}

// Worker is the scheduled claim worker.
type Worker struct {
	provider identity.Provider
	sink     notify.Sink
	store    StateStore
	logger   *logging.Logger
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	state State
	timer schedule.Timer
}

// NewWorker validates opts. A nil store keeps state in memory.
func NewWorker(provider identity.Provider, sink notify.Sink, store StateStore, opts Options, logger *logging.Logger) (*Worker, error) {
	if provider == nil {
		return nil, fmt.Errorf("claim worker requires a provider")
	}
	if opts.TickInterval <= 0 || opts.ClaimInterval <= 0 {
		return nil, fmt.Errorf("tick and claim intervals must be positive")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = logging.MustLogger("claim")
	}

	return &Worker{
		provider: provider,
		sink:     sink,
		store:    store,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Restore loads persisted state. Call before Start.
func (w *Worker) Restore(ctx context.Context) error {
	s, err := w.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load claim state: %w", err)
	}

	w.mu.Lock()
	w.state = s
	w.mu.Unlock()

	if s.LastClaimTime != nil {
		w.logger.Infof("restored claim state: last claim %s, max HP today %v",
			s.LastClaimTime.Format(time.RFC3339), s.MaxHPReachedToday)
	}
	return nil
}

// State returns a copy of the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Start arms the recurring tick. The first tick fires after one interval.
func (w *Worker) Start(scheduler schedule.Scheduler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		return
	}
	w.timer = scheduler.Every(w.opts.TickInterval, func(ctx context.Context) { w.Tick(ctx) })
	w.logger.Infof("claim worker armed: tick %v, claim interval %v", w.opts.TickInterval, w.opts.ClaimInterval)
}

// Stop cancels the recurring tick.
func (w *Worker) Stop() {
	w.mu.Lock()
	timer := w.timer
	w.timer = nil
	w.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// Tick runs one scheduling step.
func (w *Worker) Tick(ctx context.Context) Outcome {
	now := w.now()

	w.mu.Lock()
	changed := w.rollover(now)
	breaker := w.state.MaxHPReachedToday
	due := w.state.LastClaimTime == nil || now.Sub(*w.state.LastClaimTime) >= w.opts.ClaimInterval
	w.mu.Unlock()

	if changed {
		w.persist(ctx)
	}
	if breaker {
		w.logger.Debugf("max HP reached today, skipping")
		return OutcomeBreakerOpen
	}
	if !due {
		return OutcomeNotDue
	}

	return w.claim(ctx)
}

// rollover resets the day-scoped fields when the day changed. A restored
// state whose last claim is on another calendar date is stale even when the
// day of month matches. Caller holds mu.
func (w *Worker) rollover(now time.Time) bool {
	day := now.Day()
	sameDay := w.state.LastCheckDay != 0 && w.state.LastCheckDay == day
	if last := w.state.LastClaimTime; last != nil && !sameDate(last.In(now.Location()), now) {
		sameDay = false
	}
	if sameDay {
		return false
	}
	w.logger.Infof("new day %d, resetting claim state", day)
	w.state = State{LastCheckDay: day}
	return true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (w *Worker) claim(ctx context.Context) Outcome {
	w.logger.Infof("starting auto claim")
	w.notify(ctx, notify.ClaimStarted())

	if err := w.provider.Authenticate(ctx); err != nil {
		w.logger.Errorf("authentication failed before claim: %v", err)
		w.notify(ctx, notify.ClaimAuthFailed())
		return OutcomeAuthFailed
	}

	res := w.provider.ClaimQuest(ctx)
	claimedAt := w.now()

	w.mu.Lock()
	w.state.LastClaimTime = &claimedAt
	if res.MaxHPReached {
		w.state.MaxHPReachedToday = true
	}
	w.mu.Unlock()

	w.persist(ctx)
	w.record(ctx, Attempt{At: claimedAt, Result: res})

	if res.Success {
		w.logger.Infof("quest claimed: %s (points %s)", res.Message, res.Points)
		w.notify(ctx, notify.QuestClaimed(res.Message, res.Points))
	} else {
		w.logger.Warnf("quest claim failed: %s", res.Message)
		w.notify(ctx, notify.QuestFailed(res.Message))
	}

	if res.MaxHPReached {
		w.logger.Infof("max HP reached, pausing claims until tomorrow")
		w.notify(ctx, notify.MaxHPReached())
	}
	return OutcomeClaimed
}

func (w *Worker) persist(ctx context.Context) {
	if err := w.store.Save(ctx, w.State()); err != nil {
		w.logger.Warnf("failed to save claim state: %v", err)
	}
}

func (w *Worker) record(ctx context.Context, a Attempt) {
	ledger, ok := w.store.(Ledger)
	if !ok {
		return
	}
	if err := ledger.Record(ctx, a); err != nil {
		w.logger.Warnf("failed to record claim attempt: %v", err)
	}
}

func (w *Worker) notify(ctx context.Context, message string) {
	if w.sink != nil {
		w.sink.Send(ctx, message)
	}
}
