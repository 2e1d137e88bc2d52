// Package schedule provides the timer primitives the long-running workflows
// are driven by: run every N, and run after D.
//
// Each timer runs its callbacks sequentially on its own goroutine, so two
// callbacks of the same timer never overlap. Callbacks receive the
// scheduler's root context, not a per-timer one: a callback may stop its own
// timer and keep working with the context it was given.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

// Func is a scheduled callback.
type Func func(ctx context.Context)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents future runs. A run already in progress completes.
	// Safe to call more than once and from inside the callback.
	Stop()
}

// Scheduler arms timers.
type Scheduler interface {
	Every(interval time.Duration, fn Func) Timer
	After(delay time.Duration, fn Func) Timer
}

// Service is the production Scheduler. Cancelling its context stops every
// timer it armed.
type Service struct {
	ctx    context.Context
	logger *logging.Logger
	wg     sync.WaitGroup
}

// New creates a Service bound to ctx.
func New(ctx context.Context, logger *logging.Logger) *Service {
	return &Service{ctx: ctx, logger: logger}
}

type timer struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func newTimer() *timer {
	return &timer{stop: make(chan struct{})}
}

func (t *timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Every runs fn every interval until the timer is stopped or the service
// context ends. The first run happens one interval after arming.
func (s *Service) Every(interval time.Duration, fn Func) Timer {
	t := newTimer()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
			}

			// A stop that raced with the tick wins
			select {
			case <-t.stop:
				return
			default:
			}

			s.run(fn)
		}
	}()
	return t
}

// After runs fn once after delay unless stopped first.
func (s *Service) After(delay time.Duration, fn Func) Timer {
	t := newTimer()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wait := time.NewTimer(delay)
		defer wait.Stop()

		select {
		case <-s.ctx.Done():
			return
		case <-t.stop:
			return
		case <-wait.C:
		}

		s.run(fn)
	}()
	return t
}

// Wait blocks until every timer goroutine has exited. Timers exit when
// stopped or when the service context ends.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(fn Func) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Errorf("scheduled callback panicked: %v", r)
		}
	}()
	fn(s.ctx)
}
