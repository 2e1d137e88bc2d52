package notify

import (
	"context"
	"sync"

	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

// Async delivers messages to an inner sink on a background goroutine, in
// order. Send never waits for delivery; when the queue is full the message
// is dropped and logged.
type Async struct {
	inner  Sink
	queue  chan string
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. Call Close to drain and stop it.
func NewAsync(inner Sink, size int, logger *logging.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		inner:  inner,
		queue:  make(chan string, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for msg := range a.queue {
		// Delivery outlives the caller's context; the inner sink has its own timeout
		a.inner.Send(context.Background(), msg)
	}
}

// Send enqueues message.
func (a *Async) Send(_ context.Context, message string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}

	select {
	case a.queue <- message:
	default:
		if a.logger != nil {
			a.logger.Warnf("notification queue full, dropping: %s", message)
		}
	}
}

// Close stops accepting messages and waits until queued ones are delivered
// or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
