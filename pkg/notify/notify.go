// Package notify delivers human-readable status lines to an operator channel.
//
// Delivery is best-effort: a Sink never returns an error to its caller and
// never blocks state progress for longer than its own timeout. Failures are
// logged and swallowed.
package notify

import (
	"context"
	"sync"

	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

// Sink receives status messages.
type Sink interface {
	Send(ctx context.Context, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, message string)

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, message string) {
	f(ctx, message)
}

// LogSink writes messages to a logger. Used when no remote channel is configured.
type LogSink struct {
	Logger *logging.Logger
}

// Send logs the message at info level.
func (s LogSink) Send(_ context.Context, message string) {
	if s.Logger != nil {
		s.Logger.Infof("notify: %s", message)
	}
}

// Recorder keeps every message in order. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
