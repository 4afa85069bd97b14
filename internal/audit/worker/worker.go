// Package worker drains buffered audit events into the store and an
// optional forwarder (Kafka). Keeps background processing testable
// without wiring broker implementations into services.
package worker

import (
	"context"
	"log/slog"

	"heirloom/internal/audit"
)

// Forwarder ships an appended event to an external sink. Forwarding is
// fire-and-forget relative to the store append.
type Forwarder interface {
	Forward(ctx context.Context, event audit.Event) error
}

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store     audit.Store
	inbox     <-chan audit.Event
	forwarder Forwarder
	logger    *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

// WithForwarder attaches an external sink for appended events.
func WithForwarder(f Forwarder) Option {
	return func(w *Worker) { w.forwarder = f }
}

// WithLogger sets a logger for forwarding failures.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			if w.forwarder != nil {
				if err := w.forwarder.Forward(ctx, event); err != nil && w.logger != nil {
					w.logger.WarnContext(ctx, "audit forward failed",
						"action", event.Action,
						"error", err,
					)
				}
			}
		}
	}
}
