package audit

import (
	"context"
	"errors"
	"time"

	id "heirloom/pkg/domain"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends an event to the chain. Risk defaults from the action
// taxonomy when the caller leaves it unset.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Risk == "" {
		event.Risk = AuditAction(event.Action).Risk()
	}
	return p.store.Append(ctx, event)
}

// AsyncPublisher queues events for the background worker instead of
// appending inline. Emit never blocks the caller's request path; when
// the buffer is full the event is dropped with an error the caller logs.
type AsyncPublisher struct {
	inbox chan<- Event
}

func NewAsyncPublisher(inbox chan<- Event) *AsyncPublisher {
	return &AsyncPublisher{inbox: inbox}
}

// Emit enqueues an event, applying the same defaults as Publisher.Emit.
func (p *AsyncPublisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Risk == "" {
		event.Risk = AuditAction(event.Action).Risk()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return errors.New("audit buffer full, event dropped")
	}
}

// List returns the chain entries for a user.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]Entry, error) {
	return p.store.ListByUser(ctx, userID)
}

// Verify checks the whole chain and returns the index of the first
// broken link, or -1 when intact.
func (p *Publisher) Verify(ctx context.Context) (int, error) {
	entries, err := p.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return VerifyChain(entries), nil
}
