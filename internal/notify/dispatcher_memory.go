package notify

import (
	"context"
	"sync"
	"time"

	id "heirloom/pkg/domain"
)

// InMemoryDispatcher records notifications instead of delivering them.
// Backs local wiring and lets tests assert on emitted notifications.
type InMemoryDispatcher struct {
	mu   sync.RWMutex
	sent []Notification
}

func NewInMemoryDispatcher() *InMemoryDispatcher {
	return &InMemoryDispatcher{}
}

func (d *InMemoryDispatcher) Notify(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	d.sent = append(d.sent, n)
	return nil
}

// Sent returns a copy of everything dispatched so far.
func (d *InMemoryDispatcher) Sent() []Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Notification{}, d.sent...)
}

// SentFor returns dispatches addressed to one user.
func (d *InMemoryDispatcher) SentFor(userID id.UserID) []Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Notification
	for _, n := range d.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}
