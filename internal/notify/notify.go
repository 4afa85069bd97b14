// Package notify defines the outbound notification contract. Concrete
// channel delivery (email/SMS/push) lives outside this repo; the engine
// only emits dispatch requests.
package notify

import (
	"context"
	"time"

	id "heirloom/pkg/domain"
)

// Priority orders delivery urgency for the downstream dispatcher.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is one dispatch request.
type Notification struct {
	UserID    id.UserID
	Type      string
	Title     string
	Message   string
	Priority  Priority
	Payload   map[string]string
	CreatedAt time.Time
}

// Dispatcher receives dispatch requests. Implementations must not block
// on channel delivery; emission is fire-and-forget for callers.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}
