// Package verification tracks time-boxed approval requests raised by
// trigger rules. A request is a soft gate: it expires lazily when next
// read after its deadline, there is no active expiry sweep.
package verification

import (
	"time"

	"github.com/google/uuid"

	id "heirloom/pkg/domain"
)

// Status is the verification lifecycle state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusExpired              Status = "expired"
	StatusRequiresManualReview Status = "requires_manual_review"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusExpired},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusExpired, StatusRequiresManualReview},
}

// CanTransition reports whether moving from s to next is legal.
// Completed, failed, expired, and requires_manual_review are terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the verification has reached its end state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusRequiresManualReview:
		return true
	}
	return false
}

// Request is one approval demand tied to a trigger. TokenHash is the
// bcrypt hash of the one-time approval token delivered to the user;
// completing the request requires presenting the plaintext token.
type Request struct {
	ID        uuid.UUID
	UserID    id.UserID
	TriggerID id.TriggerID
	Status    Status
	Reason    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// expiredAt reports whether the request passed its deadline while still open.
func (r Request) expiredAt(now time.Time) bool {
	return !r.Status.IsTerminal() && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
