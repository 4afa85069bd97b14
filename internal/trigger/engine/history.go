package engine

import (
	"sync"
	"time"

	"heirloom/internal/trigger"
	id "heirloom/pkg/domain"
)

// historyLimit bounds the per-user evaluation history. Older results
// fall off; the audit log is the durable record.
const historyLimit = 100

// EvaluationResult is the stored outcome of evaluating one trigger.
type EvaluationResult struct {
	TriggerID       id.TriggerID         `json:"trigger_id"`
	Triggered       bool                 `json:"triggered"`
	Deferred        bool                 `json:"deferred,omitempty"`
	Confidence      float64              `json:"confidence"`
	Reason          string               `json:"reason"`
	RequiredActions []trigger.ActionType `json:"required_actions,omitempty"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// History keeps the most recent evaluation results per user.
type History struct {
	mu      sync.RWMutex
	results map[id.UserID][]EvaluationResult
}

func NewHistory() *History {
	return &History{results: make(map[id.UserID][]EvaluationResult)}
}

// Append records a result, evicting the oldest entry past the limit.
func (h *History) Append(userID id.UserID, result EvaluationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := append(h.results[userID], result)
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	h.results[userID] = entries
}

// ForUser returns a copy of the user's history, oldest first.
func (h *History) ForUser(userID id.UserID) []EvaluationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]EvaluationResult(nil), h.results[userID]...)
}
