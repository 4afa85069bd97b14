package handler

import (
	"time"

	"heirloom/internal/trigger"
)

// TriggerResponse is the HTTP representation of a trigger condition.
type TriggerResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Priority  int               `json:"priority"`
	Rules     []trigger.Rule    `json:"rules"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FromTrigger converts a domain trigger to its HTTP response.
func FromTrigger(t trigger.TriggerCondition) TriggerResponse {
	return TriggerResponse{
		ID:        t.ID.String(),
		UserID:    t.UserID.String(),
		Type:      string(t.Type),
		Status:    string(t.Status),
		Priority:  t.Priority,
		Rules:     t.Rules,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ListResponse wraps a collection of triggers.
type ListResponse struct {
	Triggers []TriggerResponse `json:"triggers"`
}

// FromTriggers converts a slice of domain triggers.
func FromTriggers(triggers []trigger.TriggerCondition) ListResponse {
	out := ListResponse{Triggers: make([]TriggerResponse, len(triggers))}
	for i, t := range triggers {
		out.Triggers[i] = FromTrigger(t)
	}
	return out
}
