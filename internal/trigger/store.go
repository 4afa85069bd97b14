package trigger

import (
	"context"

	id "heirloom/pkg/domain"
)

// Store persists trigger conditions.
//
// Implementations return sentinel.ErrNotFound for missing triggers and
// must hand back copies so callers cannot mutate stored state.
type Store interface {
	Create(ctx context.Context, trigger TriggerCondition) error
	Get(ctx context.Context, triggerID id.TriggerID) (TriggerCondition, error)
	Update(ctx context.Context, trigger TriggerCondition) error
	Delete(ctx context.Context, triggerID id.TriggerID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]TriggerCondition, error)
}
