package trigger

import (
	"context"
	"sort"
	"sync"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore keeps trigger conditions in a map. Safe for concurrent
// use; suitable for tests and single-node deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	triggers map[id.TriggerID]TriggerCondition
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{triggers: make(map[id.TriggerID]TriggerCondition)}
}

func (s *InMemoryStore) Create(_ context.Context, trigger TriggerCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.triggers[trigger.ID]; exists {
		return sentinel.ErrConflict
	}
	s.triggers[trigger.ID] = cloneTrigger(trigger)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, triggerID id.TriggerID) (TriggerCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trigger, ok := s.triggers[triggerID]
	if !ok {
		return TriggerCondition{}, sentinel.ErrNotFound
	}
	return cloneTrigger(trigger), nil
}

func (s *InMemoryStore) Update(_ context.Context, trigger TriggerCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[trigger.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.triggers[trigger.ID] = cloneTrigger(trigger)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, triggerID id.TriggerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[triggerID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.triggers, triggerID)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]TriggerCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TriggerCondition
	for _, trigger := range s.triggers {
		if trigger.UserID == userID {
			out = append(out, cloneTrigger(trigger))
		}
	}
	// Stable ordering for callers and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneTrigger(t TriggerCondition) TriggerCondition {
	out := t
	out.Rules = append([]Rule(nil), t.Rules...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
