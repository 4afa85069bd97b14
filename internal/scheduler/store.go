package scheduler

import (
	"context"
	"sort"
	"sync"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// Store persists evaluation schedules.
type Store interface {
	Upsert(ctx context.Context, schedule EvaluationSchedule) error
	Get(ctx context.Context, userID id.UserID) (EvaluationSchedule, error)
	List(ctx context.Context) ([]EvaluationSchedule, error)
	Delete(ctx context.Context, userID id.UserID) error
}

// InMemoryStore keeps schedules in a map. One schedule per user.
type InMemoryStore struct {
	mu        sync.RWMutex
	schedules map[id.UserID]EvaluationSchedule
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{schedules: make(map[id.UserID]EvaluationSchedule)}
}

func (s *InMemoryStore) Upsert(_ context.Context, schedule EvaluationSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.UserID] = schedule
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID) (EvaluationSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[userID]
	if !ok {
		return EvaluationSchedule{}, sentinel.ErrNotFound
	}
	return schedule, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]EvaluationSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EvaluationSchedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.schedules, userID)
	return nil
}
