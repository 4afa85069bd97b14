package verification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/secrets"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore keeps verification requests in process memory. Expiry is
// applied lazily whenever a request is read.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[uuid.UUID]Request)}
}

func (s *InMemoryStore) Create(_ context.Context, request Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = request
	return nil
}

// Get returns a request, lazily expiring it first if the deadline passed.
func (s *InMemoryStore) Get(_ context.Context, requestID uuid.UUID, now time.Time) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return Request{}, sentinel.ErrNotFound
	}
	if request.expiredAt(now) {
		request.Status = StatusExpired
		s.requests[requestID] = request
	}
	return request, nil
}

// Advance transitions a request through the state machine after lazy
// expiry. Illegal transitions return ErrInvalidState; an expired request
// returns ErrExpired. Completing a request requires the plaintext
// approval token matching the stored hash; other transitions ignore it.
func (s *InMemoryStore) Advance(_ context.Context, requestID uuid.UUID, next Status, token string, now time.Time) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return Request{}, sentinel.ErrNotFound
	}
	if request.expiredAt(now) {
		request.Status = StatusExpired
		s.requests[requestID] = request
		return Request{}, sentinel.ErrExpired
	}
	if !request.Status.CanTransition(next) {
		return Request{}, sentinel.ErrInvalidState
	}
	if next == StatusCompleted && request.TokenHash != "" {
		if err := secrets.Verify(token, request.TokenHash); err != nil {
			return Request{}, err
		}
	}
	request.Status = next
	s.requests[requestID] = request
	return request, nil
}

// ListByUser returns the user's requests ordered by creation time, with
// lazy expiry applied.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, now time.Time) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for key, request := range s.requests {
		if request.UserID != userID {
			continue
		}
		if request.expiredAt(now) {
			request.Status = StatusExpired
			s.requests[key] = request
		}
		out = append(out, request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
