package audit

import (
	"context"
	"sync"

	id "heirloom/pkg/domain"
)

// InMemoryStore keeps the audit chain in process memory. The single
// mutex doubles as the append serializer the chain requires.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := ""
	if len(s.entries) > 0 {
		prevHash = s.entries[len(s.entries)-1].Hash
	}
	s.entries = append(s.entries, Entry{
		Event:    event,
		PrevHash: prevHash,
		Hash:     ComputeHash(event, prevHash),
	})
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, entry := range s.entries {
		if entry.Event.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...), nil
}
