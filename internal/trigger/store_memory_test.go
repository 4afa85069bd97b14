package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) newTrigger(userID id.UserID, createdAt time.Time) TriggerCondition {
	return TriggerCondition{
		ID:        id.NewTriggerID(),
		UserID:    userID,
		Type:      TypeInactivity,
		Status:    StatusActive,
		Priority:  1,
		Metadata:  map[string]string{"origin": "test"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	s.Run("round-trips a trigger", func() {
		trigger := s.newTrigger(id.NewUserID(), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, trigger))

		found, err := s.store.Get(s.ctx, trigger.ID)
		s.Require().NoError(err)
		s.Equal(trigger.ID, found.ID)
		s.Equal(trigger.Metadata, found.Metadata)
	})

	s.Run("duplicate ID conflicts", func() {
		trigger := s.newTrigger(id.NewUserID(), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, trigger))
		s.Require().ErrorIs(s.store.Create(s.ctx, trigger), sentinel.ErrConflict)
	})

	s.Run("unknown ID yields ErrNotFound", func() {
		_, err := s.store.Get(s.ctx, id.NewTriggerID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestIsolation() {
	// Stored state must not alias caller-held maps.
	trigger := s.newTrigger(id.NewUserID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, trigger))

	trigger.Metadata["origin"] = "mutated"
	found, err := s.store.Get(s.ctx, trigger.ID)
	s.Require().NoError(err)
	s.Equal("test", found.Metadata["origin"])

	found.Metadata["origin"] = "mutated-again"
	again, err := s.store.Get(s.ctx, trigger.ID)
	s.Require().NoError(err)
	s.Equal("test", again.Metadata["origin"])
}

func (s *MemoryStoreSuite) TestListByUser() {
	userID := id.NewUserID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := s.newTrigger(userID, base.Add(time.Hour))
	first := s.newTrigger(userID, base)
	s.Require().NoError(s.store.Create(s.ctx, second))
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, s.newTrigger(id.NewUserID(), base)))

	triggers, err := s.store.ListByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(triggers, 2)
	s.Equal(first.ID, triggers[0].ID, "listing is ordered by creation time")
	s.Equal(second.ID, triggers[1].ID)
}

func (s *MemoryStoreSuite) TestUpdateAndDelete() {
	s.Run("update replaces stored state", func() {
		trigger := s.newTrigger(id.NewUserID(), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, trigger))

		trigger.Status = StatusTriggered
		s.Require().NoError(s.store.Update(s.ctx, trigger))

		found, err := s.store.Get(s.ctx, trigger.ID)
		s.Require().NoError(err)
		s.Equal(StatusTriggered, found.Status)
	})

	s.Run("update of missing trigger yields ErrNotFound", func() {
		s.Require().ErrorIs(s.store.Update(s.ctx, s.newTrigger(id.NewUserID(), time.Now())), sentinel.ErrNotFound)
	})

	s.Run("delete removes the trigger", func() {
		trigger := s.newTrigger(id.NewUserID(), time.Now())
		s.Require().NoError(s.store.Create(s.ctx, trigger))
		s.Require().NoError(s.store.Delete(s.ctx, trigger.ID))
		_, err := s.store.Get(s.ctx, trigger.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
