package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heirloom/internal/audit"
	"heirloom/internal/trigger/engine"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

// fakeEvaluator records which users were evaluated and can fail for
// selected users.
type fakeEvaluator struct {
	evaluated []id.UserID
	failFor   map[id.UserID]error
}

func (f *fakeEvaluator) EvaluateUserTriggers(_ context.Context, userID id.UserID) ([]engine.EvaluationResult, error) {
	f.evaluated = append(f.evaluated, userID)
	if err := f.failFor[userID]; err != nil {
		return nil, err
	}
	return []engine.EvaluationResult{{TriggerID: id.NewTriggerID()}}, nil
}

// =============================================================================
// Scheduler Test Suite
// =============================================================================

type SchedulerSuite struct {
	suite.Suite
	store     *InMemoryStore
	evaluator *fakeEvaluator
	sink      *audit.InMemoryStore
	scheduler *Scheduler
	ctx       context.Context
	now       time.Time
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.evaluator = &fakeEvaluator{failFor: map[id.UserID]error{}}
	s.sink = audit.NewInMemoryStore()
	s.scheduler = New(s.store, s.evaluator, WithAudit(audit.NewPublisher(s.sink)))
	s.now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// at returns a context whose clock reads the given offset from the base
// instant. Sweeps are driven through it instead of a real ticker.
func (s *SchedulerSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *SchedulerSuite) register(frequency Frequency) EvaluationSchedule {
	schedule, err := s.scheduler.Register(s.ctx, RegisterParams{
		UserID:    id.NewUserID(),
		Frequency: frequency,
	})
	s.Require().NoError(err)
	return schedule
}

func (s *SchedulerSuite) TestRegister() {
	s.Run("hourly schedule gets a next run one interval out", func() {
		schedule := s.register(FrequencyHourly)
		s.True(schedule.Enabled)
		s.Equal(s.now.Add(time.Hour), schedule.NextRun)
	})

	s.Run("realtime schedule has no next run", func() {
		schedule := s.register(FrequencyRealtime)
		s.True(schedule.NextRun.IsZero())
	})

	s.Run("nil user is rejected", func() {
		_, err := s.scheduler.Register(s.ctx, RegisterParams{Frequency: FrequencyDaily})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown frequency is rejected", func() {
		_, err := s.scheduler.Register(s.ctx, RegisterParams{UserID: id.NewUserID(), Frequency: "fortnightly"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("registration is audited", func() {
		schedule := s.register(FrequencyDaily)
		entries, err := s.sink.ListByUser(s.ctx, schedule.UserID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(string(audit.EventScheduleRegistered), entries[0].Event.Action)
		s.Equal(string(FrequencyDaily), entries[0].Event.Result)
	})

	s.Run("re-registration keeps creation time and last run", func() {
		schedule := s.register(FrequencyHourly)
		s.scheduler.Sweep(s.at(61 * time.Minute))

		later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
		updated, err := s.scheduler.Register(later, RegisterParams{
			UserID:    schedule.UserID,
			Frequency: FrequencyDaily,
		})
		s.Require().NoError(err)
		s.Equal(schedule.CreatedAt, updated.CreatedAt)
		s.False(updated.LastRun.IsZero())
		s.Equal(FrequencyDaily, updated.Frequency)
	})
}

func (s *SchedulerSuite) TestSweep() {
	s.Run("due schedules run and advance", func() {
		schedule := s.register(FrequencyHourly)

		s.scheduler.Sweep(s.at(30 * time.Minute))
		s.Empty(s.evaluator.evaluated, "not yet due")

		s.scheduler.Sweep(s.at(time.Hour))
		s.Equal([]id.UserID{schedule.UserID}, s.evaluator.evaluated)

		after, err := s.scheduler.Get(s.ctx, schedule.UserID)
		s.Require().NoError(err)
		s.Equal(s.now.Add(2*time.Hour), after.NextRun)
		s.Equal(s.now.Add(time.Hour), after.LastRun)

		s.scheduler.Sweep(s.at(time.Hour + time.Minute))
		s.Len(s.evaluator.evaluated, 1, "does not run again before the next interval")
	})

	s.Run("realtime and disabled schedules are skipped", func() {
		s.register(FrequencyRealtime)
		disabled := false
		off, err := s.scheduler.Register(s.ctx, RegisterParams{
			UserID:    id.NewUserID(),
			Frequency: FrequencyMinute,
			Enabled:   &disabled,
		})
		s.Require().NoError(err)

		s.scheduler.Sweep(s.at(24 * time.Hour))
		s.NotContains(s.evaluator.evaluated, off.UserID)
	})

	// Justification: one user's broken evaluation must not stall the
	// sweep or pin their schedule at the same NextRun forever.
	s.Run("a failing user is isolated and still advanced", func() {
		broken := s.register(FrequencyHourly)
		healthy := s.register(FrequencyHourly)
		s.evaluator.failFor[broken.UserID] = errors.New("store offline")

		s.scheduler.Sweep(s.at(time.Hour))
		s.Contains(s.evaluator.evaluated, broken.UserID)
		s.Contains(s.evaluator.evaluated, healthy.UserID)

		after, err := s.scheduler.Get(s.ctx, broken.UserID)
		s.Require().NoError(err)
		s.Equal(s.now.Add(2*time.Hour), after.NextRun)
	})
}

func (s *SchedulerSuite) TestGetUnknownUser() {
	_, err := s.scheduler.Get(s.ctx, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestFrequency(t *testing.T) {
	tests := []struct {
		frequency Frequency
		interval  time.Duration
		valid     bool
	}{
		{FrequencyRealtime, 0, true},
		{FrequencyMinute, time.Minute, true},
		{FrequencyHourly, time.Hour, true},
		{FrequencyDaily, 24 * time.Hour, true},
		{FrequencyWeekly, 7 * 24 * time.Hour, true},
		{"fortnightly", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			if tt.frequency.Interval() != tt.interval {
				t.Errorf("Interval() = %v, want %v", tt.frequency.Interval(), tt.interval)
			}
			if tt.frequency.Valid() != tt.valid {
				t.Errorf("Valid() = %v, want %v", tt.frequency.Valid(), tt.valid)
			}
		})
	}
}
