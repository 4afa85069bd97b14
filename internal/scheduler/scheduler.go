// Package scheduler runs standing trigger evaluations on each user's
// chosen cadence. Realtime users are evaluated inline by their mutation
// paths; everyone else is swept by a coarse ticker.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"heirloom/internal/audit"
	"heirloom/internal/scheduler/metrics"
	"heirloom/internal/trigger/engine"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// Evaluator runs a full evaluation pass for one user. Implemented by the
// trigger engine.
type Evaluator interface {
	EvaluateUserTriggers(ctx context.Context, userID id.UserID) ([]engine.EvaluationResult, error)
}

// AuditEmitter records schedule registrations.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Scheduler owns the schedule registry and the sweep loop.
type Scheduler struct {
	store     Store
	evaluator Evaluator
	auditor   AuditEmitter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	resolution time.Duration
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithResolution overrides how often the sweep loop wakes up.
func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resolution = d
		}
	}
}

// WithAudit attaches an audit emitter.
func WithAudit(a AuditEmitter) Option {
	return func(s *Scheduler) { s.auditor = a }
}

// WithMetrics attaches scheduler metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(store Store, evaluator Evaluator, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		evaluator:  evaluator,
		logger:     slog.Default(),
		resolution: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams carries the fields for a new or updated schedule.
type RegisterParams struct {
	UserID    id.UserID
	Frequency Frequency
	Enabled   *bool
}

// Register creates or replaces a user's evaluation schedule. The first
// run is one full interval out; realtime schedules never get a NextRun.
func (s *Scheduler) Register(ctx context.Context, params RegisterParams) (EvaluationSchedule, error) {
	if params.UserID.IsNil() {
		return EvaluationSchedule{}, dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if !params.Frequency.Valid() {
		return EvaluationSchedule{}, dErrors.New(dErrors.CodeValidation, "unknown frequency: "+string(params.Frequency))
	}

	now := requestcontext.Now(ctx)
	schedule := EvaluationSchedule{
		UserID:    params.UserID,
		Frequency: params.Frequency,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if params.Enabled != nil {
		schedule.Enabled = *params.Enabled
	}
	if interval := params.Frequency.Interval(); interval > 0 {
		schedule.NextRun = now.Add(interval)
	}

	if existing, err := s.store.Get(ctx, params.UserID); err == nil {
		schedule.CreatedAt = existing.CreatedAt
		schedule.LastRun = existing.LastRun
	}
	if err := s.store.Upsert(ctx, schedule); err != nil {
		return EvaluationSchedule{}, dErrors.Wrap(err, dErrors.CodeInternal, "register schedule")
	}

	s.emit(ctx, schedule)
	return schedule, nil
}

// Get returns one user's schedule.
func (s *Scheduler) Get(ctx context.Context, userID id.UserID) (EvaluationSchedule, error) {
	schedule, err := s.store.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return EvaluationSchedule{}, dErrors.New(dErrors.CodeNotFound, "schedule not found")
	}
	if err != nil {
		return EvaluationSchedule{}, dErrors.Wrap(err, dErrors.CodeInternal, "get schedule")
	}
	return schedule, nil
}

// Run sweeps on the configured resolution until the context ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scheduler started", "resolution", s.resolution)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs every due schedule once. A failing user is logged and
// skipped so one broken evaluation cannot stall the rest.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	schedules, err := s.store.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "schedule list failed", "error", err)
		return
	}
	s.metrics.SetScheduleCount(len(schedules))

	for _, schedule := range schedules {
		if !schedule.Due(now) {
			continue
		}
		s.runOne(ctx, schedule, now)
	}
	s.metrics.ObserveSweep(time.Since(start))
}

func (s *Scheduler) runOne(ctx context.Context, schedule EvaluationSchedule, now time.Time) {
	results, err := s.evaluator.EvaluateUserTriggers(ctx, schedule.UserID)
	if err != nil {
		s.metrics.IncrementRun("error")
		s.logger.ErrorContext(ctx, "scheduled evaluation failed",
			"user_id", schedule.UserID.String(),
			"error", err,
		)
	} else {
		s.metrics.IncrementRun("ok")
		s.logger.DebugContext(ctx, "scheduled evaluation complete",
			"user_id", schedule.UserID.String(),
			"results", len(results),
		)
	}

	// Advance NextRun even on failure; retrying a broken user every
	// sweep would just repeat the error at ticker frequency.
	schedule.LastRun = now
	schedule.NextRun = now.Add(schedule.Frequency.Interval())
	schedule.UpdatedAt = now
	if err := s.store.Upsert(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "schedule update failed",
			"user_id", schedule.UserID.String(),
			"error", err,
		)
	}
}

func (s *Scheduler) emit(ctx context.Context, schedule EvaluationSchedule) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    schedule.UserID,
		Subject:   schedule.UserID.String(),
		Action:    string(audit.EventScheduleRegistered),
		Result:    string(schedule.Frequency),
		RequestID: requestcontext.RequestID(ctx),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
