// Package trigger is the registry of per-user trigger conditions: the
// watch list the evaluation engine runs against. The registry owns the
// trigger lifecycle state machine; evaluation itself lives in
// trigger/engine.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"heirloom/internal/audit"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// AuditEmitter records registry mutations.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ResolutionHook is notified when a trigger stops being evaluable:
// deletion, or a transition into a terminal status. Hooks let the
// engine tear down per-trigger state (pending wait timers) without the
// registry importing the engine.
type ResolutionHook func(triggerID id.TriggerID)

// Service owns trigger CRUD and status transitions.
type Service struct {
	store   Store
	auditor AuditEmitter
	logger  *slog.Logger

	mu    sync.Mutex
	hooks []ResolutionHook
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAudit attaches an audit emitter for registry mutations.
func WithAudit(a AuditEmitter) Option {
	return func(s *Service) { s.auditor = a }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnResolution registers a hook invoked after a trigger is deleted or
// transitions into a terminal status.
func (s *Service) OnResolution(hook ResolutionHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Service) notifyResolved(triggerID id.TriggerID) {
	s.mu.Lock()
	hooks := append([]ResolutionHook{}, s.hooks...)
	s.mu.Unlock()
	for _, hook := range hooks {
		hook(triggerID)
	}
}

// CreateParams carries the caller-supplied fields for a new trigger.
type CreateParams struct {
	UserID   id.UserID
	Type     EvidenceType
	Priority int
	Rules    []Rule
	Metadata map[string]string
}

// Create registers a new trigger condition in the pending state.
func (s *Service) Create(ctx context.Context, params CreateParams) (TriggerCondition, error) {
	if params.UserID.IsNil() {
		return TriggerCondition{}, dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if !validTypes[params.Type] {
		return TriggerCondition{}, dErrors.New(dErrors.CodeValidation, "unknown evidence type: "+string(params.Type))
	}

	now := requestcontext.Now(ctx)
	trigger := TriggerCondition{
		ID:        id.NewTriggerID(),
		UserID:    params.UserID,
		Type:      params.Type,
		Status:    StatusPending,
		Priority:  params.Priority,
		Rules:     params.Rules,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, trigger); err != nil {
		return TriggerCondition{}, dErrors.Wrap(err, dErrors.CodeInternal, "create trigger")
	}

	s.logger.InfoContext(ctx, "trigger created",
		"trigger_id", trigger.ID.String(),
		"user_id", trigger.UserID.String(),
		"evidence_type", string(trigger.Type),
	)
	s.emit(ctx, trigger, audit.EventTriggerCreated, "created", "")
	return trigger, nil
}

// Get returns one trigger by ID.
func (s *Service) Get(ctx context.Context, triggerID id.TriggerID) (TriggerCondition, error) {
	trigger, err := s.store.Get(ctx, triggerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return TriggerCondition{}, dErrors.New(dErrors.CodeNotFound, "trigger not found")
	}
	if err != nil {
		return TriggerCondition{}, dErrors.Wrap(err, dErrors.CodeInternal, "get trigger")
	}
	return trigger, nil
}

// ListByUser returns every trigger registered for a user.
func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]TriggerCondition, error) {
	triggers, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list triggers")
	}
	return triggers, nil
}

// UpdateParams carries the mutable configuration of a trigger.
// Nil slices/maps leave the stored value untouched.
type UpdateParams struct {
	Priority *int
	Rules    []Rule
	Metadata map[string]string
}

// Update mutates a trigger's configuration without touching its status.
func (s *Service) Update(ctx context.Context, triggerID id.TriggerID, params UpdateParams) (TriggerCondition, error) {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return TriggerCondition{}, err
	}

	if params.Priority != nil {
		trigger.Priority = *params.Priority
	}
	if params.Rules != nil {
		trigger.Rules = params.Rules
	}
	if params.Metadata != nil {
		trigger.Metadata = params.Metadata
	}
	trigger.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, trigger); err != nil {
		return TriggerCondition{}, dErrors.Wrap(err, dErrors.CodeInternal, "update trigger")
	}
	s.emit(ctx, trigger, audit.EventTriggerUpdated, "updated", "")
	return trigger, nil
}

// UpdateStatus transitions the trigger through its lifecycle. Illegal
// transitions are rejected with an invariant violation.
func (s *Service) UpdateStatus(ctx context.Context, triggerID id.TriggerID, next Status) (TriggerCondition, error) {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return TriggerCondition{}, err
	}

	if trigger.Status == next {
		return trigger, nil
	}
	if !trigger.Status.CanTransition(next) {
		return TriggerCondition{}, dErrors.New(dErrors.CodeInvariantViolation,
			"illegal status transition from "+string(trigger.Status)+" to "+string(next))
	}

	prev := trigger.Status
	trigger.Status = next
	trigger.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, trigger); err != nil {
		return TriggerCondition{}, dErrors.Wrap(err, dErrors.CodeInternal, "update trigger status")
	}

	s.logger.InfoContext(ctx, "trigger status changed",
		"trigger_id", trigger.ID.String(),
		"from", string(prev),
		"to", string(next),
	)
	s.emit(ctx, trigger, audit.EventTriggerStatusChanged, string(next), "from "+string(prev))
	if next.IsTerminal() {
		s.notifyResolved(trigger.ID)
	}
	return trigger, nil
}

// Escalate bumps the trigger's priority by one without changing status.
func (s *Service) Escalate(ctx context.Context, triggerID id.TriggerID) (TriggerCondition, error) {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return TriggerCondition{}, err
	}

	trigger.Priority++
	trigger.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, trigger); err != nil {
		return TriggerCondition{}, dErrors.Wrap(err, dErrors.CodeInternal, "escalate trigger")
	}
	s.emit(ctx, trigger, audit.EventTriggerEscalated, "escalated", "")
	return trigger, nil
}

// Delete removes a trigger. Deletion is an explicit user action only;
// the engine never deletes triggers.
func (s *Service) Delete(ctx context.Context, triggerID id.TriggerID) error {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, triggerID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "trigger not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete trigger")
	}
	s.emit(ctx, trigger, audit.EventTriggerDeleted, "deleted", "")
	s.notifyResolved(triggerID)
	return nil
}

func (s *Service) emit(ctx context.Context, trigger TriggerCondition, action audit.AuditAction, result, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    trigger.UserID,
		Subject:   trigger.ID.String(),
		Action:    string(action),
		Result:    result,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}
