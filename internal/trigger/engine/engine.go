// Package engine evaluates a user's trigger conditions against live
// evidence, matches the declarative rule table, and executes the
// resulting actions.
//
// Side effects (grant, notify) are fire-and-forget relative to trigger
// status: a failed notification never rolls back a triggered status.
// Delivery is at-least-once, not transactional.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"heirloom/internal/audit"
	"heirloom/internal/evidence"
	"heirloom/internal/notify"
	"heirloom/internal/trigger"
	"heirloom/internal/trigger/engine/metrics"
	id "heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

// AuditEmitter records engine decisions.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine runs evaluation passes. Evaluation of different users runs in
// parallel; evaluation for the same user is serialized so a ticker pass
// and an on-demand call never interleave on the same triggers.
type Engine struct {
	triggers   *trigger.Service
	evaluators Evaluators
	overrides  evidence.OverridePort

	granter    AccessGranter
	dispatcher notify.Dispatcher
	approvals  ApprovalIssuer
	auditor    AuditEmitter

	history *History
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	userMu    sync.Mutex
	userLocks map[id.UserID]*sync.Mutex

	waitMu sync.Mutex
	waits  map[id.TriggerID]*time.Timer
}

// Option configures the Engine.
type Option func(*Engine)

// WithGranter attaches the emergency-access collaborator.
func WithGranter(g AccessGranter) Option {
	return func(e *Engine) { e.granter = g }
}

// WithDispatcher attaches the notification dispatcher.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithApprovals attaches the verification-request issuer.
func WithApprovals(a ApprovalIssuer) Option {
	return func(e *Engine) { e.approvals = a }
}

// WithAudit attaches an audit emitter.
func WithAudit(a AuditEmitter) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithMetrics attaches engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(triggers *trigger.Service, evaluators Evaluators, overrides evidence.OverridePort, opts ...Option) *Engine {
	e := &Engine{
		triggers:   triggers,
		evaluators: evaluators,
		overrides:  overrides,
		history:    NewHistory(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("heirloom/trigger-engine"),
		userLocks:  make(map[id.UserID]*sync.Mutex),
		waits:      make(map[id.TriggerID]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	// A trigger that resolves before its wait elapses must not wake a
	// stale re-evaluation.
	triggers.OnResolution(e.CancelWait)
	return e
}

// History returns a user's bounded evaluation history, oldest first.
func (e *Engine) History(userID id.UserID) []EvaluationResult {
	return e.history.ForUser(userID)
}

// TriggerEvaluation is the realtime entry point for evidence producers:
// new evidence arrived, evaluate now instead of waiting for the ticker.
func (e *Engine) TriggerEvaluation(ctx context.Context, userID id.UserID) ([]EvaluationResult, error) {
	return e.EvaluateUserTriggers(ctx, userID)
}

// EvaluateUserTriggers runs one full evaluation pass for a user:
// evaluate every non-terminal trigger in parallel, then apply rule
// matching, status transitions, and actions in order.
//
// Triggers already in a terminal status are skipped until explicitly
// reset; re-processing them would repeat grant and notify side effects
// on every pass.
func (e *Engine) EvaluateUserTriggers(ctx context.Context, userID id.UserID) ([]EvaluationResult, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := e.tracer.Start(ctx, "engine.EvaluateUserTriggers",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	start := time.Now()
	defer func() { e.metrics.ObserveEvaluateLatency(time.Since(start)) }()

	now := requestcontext.Now(ctx)

	triggers, err := e.triggers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var pending []trigger.TriggerCondition
	for _, t := range triggers {
		if !t.Status.IsTerminal() {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	overrideActive := e.overrideActive(ctx, userID)

	// Evidence gathering is independent per trigger; run it in parallel.
	// Failures stay inside their slot, never cancel siblings.
	evaluations := make([]Evaluation, len(pending))
	failures := make([]error, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i := range pending {
		g.Go(func() error {
			evaluations[i], failures[i] = e.evaluateOne(gctx, pending[i], userID, now)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]EvaluationResult, 0, len(pending))
	for i, t := range pending {
		result := e.processTrigger(ctx, t, evaluations[i], failures[i], overrideActive, now)
		e.history.Append(userID, result)
		results = append(results, result)
	}
	span.SetAttributes(attribute.Int("triggers_evaluated", len(results)))
	return results, nil
}

// evaluateOne dispatches to the type's evaluator with panic isolation:
// a broken evaluator fails its own trigger, never the batch.
func (e *Engine) evaluateOne(ctx context.Context, t trigger.TriggerCondition, userID id.UserID, now time.Time) (evaluation Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()

	evaluator, ok := e.evaluators[t.Type]
	if !ok {
		return Evaluation{}, fmt.Errorf("no evaluator registered for %s", t.Type)
	}

	start := time.Now()
	evaluation, err = evaluator.Evaluate(ctx, userID, now)
	e.metrics.ObserveEvidenceLatency(string(t.Type), time.Since(start))
	return evaluation, err
}

// processTrigger turns one evaluation into a stored result, advancing
// status and executing actions when the trigger fired.
func (e *Engine) processTrigger(ctx context.Context, t trigger.TriggerCondition, evaluation Evaluation, failure error, overrideActive bool, now time.Time) EvaluationResult {
	if failure != nil {
		e.logger.ErrorContext(ctx, "trigger evaluation failed",
			"trigger_id", t.ID.String(),
			"evidence_type", string(t.Type),
			"error", failure,
		)
		e.metrics.IncrementOutcome(string(t.Type), "failed")
		return EvaluationResult{
			TriggerID: t.ID,
			Reason:    "Evaluation error",
			Timestamp: now,
		}
	}

	result := EvaluationResult{
		TriggerID:  t.ID,
		Triggered:  evaluation.Triggered,
		Confidence: evaluation.Confidence,
		Reason:     evaluation.Reason,
		Metadata:   evaluation.Metadata,
		Timestamp:  now,
	}

	if !evaluation.Triggered {
		e.metrics.IncrementOutcome(string(t.Type), "not_triggered")
		e.emitEvaluated(ctx, t, result)
		return result
	}

	e.metrics.IncrementOutcome(string(t.Type), "triggered")

	evalCtx := EvalContext{Trigger: t, Result: evaluation, OverrideActive: overrideActive}
	actions := canonicalActions(evalCtx.MatchRules(t.Rules))
	result.RequiredActions = actionTypes(actions)

	// A matched wait defers the verdict: the trigger keeps its current
	// status, a re-evaluation is armed, and the remaining actions run on
	// a later pass that matches without wait. Advancing to triggered here
	// would park the trigger in a terminal status before the timer fires.
	if wait, ok := waitAction(actions); ok {
		result.Deferred = true
		e.scheduleWait(t.ID, t.UserID, time.Duration(wait.DelayMinutes)*time.Minute)
		e.emitEvaluated(ctx, t, result)
		return result
	}

	if _, err := e.triggers.UpdateStatus(ctx, t.ID, trigger.StatusTriggered); err != nil {
		e.logger.ErrorContext(ctx, "trigger status transition failed",
			"trigger_id", t.ID.String(),
			"error", err,
		)
	}

	e.emitEvaluated(ctx, t, result)
	e.executeActions(ctx, t, evaluation, result, actions, now)
	return result
}

func (e *Engine) executeActions(ctx context.Context, t trigger.TriggerCondition, evaluation Evaluation, result EvaluationResult, actions []trigger.ActionConfig, now time.Time) {
	for _, action := range actions {
		e.metrics.IncrementAction(string(action.Type))
		switch action.Type {
		case trigger.ActionGrantAccess:
			e.executeGrant(ctx, t, evaluation, result, action, now)
		case trigger.ActionNotify:
			e.executeNotify(ctx, t, result, action)
		case trigger.ActionEscalate:
			if _, err := e.triggers.Escalate(ctx, t.ID); err != nil {
				e.logger.WarnContext(ctx, "escalation failed", "trigger_id", t.ID.String(), "error", err)
			}
		case trigger.ActionRequireApproval:
			e.executeApproval(ctx, t, result, action, now)
		}
	}
}

// waitAction picks the wait out of a canonical action set, if present.
func waitAction(actions []trigger.ActionConfig) (trigger.ActionConfig, bool) {
	for _, action := range actions {
		if action.Type == trigger.ActionWait {
			return action, true
		}
	}
	return trigger.ActionConfig{}, false
}

func (e *Engine) executeGrant(ctx context.Context, t trigger.TriggerCondition, evaluation Evaluation, result EvaluationResult, action trigger.ActionConfig, now time.Time) {
	ttl := action.GrantTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	level := action.AccessLevel
	if level == "" {
		level = "full"
	}
	severity := evaluation.Severity
	if severity == "" {
		severity = evidence.SeverityHigh
	}

	e.emit(ctx, t.UserID, t.ID.String(), audit.EventAccessRequested, "requested", result.Reason)

	if e.granter == nil {
		return
	}
	req := GrantRequest{
		UserID:      t.UserID,
		TriggerID:   t.ID,
		TriggerType: t.Type,
		Severity:    severity,
		Recipients:  action.Recipients,
		Level:       level,
		Reason:      result.Reason,
		ExpiresAt:   now.Add(ttl),
	}
	if err := e.granter.GrantAccess(ctx, req); err != nil {
		e.logger.WarnContext(ctx, "grant access failed", "trigger_id", t.ID.String(), "error", err)
	}
}

func (e *Engine) executeNotify(ctx context.Context, t trigger.TriggerCondition, result EvaluationResult, action trigger.ActionConfig) {
	if e.dispatcher == nil {
		return
	}
	message := action.Message
	if message == "" {
		message = result.Reason
	}
	notification := notify.Notification{
		UserID:   t.UserID,
		Type:     "trigger_alert",
		Title:    "Estate trigger fired: " + string(t.Type),
		Message:  message,
		Priority: notifyPriority(result.Confidence),
		Payload: map[string]string{
			"trigger_id": t.ID.String(),
			"confidence": fmt.Sprintf("%.2f", result.Confidence),
		},
	}
	if err := e.dispatcher.Notify(ctx, notification); err != nil {
		e.logger.WarnContext(ctx, "notification dispatch failed", "trigger_id", t.ID.String(), "error", err)
	}
}

func (e *Engine) executeApproval(ctx context.Context, t trigger.TriggerCondition, result EvaluationResult, action trigger.ActionConfig, now time.Time) {
	ttl := action.ApprovalTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	e.emit(ctx, t.UserID, t.ID.String(), audit.EventApprovalRequired, "pending", result.Reason)

	if e.approvals == nil {
		return
	}
	req := ApprovalRequest{
		UserID:    t.UserID,
		TriggerID: t.ID,
		Reason:    result.Reason,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.approvals.Issue(ctx, req); err != nil {
		e.logger.WarnContext(ctx, "approval request failed", "trigger_id", t.ID.String(), "error", err)
	}
}

// defaultWaitDelay applies when a wait action names no delay.
const defaultWaitDelay = time.Hour

// scheduleWait arms a delayed re-evaluation with a cancellation handle
// tied to the trigger. Re-arming replaces the previous timer; on wake
// the trigger's status is re-checked so a resolved trigger never fires
// a stale pass.
func (e *Engine) scheduleWait(triggerID id.TriggerID, userID id.UserID, delay time.Duration) {
	if delay <= 0 {
		delay = defaultWaitDelay
	}
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	if timer, ok := e.waits[triggerID]; ok {
		timer.Stop()
		e.metrics.AddPendingWaits(-1)
	}
	e.waits[triggerID] = time.AfterFunc(delay, func() { e.onWaitFired(triggerID, userID) })
	e.metrics.AddPendingWaits(1)
}

// CancelWait drops a scheduled re-evaluation, if any. Called when a
// trigger is deleted or resolved before its delay elapses.
func (e *Engine) CancelWait(triggerID id.TriggerID) {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	if timer, ok := e.waits[triggerID]; ok {
		timer.Stop()
		delete(e.waits, triggerID)
		e.metrics.AddPendingWaits(-1)
	}
}

func (e *Engine) onWaitFired(triggerID id.TriggerID, userID id.UserID) {
	e.waitMu.Lock()
	if _, ok := e.waits[triggerID]; ok {
		delete(e.waits, triggerID)
		e.metrics.AddPendingWaits(-1)
	}
	e.waitMu.Unlock()

	ctx := context.Background()
	t, err := e.triggers.Get(ctx, triggerID)
	if err != nil || t.Status.IsTerminal() {
		return
	}
	if _, err := e.EvaluateUserTriggers(ctx, userID); err != nil {
		e.logger.Error("delayed re-evaluation failed", "trigger_id", triggerID.String(), "error", err)
	}
}

func (e *Engine) overrideActive(ctx context.Context, userID id.UserID) bool {
	if e.overrides == nil {
		return false
	}
	overrides, err := e.overrides.ActiveOverrides(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "override lookup failed", "user_id", userID.String(), "error", err)
		return false
	}
	for _, o := range overrides {
		if o.Authenticated {
			return true
		}
	}
	return false
}

func (e *Engine) emitEvaluated(ctx context.Context, t trigger.TriggerCondition, result EvaluationResult) {
	verdict := "not_triggered"
	switch {
	case result.Deferred:
		verdict = "deferred"
	case result.Triggered:
		verdict = "triggered"
	}
	e.emit(ctx, t.UserID, t.ID.String(), audit.EventTriggerEvaluated, verdict, result.Reason)
}

func (e *Engine) emit(ctx context.Context, userID id.UserID, subject string, action audit.AuditAction, result, reason string) {
	if e.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		Subject:   subject,
		Action:    string(action),
		Result:    result,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}

// notifyPriority maps evidence strength onto delivery urgency.
func notifyPriority(confidence float64) notify.Priority {
	switch {
	case confidence >= 0.9:
		return notify.PriorityUrgent
	case confidence >= 0.7:
		return notify.PriorityHigh
	case confidence >= 0.5:
		return notify.PriorityNormal
	default:
		return notify.PriorityLow
	}
}

func (e *Engine) lockFor(userID id.UserID) *sync.Mutex {
	e.userMu.Lock()
	defer e.userMu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}
