package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heirloom/internal/audit"
	"heirloom/internal/evidence"
	evidencemem "heirloom/internal/evidence/memory"
	"heirloom/internal/notify"
	"heirloom/internal/trigger"
	id "heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

// =============================================================================
// Engine Test Suite
// =============================================================================
// Justification: the engine composes evaluator dispatch, rule matching,
// status transitions, and side-effect execution. These tests exercise the
// composition over in-memory collaborators; scoring boundaries live in
// the evaluator tests.

type recordingGranter struct {
	mu     sync.Mutex
	grants []GrantRequest
	err    error
}

func (g *recordingGranter) GrantAccess(_ context.Context, req GrantRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.grants = append(g.grants, req)
	return nil
}

type recordingApprovals struct {
	mu       sync.Mutex
	requests []ApprovalRequest
}

func (a *recordingApprovals) Issue(_ context.Context, req ApprovalRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	return nil
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, id.UserID, time.Time) (Evaluation, error) {
	return Evaluation{}, errors.New("evidence backend down")
}

type EngineSuite struct {
	suite.Suite
	snapshots  *evidencemem.Snapshots
	triggers   *trigger.Service
	store      *trigger.InMemoryStore
	granter    *recordingGranter
	approvals  *recordingApprovals
	dispatcher *notify.InMemoryDispatcher
	sink       *audit.InMemoryStore
	engine     *Engine
	ctx        context.Context
	userID     id.UserID
	now        time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.snapshots = evidencemem.NewSnapshots()
	s.store = trigger.NewInMemoryStore()
	s.sink = audit.NewInMemoryStore()
	auditor := audit.NewPublisher(s.sink)
	s.triggers = trigger.NewService(s.store, trigger.WithAudit(auditor))
	s.granter = &recordingGranter{}
	s.approvals = &recordingApprovals{}
	s.dispatcher = notify.NewInMemoryDispatcher()

	evaluators := NewEvaluators(s.snapshots, s.snapshots, s.snapshots, s.snapshots, s.snapshots, s.snapshots)
	s.engine = New(s.triggers, evaluators, s.snapshots,
		WithGranter(s.granter),
		WithApprovals(s.approvals),
		WithDispatcher(s.dispatcher),
		WithAudit(auditor),
	)

	s.userID = id.NewUserID()
	s.now = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *EngineSuite) createTrigger(evidenceType trigger.EvidenceType, rules ...trigger.Rule) trigger.TriggerCondition {
	created, err := s.triggers.Create(s.ctx, trigger.CreateParams{
		UserID:   s.userID,
		Type:     evidenceType,
		Priority: 3,
		Rules:    rules,
	})
	s.Require().NoError(err)
	return created
}

func grantAndNotifyRule() trigger.Rule {
	return trigger.Rule{
		Name:     "unlock on strong evidence",
		Priority: 10,
		Conditions: trigger.ConditionGroup{All: []trigger.Condition{
			{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "0.7"},
		}},
		Actions: []trigger.ActionConfig{
			{Type: trigger.ActionGrantAccess, Recipients: []id.BeneficiaryID{id.NewBeneficiaryID()}, AccessLevel: "full", GrantTTL: 48 * time.Hour},
			{Type: trigger.ActionNotify, Message: "estate unlock initiated"},
		},
	}
}

func (s *EngineSuite) TestTriggeredPass() {
	created := s.createTrigger(trigger.TypeMedicalEmergency, grantAndNotifyRule())
	s.snapshots.SetEmergencies(s.userID, []evidence.EmergencyAlert{
		{Severity: evidence.SeverityCritical, Verified: true, SignalStrength: 90, DeviceType: "fall-detector"},
	})

	results, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)

	result := results[0]
	s.True(result.Triggered)
	s.Equal(1.0, result.Confidence)
	s.Equal([]trigger.ActionType{trigger.ActionGrantAccess, trigger.ActionNotify}, result.RequiredActions)

	s.Run("status advances to triggered", func() {
		updated, err := s.triggers.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(trigger.StatusTriggered, updated.Status)
	})

	s.Run("grant is delegated with rule parameters", func() {
		s.Require().Len(s.granter.grants, 1)
		grant := s.granter.grants[0]
		s.Equal(s.userID, grant.UserID)
		s.Equal(created.ID, grant.TriggerID)
		s.Equal("full", grant.Level)
		s.Equal(s.now.Add(48*time.Hour), grant.ExpiresAt)
	})

	s.Run("notification is dispatched", func() {
		sent := s.dispatcher.SentFor(s.userID)
		s.Require().Len(sent, 1)
		s.Equal("estate unlock initiated", sent[0].Message)
		s.Equal(notify.PriorityUrgent, sent[0].Priority)
	})

	s.Run("history records the pass", func() {
		history := s.engine.History(s.userID)
		s.Require().Len(history, 1)
		s.Equal(created.ID, history[0].TriggerID)
	})

	s.Run("evaluation and grant are audited", func() {
		entries, err := s.sink.ListByUser(s.ctx, s.userID)
		s.Require().NoError(err)
		actions := make(map[string]bool)
		for _, entry := range entries {
			actions[entry.Event.Action] = true
		}
		s.True(actions[string(audit.EventTriggerEvaluated)])
		s.True(actions[string(audit.EventAccessRequested)])
	})
}

func (s *EngineSuite) TestTerminalTriggersAreSkipped() {
	s.createTrigger(trigger.TypeMedicalEmergency, grantAndNotifyRule())
	s.snapshots.SetEmergencies(s.userID, []evidence.EmergencyAlert{
		{Severity: evidence.SeverityCritical, Verified: true, SignalStrength: 90},
	})

	first, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	// Second pass over unchanged evidence: trigger is terminal now, so no
	// duplicate grant or notification.
	second, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(second)
	s.Len(s.granter.grants, 1)
	s.Len(s.dispatcher.SentFor(s.userID), 1)
}

func (s *EngineSuite) TestFailureIsolation() {
	broken := s.createTrigger(trigger.TypeLegalDocument)
	healthy := s.createTrigger(trigger.TypeInactivity)
	s.engine.evaluators[trigger.TypeLegalDocument] = failingEvaluator{}
	s.snapshots.SetDeadman(s.userID, evidence.DeadmanStatus{
		Enabled:      true,
		IntervalDays: 7,
		LastCheckIn:  s.now.AddDate(0, 0, -10),
	})

	results, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 2)

	byTrigger := map[id.TriggerID]EvaluationResult{}
	for _, result := range results {
		byTrigger[result.TriggerID] = result
	}

	s.Equal("Evaluation error", byTrigger[broken.ID].Reason)
	s.False(byTrigger[broken.ID].Triggered)
	s.Zero(byTrigger[broken.ID].Confidence)

	s.True(byTrigger[healthy.ID].Triggered, "a broken evaluator must not abort the batch")
	s.InDelta(0.8, byTrigger[healthy.ID].Confidence, 1e-9)

	failed, err := s.triggers.Get(s.ctx, broken.ID)
	s.Require().NoError(err)
	s.False(failed.Status.IsTerminal(), "an evaluation error leaves the trigger evaluable")
}

func (s *EngineSuite) TestDeterminism() {
	s.createTrigger(trigger.TypeBeneficiaryPetition)
	s.snapshots.SetPetitions(s.userID, []evidence.Petition{
		{Status: evidence.PetitionPending, Urgency: evidence.SeverityHigh},
		{Status: evidence.PetitionPending, Urgency: evidence.SeverityCritical},
	})

	first, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	second, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)

	// Not triggered, so the trigger stays evaluable and unchanged
	// evidence must yield an identical result.
	s.Require().Len(first, 1)
	s.Require().Len(second, 1)
	s.Equal(first[0], second[0])
}

func (s *EngineSuite) TestEscalateAction() {
	created := s.createTrigger(trigger.TypeManualOverride, trigger.Rule{
		Name:     "escalate overrides",
		Priority: 5,
		Actions:  []trigger.ActionConfig{{Type: trigger.ActionEscalate}},
	})
	s.snapshots.SetOverrides(s.userID, []evidence.ManualOverride{
		{Priority: evidence.OverrideEmergency, Authenticated: true, Initiator: "ops", Reason: "verified call"},
	})

	_, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)

	updated, err := s.triggers.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.Priority+1, updated.Priority)
}

func (s *EngineSuite) TestRequireApprovalAction() {
	created := s.createTrigger(trigger.TypeThirdPartySignal, trigger.Rule{
		Name:     "human in the loop",
		Priority: 5,
		Actions:  []trigger.ActionConfig{{Type: trigger.ActionRequireApproval, ApprovalTTL: 24 * time.Hour}},
	})
	s.snapshots.SetSignals(s.userID, []evidence.ThirdPartySignal{
		{Type: evidence.SignalDeathNotification, Verified: true, Source: "registry"},
	})

	_, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)

	s.Require().Len(s.approvals.requests, 1)
	s.Equal(created.ID, s.approvals.requests[0].TriggerID)
	s.Equal(s.now.Add(24*time.Hour), s.approvals.requests[0].ExpiresAt)
}

func (s *EngineSuite) pendingWaits() int {
	s.engine.waitMu.Lock()
	defer s.engine.waitMu.Unlock()
	return len(s.engine.waits)
}

func waitRule() trigger.Rule {
	return trigger.Rule{
		Name:     "re-check before acting",
		Priority: 20,
		Actions:  []trigger.ActionConfig{{Type: trigger.ActionWait, DelayMinutes: 30}},
	}
}

// Justification: a matched wait must keep the trigger evaluable and hold
// back the other actions, otherwise the armed timer wakes on a trigger
// the engine will never evaluate again.
func (s *EngineSuite) TestWaitDefersTheVerdict() {
	created := s.createTrigger(trigger.TypeInactivity, waitRule(), grantAndNotifyRule())
	s.snapshots.SetDeadman(s.userID, evidence.DeadmanStatus{
		Enabled:      true,
		IntervalDays: 7,
		LastCheckIn:  s.now.AddDate(0, 0, -10),
	})

	results, err := s.engine.EvaluateUserTriggers(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)

	result := results[0]
	s.True(result.Triggered)
	s.True(result.Deferred)
	s.Contains(result.RequiredActions, trigger.ActionWait)

	s.Run("trigger stays evaluable", func() {
		updated, err := s.triggers.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(trigger.StatusPending, updated.Status)
	})

	s.Run("side effects are held back", func() {
		s.Empty(s.granter.grants)
		s.Empty(s.dispatcher.SentFor(s.userID))
	})

	s.Run("re-evaluation is armed and runs on wake", func() {
		s.Equal(1, s.pendingWaits())
		s.engine.onWaitFired(created.ID, s.userID)
		s.Len(s.engine.History(s.userID), 2, "the wake pass re-evaluates the trigger")
		s.engine.CancelWait(created.ID)
	})
}

func (s *EngineSuite) TestWaitCancellation() {
	created := s.createTrigger(trigger.TypeInactivity)
	s.engine.scheduleWait(created.ID, s.userID, time.Hour)
	s.engine.CancelWait(created.ID)

	s.Zero(s.pendingWaits())
}

func (s *EngineSuite) TestResolutionCancelsWait() {
	s.Run("deletion drops the pending wait", func() {
		created := s.createTrigger(trigger.TypeInactivity, waitRule())
		s.engine.scheduleWait(created.ID, s.userID, time.Hour)

		s.Require().NoError(s.triggers.Delete(s.ctx, created.ID))
		s.Zero(s.pendingWaits())
	})

	s.Run("terminal transition drops the pending wait", func() {
		created := s.createTrigger(trigger.TypeInactivity, waitRule())
		s.engine.scheduleWait(created.ID, s.userID, time.Hour)

		_, err := s.triggers.UpdateStatus(s.ctx, created.ID, trigger.StatusTriggered)
		s.Require().NoError(err)
		s.Zero(s.pendingWaits())
	})

	s.Run("wake on a resolved trigger is a no-op", func() {
		created := s.createTrigger(trigger.TypeInactivity, waitRule())
		_, err := s.triggers.UpdateStatus(s.ctx, created.ID, trigger.StatusTriggered)
		s.Require().NoError(err)
		_, err = s.triggers.UpdateStatus(s.ctx, created.ID, trigger.StatusCompleted)
		s.Require().NoError(err)

		before := len(s.engine.History(s.userID))
		s.engine.onWaitFired(created.ID, s.userID)
		s.Len(s.engine.History(s.userID), before)
	})
}

func TestHistoryBounded(t *testing.T) {
	history := NewHistory()
	userID := id.NewUserID()
	for i := 0; i < historyLimit+20; i++ {
		history.Append(userID, EvaluationResult{Reason: "pass", Timestamp: time.Unix(int64(i), 0)})
	}
	results := history.ForUser(userID)
	if len(results) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(results), historyLimit)
	}
	if !results[0].Timestamp.Equal(time.Unix(20, 0)) {
		t.Fatalf("oldest retained entry = %v, want %v", results[0].Timestamp, time.Unix(20, 0))
	}
}
