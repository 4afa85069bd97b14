// Package access is the policy side of the estate: who may touch which
// resource, under which conditions, decided by prioritized conditional
// rule matrices, temporary grants, and an emergency override path.
package access

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"heirloom/internal/access/metrics"
	"heirloom/internal/audit"
	"heirloom/internal/evidence"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// AuditEmitter records access decisions and mutations.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns matrices, beneficiaries, grants, and evaluation.
type Service struct {
	store      Store
	cache      Cache
	deadman    evidence.DeadmanPort
	predicates map[string]CustomPredicate
	auditor    AuditEmitter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithCache enables evaluation caching.
func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithDeadman attaches the dead-man-switch port backing inactivity
// conditions. Without it those conditions fail closed.
func WithDeadman(port evidence.DeadmanPort) Option {
	return func(s *Service) { s.deadman = port }
}

// WithCustomCondition registers a named predicate for custom conditions.
func WithCustomCondition(name string, predicate CustomPredicate) Option {
	return func(s *Service) { s.predicates[name] = predicate }
}

// WithAudit attaches an audit emitter.
func WithAudit(a AuditEmitter) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics attaches access metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		predicates: make(map[string]CustomPredicate),
		logger:     slog.Default(),
		tracer:     otel.Tracer("heirloom/access"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMatrixParams carries the caller-supplied fields for a new matrix.
type CreateMatrixParams struct {
	UserID       id.UserID
	Name         string
	Strategy     ConflictStrategy
	CacheEnabled bool
}

// CreateMatrix registers an empty rule matrix for a user.
func (s *Service) CreateMatrix(ctx context.Context, params CreateMatrixParams) (AccessControlMatrix, error) {
	if params.UserID.IsNil() {
		return AccessControlMatrix{}, dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if !validStrategies[params.Strategy] {
		return AccessControlMatrix{}, dErrors.New(dErrors.CodeValidation, "unknown conflict strategy: "+string(params.Strategy))
	}

	now := requestcontext.Now(ctx)
	matrix := AccessControlMatrix{
		ID:           id.NewMatrixID(),
		UserID:       params.UserID,
		Name:         params.Name,
		Strategy:     params.Strategy,
		Version:      1,
		CacheEnabled: params.CacheEnabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateMatrix(ctx, matrix); err != nil {
		return AccessControlMatrix{}, dErrors.Wrap(err, dErrors.CodeInternal, "create matrix")
	}
	s.emit(ctx, matrix.UserID, matrix.ID.String(), audit.EventMatrixMutated, "created", "")
	return matrix, nil
}

// GetMatrix returns one matrix by ID.
func (s *Service) GetMatrix(ctx context.Context, matrixID id.MatrixID) (AccessControlMatrix, error) {
	matrix, err := s.store.GetMatrix(ctx, matrixID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return AccessControlMatrix{}, dErrors.New(dErrors.CodeNotFound, "matrix not found")
	}
	if err != nil {
		return AccessControlMatrix{}, dErrors.Wrap(err, dErrors.CodeInternal, "get matrix")
	}
	return matrix, nil
}

// AddRule appends a rule to the matrix, bumping the version and flushing
// the evaluation cache.
func (s *Service) AddRule(ctx context.Context, matrixID id.MatrixID, rule AccessControlRule) (AccessControlMatrix, error) {
	matrix, err := s.GetMatrix(ctx, matrixID)
	if err != nil {
		return AccessControlMatrix{}, err
	}
	if rule.ID.IsNil() {
		rule.ID = id.NewRuleID()
	}
	if rule.Permissions == nil {
		rule.Permissions = PermissionSet{}
	}
	matrix.Rules = append(matrix.Rules, rule)
	return s.saveMatrix(ctx, matrix, "rule added")
}

// UpdateUserRules replaces the matrix's rule set wholesale.
func (s *Service) UpdateUserRules(ctx context.Context, matrixID id.MatrixID, rules []AccessControlRule) (AccessControlMatrix, error) {
	matrix, err := s.GetMatrix(ctx, matrixID)
	if err != nil {
		return AccessControlMatrix{}, err
	}
	for i := range rules {
		if rules[i].ID.IsNil() {
			rules[i].ID = id.NewRuleID()
		}
		if rules[i].Permissions == nil {
			rules[i].Permissions = PermissionSet{}
		}
	}
	matrix.Rules = rules
	return s.saveMatrix(ctx, matrix, "rules replaced")
}

func (s *Service) saveMatrix(ctx context.Context, matrix AccessControlMatrix, reason string) (AccessControlMatrix, error) {
	matrix.Version++
	matrix.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateMatrix(ctx, matrix); err != nil {
		return AccessControlMatrix{}, dErrors.Wrap(err, dErrors.CodeInternal, "update matrix")
	}
	s.flushCache(ctx)
	s.emit(ctx, matrix.UserID, matrix.ID.String(), audit.EventMatrixMutated, "updated", reason)
	return matrix, nil
}

// RegisterBeneficiaryParams carries the fields for a new directory entry.
type RegisterBeneficiaryParams struct {
	UserID       id.UserID
	Name         string
	Email        string
	TrustLevel   TrustLevel
	Relationship string
	Groups       []string
}

// RegisterBeneficiary adds a beneficiary to the user's directory.
func (s *Service) RegisterBeneficiary(ctx context.Context, params RegisterBeneficiaryParams) (Beneficiary, error) {
	if params.UserID.IsNil() {
		return Beneficiary{}, dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if params.Name == "" {
		return Beneficiary{}, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	beneficiary := Beneficiary{
		ID:           id.NewBeneficiaryID(),
		UserID:       params.UserID,
		Name:         params.Name,
		Email:        params.Email,
		TrustLevel:   params.TrustLevel,
		Relationship: params.Relationship,
		Groups:       params.Groups,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.CreateBeneficiary(ctx, beneficiary); err != nil {
		return Beneficiary{}, dErrors.Wrap(err, dErrors.CodeInternal, "register beneficiary")
	}
	return beneficiary, nil
}

// ListBeneficiaries returns a user's directory.
func (s *Service) ListBeneficiaries(ctx context.Context, userID id.UserID) ([]Beneficiary, error) {
	beneficiaries, err := s.store.ListBeneficiariesByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list beneficiaries")
	}
	return beneficiaries, nil
}

// EvaluatePermissions decides what a beneficiary may do with a resource
// under the matrix's rules. The contract is total: unknown beneficiary
// or matrix yields a denied evaluation, never an error.
func (s *Service) EvaluatePermissions(ctx context.Context, matrixID id.MatrixID, beneficiaryID id.BeneficiaryID, resourceType, resourceID string, reqCtx RequestContext) (PermissionEvaluation, error) {
	ctx, span := s.tracer.Start(ctx, "access.EvaluatePermissions",
		trace.WithAttributes(
			attribute.String("matrix_id", matrixID.String()),
			attribute.String("beneficiary_id", beneficiaryID.String()),
			attribute.String("resource_type", resourceType),
		))
	defer span.End()

	start := time.Now()
	now := requestcontext.Now(ctx)
	if reqCtx.RequestedAt.IsZero() {
		reqCtx.RequestedAt = now
	}

	matrix, err := s.store.GetMatrix(ctx, matrixID)
	if errors.Is(err, sentinel.ErrNotFound) {
		denied := s.denied(ctx, matrixID, "matrix not found", now)
		denied.DurationMS = time.Since(start).Milliseconds()
		return denied, nil
	}
	if err != nil {
		return PermissionEvaluation{}, dErrors.Wrap(err, dErrors.CodeInternal, "get matrix")
	}

	key := cacheKey(matrixID, beneficiaryID, resourceType, resourceID)
	if matrix.CacheEnabled && s.cache != nil {
		// A cached evaluation keeps the duration of the pass that
		// computed it.
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.metrics.IncrementCacheLookup("hit")
			return cached, nil
		}
		s.metrics.IncrementCacheLookup("miss")
	}

	evaluation, err := s.evaluate(ctx, matrix, beneficiaryID, resourceType, resourceID, reqCtx, now)
	if err != nil {
		return PermissionEvaluation{}, err
	}
	elapsed := time.Since(start)
	evaluation.DurationMS = elapsed.Milliseconds()
	s.metrics.ObserveEvaluateLatency(elapsed)

	if matrix.CacheEnabled && s.cache != nil {
		s.cache.Set(ctx, key, evaluation)
	}

	decision := "denied"
	if evaluation.Allowed {
		decision = "allowed"
	}
	s.metrics.IncrementOutcome(decision, string(evaluation.AccessLevel))
	s.emit(ctx, matrix.UserID, beneficiaryID.String(), audit.EventPermissionChecked, decision, evaluation.Reason)
	span.SetAttributes(attribute.Bool("allowed", evaluation.Allowed))
	return evaluation, nil
}

func (s *Service) evaluate(ctx context.Context, matrix AccessControlMatrix, beneficiaryID id.BeneficiaryID, resourceType, resourceID string, reqCtx RequestContext, now time.Time) (PermissionEvaluation, error) {
	beneficiary, err := s.store.GetBeneficiary(ctx, beneficiaryID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return PermissionEvaluation{
			Permissions: PermissionSet{},
			AccessLevel: AccessLevelNone,
			Reason:      "beneficiary not found",
			EvaluatedAt: now,
		}, nil
	}
	if err != nil {
		return PermissionEvaluation{}, dErrors.Wrap(err, dErrors.CodeInternal, "get beneficiary")
	}

	activation, err := s.store.GetActivation(ctx, matrix.UserID)
	if err != nil {
		return PermissionEvaluation{}, dErrors.Wrap(err, dErrors.CodeInternal, "get activation")
	}
	env := conditionEnv{
		Activation: activation,
		Deadman:    s.deadmanStatus(ctx, matrix.UserID),
		Predicates: s.predicates,
	}

	applicable := applicableRules(matrix.Rules, beneficiary, resourceType, resourceID)
	if len(applicable) == 0 {
		return PermissionEvaluation{
			Permissions: PermissionSet{},
			AccessLevel: AccessLevelNone,
			Reason:      "no applicable rules",
			EvaluatedAt: now,
		}, nil
	}

	effective := PermissionSet{}
	var matched, deniedBy []id.RuleID
	var requiredActions []string

	// Ascending priority: under overwrite strategies the highest-priority
	// contributing rule is applied last and wins the fields it specifies.
	for _, rule := range applicable {
		holds, actions := s.ruleHolds(rule, reqCtx, env, now)
		if !holds {
			deniedBy = append(deniedBy, rule.ID)
			requiredActions = append(requiredActions, actions...)
			continue
		}
		foldPermissions(matrix.Strategy, effective, rule.Permissions)
		matched = append(matched, rule.ID)
	}

	allowed := effective.AnyGranted() && len(deniedBy) == 0
	reason := "access granted by matching rules"
	switch {
	case len(deniedBy) > 0:
		reason = "one or more rule conditions are not satisfied"
	case !effective.AnyGranted():
		reason = "matching rules grant no permissions"
	}

	return PermissionEvaluation{
		Allowed:         allowed,
		Permissions:     effective,
		AccessLevel:     ClassifyAccess(effective),
		MatchedRules:    matched,
		DeniedBy:        deniedBy,
		RequiredActions: requiredActions,
		Reason:          reason,
		EvaluatedAt:     now,
	}, nil
}

// ruleHolds checks every condition and time constraint; a rule
// contributes only when all of them are satisfied.
func (s *Service) ruleHolds(rule AccessControlRule, reqCtx RequestContext, env conditionEnv, now time.Time) (bool, []string) {
	var requiredActions []string
	for _, constraint := range rule.TimeConstraints {
		if !constraint.Satisfied(now) {
			requiredActions = append(requiredActions, "outside the allowed time window")
		}
	}
	for _, cond := range rule.Conditions {
		outcome := evalCondition(cond, reqCtx, env, now)
		if !outcome.Satisfied {
			requiredActions = append(requiredActions, outcome.RequiredAction)
		}
	}
	return len(requiredActions) == 0, requiredActions
}

// deadmanStatus reads the dead-man switch for inactivity conditions. A
// missing port or failed lookup leaves the status nil; the condition
// itself fails closed on nil.
func (s *Service) deadmanStatus(ctx context.Context, userID id.UserID) *evidence.DeadmanStatus {
	if s.deadman == nil {
		return nil
	}
	status, err := s.deadman.Status(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "deadman lookup failed", "user_id", userID.String(), "error", err)
		return nil
	}
	return status
}

// applicableRules filters to active rules whose subject and resource
// matchers cover the request, sorted ascending by priority.
func applicableRules(rules []AccessControlRule, beneficiary Beneficiary, resourceType, resourceID string) []AccessControlRule {
	var applicable []AccessControlRule
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !rule.Subjects.Matches(beneficiary) {
			continue
		}
		if !rule.Resources.Matches(resourceType, resourceID) {
			continue
		}
		applicable = append(applicable, rule)
	}
	sort.SliceStable(applicable, func(i, j int) bool { return applicable[i].Priority < applicable[j].Priority })
	return applicable
}

// foldPermissions merges one contributing rule into the effective set.
func foldPermissions(strategy ConflictStrategy, effective, contribution PermissionSet) {
	for field, granted := range contribution {
		current, seen := effective[field]
		switch strategy {
		case StrategyMostPermissive:
			if seen {
				effective[field] = current || granted
			} else {
				effective[field] = granted
			}
		case StrategyMostRestrictive:
			if seen {
				effective[field] = current && granted
			} else {
				effective[field] = granted
			}
		default:
			// priority / explicit: the later (higher-priority) rule
			// overwrites the fields it specifies.
			effective[field] = granted
		}
	}
}

// EvaluatePermissionsWithEmergencyOverride short-circuits to the full
// permission set when an active temporary grant covers the exact
// (beneficiary, resource) pair, bypassing rule evaluation entirely.
func (s *Service) EvaluatePermissionsWithEmergencyOverride(ctx context.Context, matrixID id.MatrixID, beneficiaryID id.BeneficiaryID, resourceType, resourceID string, reqCtx RequestContext) (PermissionEvaluation, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	grants, err := s.store.ListGrantsForBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return PermissionEvaluation{}, dErrors.Wrap(err, dErrors.CodeInternal, "list grants")
	}
	for _, grant := range grants {
		if !grant.ActiveAt(now) || !grant.Covers(resourceType, resourceID) {
			continue
		}
		s.consumeGrant(ctx, grant)
		evaluation := PermissionEvaluation{
			Allowed:     true,
			Permissions: FullPermissionSet(),
			AccessLevel: AccessLevelFull,
			Reason:      "active temporary access grant " + grant.ID.String(),
			EvaluatedAt: now,
			DurationMS:  time.Since(start).Milliseconds(),
		}
		s.metrics.IncrementOutcome("allowed", string(AccessLevelFull))
		s.emit(ctx, grant.UserID, beneficiaryID.String(), audit.EventOverrideApplied, "allowed", evaluation.Reason)
		return evaluation, nil
	}

	return s.EvaluatePermissions(ctx, matrixID, beneficiaryID, resourceType, resourceID, reqCtx)
}

// consumeGrant counts one use against a usage-capped grant.
func (s *Service) consumeGrant(ctx context.Context, grant TemporaryAccessGrant) {
	if grant.MaxUses <= 0 {
		return
	}
	grant.Uses++
	if err := s.store.UpdateGrant(ctx, grant); err != nil {
		s.logger.WarnContext(ctx, "grant use not recorded", "grant_id", grant.ID.String(), "error", err)
		return
	}
	s.metrics.IncrementGrantEvent("consumed")
}

// IssueGrantParams carries the fields for a new temporary grant.
type IssueGrantParams struct {
	UserID        id.UserID
	BeneficiaryID id.BeneficiaryID
	ResourceType  string
	ResourceID    string
	Level         string
	Reason        string
	TriggerID     id.TriggerID
	ExpiresAt     time.Time
	MaxUses       int
}

// IssueGrant opens a time-boxed unlock and flushes the evaluation cache.
func (s *Service) IssueGrant(ctx context.Context, params IssueGrantParams) (TemporaryAccessGrant, error) {
	if params.UserID.IsNil() {
		return TemporaryAccessGrant{}, dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if params.BeneficiaryID.IsNil() {
		return TemporaryAccessGrant{}, dErrors.New(dErrors.CodeInvalidInput, "beneficiary_id is required")
	}

	grant := TemporaryAccessGrant{
		ID:            id.NewGrantID(),
		UserID:        params.UserID,
		BeneficiaryID: params.BeneficiaryID,
		ResourceType:  params.ResourceType,
		ResourceID:    params.ResourceID,
		Level:         params.Level,
		Reason:        params.Reason,
		TriggerID:     params.TriggerID,
		GrantedAt:     requestcontext.Now(ctx),
		ExpiresAt:     params.ExpiresAt,
		MaxUses:       params.MaxUses,
	}
	if err := s.store.CreateGrant(ctx, grant); err != nil {
		return TemporaryAccessGrant{}, dErrors.Wrap(err, dErrors.CodeInternal, "issue grant")
	}

	s.flushCache(ctx)
	s.metrics.IncrementGrantEvent("issued")
	s.logger.InfoContext(ctx, "temporary access grant issued",
		"grant_id", grant.ID.String(),
		"user_id", grant.UserID.String(),
		"beneficiary_id", grant.BeneficiaryID.String(),
		"expires_at", grant.ExpiresAt,
	)
	s.emit(ctx, grant.UserID, grant.BeneficiaryID.String(), audit.EventGrantIssued, "issued", grant.Reason)
	return grant, nil
}

// RevokeGrant withdraws a grant before expiry and flushes the cache.
func (s *Service) RevokeGrant(ctx context.Context, grantID id.GrantID, reason string) error {
	grant, err := s.store.GetGrant(ctx, grantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "grant not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "get grant")
	}
	if grant.Revoked {
		return nil
	}
	grant.Revoked = true
	if err := s.store.UpdateGrant(ctx, grant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke grant")
	}
	s.flushCache(ctx)
	s.metrics.IncrementGrantEvent("revoked")
	s.emit(ctx, grant.UserID, grant.BeneficiaryID.String(), audit.EventGrantRevoked, "revoked", reason)
	return nil
}

// ListGrants returns every grant issued on behalf of a user.
func (s *Service) ListGrants(ctx context.Context, userID id.UserID) ([]TemporaryAccessGrant, error) {
	grants, err := s.store.ListGrantsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list grants")
	}
	return grants, nil
}

// SetEmergencyActivation updates the user's global emergency status that
// emergency-trigger conditions check against, and flushes the cache.
func (s *Service) SetEmergencyActivation(ctx context.Context, userID id.UserID, activation EmergencyActivation) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user_id is required")
	}
	if activation.Active && activation.ActivatedAt.IsZero() {
		activation.ActivatedAt = requestcontext.Now(ctx)
	}
	if err := s.store.SetActivation(ctx, userID, activation); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set activation")
	}
	s.flushCache(ctx)
	result := "deactivated"
	if activation.Active {
		result = "activated"
	}
	s.emit(ctx, userID, userID.String(), audit.EventOverrideApplied, result, activation.TriggerType)
	return nil
}

func (s *Service) flushCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Flush(ctx)
	}
}

func (s *Service) denied(ctx context.Context, matrixID id.MatrixID, reason string, now time.Time) PermissionEvaluation {
	s.metrics.IncrementOutcome("denied", string(AccessLevelNone))
	s.logger.DebugContext(ctx, "access denied", "matrix_id", matrixID.String(), "reason", reason)
	return PermissionEvaluation{
		Permissions: PermissionSet{},
		AccessLevel: AccessLevelNone,
		Reason:      reason,
		EvaluatedAt: now,
	}
}

func (s *Service) emit(ctx context.Context, userID id.UserID, subject string, action audit.AuditAction, result, reason string) {
	if s.auditor == nil {
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
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}
