// Package handler exposes the access policy service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/access"
	"heirloom/internal/evidence"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Service defines the access policy operations the handler needs.
type Service interface {
	CreateMatrix(ctx context.Context, params access.CreateMatrixParams) (access.AccessControlMatrix, error)
	GetMatrix(ctx context.Context, matrixID id.MatrixID) (access.AccessControlMatrix, error)
	AddRule(ctx context.Context, matrixID id.MatrixID, rule access.AccessControlRule) (access.AccessControlMatrix, error)
	UpdateUserRules(ctx context.Context, matrixID id.MatrixID, rules []access.AccessControlRule) (access.AccessControlMatrix, error)
	RegisterBeneficiary(ctx context.Context, params access.RegisterBeneficiaryParams) (access.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, userID id.UserID) ([]access.Beneficiary, error)
	EvaluatePermissions(ctx context.Context, matrixID id.MatrixID, beneficiaryID id.BeneficiaryID, resourceType, resourceID string, reqCtx access.RequestContext) (access.PermissionEvaluation, error)
	EvaluatePermissionsWithEmergencyOverride(ctx context.Context, matrixID id.MatrixID, beneficiaryID id.BeneficiaryID, resourceType, resourceID string, reqCtx access.RequestContext) (access.PermissionEvaluation, error)
	IssueGrant(ctx context.Context, params access.IssueGrantParams) (access.TemporaryAccessGrant, error)
	RevokeGrant(ctx context.Context, grantID id.GrantID, reason string) error
	ListGrants(ctx context.Context, userID id.UserID) ([]access.TemporaryAccessGrant, error)
	SetEmergencyActivation(ctx context.Context, userID id.UserID, activation access.EmergencyActivation) error
}

// Handler wires access policy endpoints to the access service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an access handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts access policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/matrices", h.HandleCreateMatrix)
	r.Get("/matrices/{matrixID}", h.HandleGetMatrix)
	r.Post("/matrices/{matrixID}/rules", h.HandleAddRule)
	r.Put("/matrices/{matrixID}/rules", h.HandleReplaceRules)
	r.Post("/matrices/{matrixID}/evaluate", h.HandleEvaluate)
	r.Post("/beneficiaries", h.HandleRegisterBeneficiary)
	r.Get("/beneficiaries", h.HandleListBeneficiaries)
	r.Post("/grants", h.HandleIssueGrant)
	r.Get("/grants", h.HandleListGrants)
	r.Post("/grants/{grantID}/revoke", h.HandleRevokeGrant)
	r.Put("/activation", h.HandleSetActivation)
}

// HandleCreateMatrix handles POST /matrices requests.
func (h *Handler) HandleCreateMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateMatrixRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	matrix, err := h.service.CreateMatrix(ctx, access.CreateMatrixParams{
		UserID:       userID,
		Name:         req.Name,
		Strategy:     access.ConflictStrategy(req.Strategy),
		CacheEnabled: req.CacheEnabled,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "matrix created",
		"request_id", requestID,
		"matrix_id", matrix.ID,
		"strategy", string(matrix.Strategy),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromMatrix(matrix))
}

// HandleGetMatrix handles GET /matrices/{matrixID} requests.
func (h *Handler) HandleGetMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matrixID, ok := h.pathMatrixID(w, r)
	if !ok {
		return
	}

	matrix, err := h.service.GetMatrix(ctx, matrixID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatrix(matrix))
}

// HandleAddRule handles POST /matrices/{matrixID}/rules requests.
func (h *Handler) HandleAddRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	matrixID, ok := h.pathMatrixID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	matrix, err := h.service.AddRule(ctx, matrixID, req.ParsedRule())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatrix(matrix))
}

// HandleReplaceRules handles PUT /matrices/{matrixID}/rules requests.
func (h *Handler) HandleReplaceRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	matrixID, ok := h.pathMatrixID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReplaceRulesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	matrix, err := h.service.UpdateUserRules(ctx, matrixID, req.ParsedRules())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMatrix(matrix))
}

// HandleEvaluate handles POST /matrices/{matrixID}/evaluate requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	matrixID, ok := h.pathMatrixID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	evaluate := h.service.EvaluatePermissions
	if req.EmergencyOverride {
		evaluate = h.service.EvaluatePermissionsWithEmergencyOverride
	}
	evaluation, err := evaluate(ctx, matrixID, req.ParsedBeneficiaryID(), req.ResourceType, req.ResourceID, req.RequestContext())
	if err != nil {
		h.logger.ErrorContext(ctx, "permission evaluation failed",
			"request_id", requestID,
			"matrix_id", matrixID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "permissions evaluated",
		"request_id", requestID,
		"matrix_id", matrixID,
		"beneficiary_id", req.BeneficiaryID,
		"allowed", evaluation.Allowed,
		"access_level", string(evaluation.AccessLevel),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, evaluation)
}

// HandleRegisterBeneficiary handles POST /beneficiaries requests.
func (h *Handler) HandleRegisterBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterBeneficiaryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	beneficiary, err := h.service.RegisterBeneficiary(ctx, access.RegisterBeneficiaryParams{
		UserID:       userID,
		Name:         req.Name,
		Email:        req.Email,
		TrustLevel:   access.TrustLevel(req.TrustLevel),
		Relationship: req.Relationship,
		Groups:       req.Groups,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromBeneficiary(beneficiary))
}

// HandleListBeneficiaries handles GET /beneficiaries for the authenticated user.
func (h *Handler) HandleListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	beneficiaries, err := h.service.ListBeneficiaries(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := BeneficiariesResponse{Beneficiaries: make([]BeneficiaryResponse, len(beneficiaries))}
	for i, beneficiary := range beneficiaries {
		out.Beneficiaries[i] = FromBeneficiary(beneficiary)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleIssueGrant handles POST /grants requests.
func (h *Handler) HandleIssueGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueGrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	grant, err := h.service.IssueGrant(ctx, access.IssueGrantParams{
		UserID:        userID,
		BeneficiaryID: req.ParsedBeneficiaryID(),
		ResourceType:  req.ResourceType,
		ResourceID:    req.ResourceID,
		Level:         req.Level,
		Reason:        req.Reason,
		ExpiresAt:     req.ExpiresAt,
		MaxUses:       req.MaxUses,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromGrant(grant))
}

// HandleListGrants handles GET /grants for the authenticated user.
func (h *Handler) HandleListGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	grants, err := h.service.ListGrants(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := GrantsResponse{Grants: make([]GrantResponse, len(grants))}
	for i, grant := range grants {
		out.Grants[i] = FromGrant(grant)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleRevokeGrant handles POST /grants/{grantID}/revoke requests.
func (h *Handler) HandleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	grantID, err := id.ParseGrantID(chi.URLParam(r, "grantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeGrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.RevokeGrant(ctx, grantID, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetActivation handles PUT /activation requests.
func (h *Handler) HandleSetActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetActivationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.service.SetEmergencyActivation(ctx, userID, access.EmergencyActivation{
		Active:      req.Active,
		TriggerType: req.TriggerType,
		Severity:    evidence.Severity(req.Severity),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "emergency activation updated",
		"request_id", requestID,
		"user_id", userID,
		"active", req.Active,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) pathMatrixID(w http.ResponseWriter, r *http.Request) (id.MatrixID, bool) {
	matrixID, err := id.ParseMatrixID(chi.URLParam(r, "matrixID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.MatrixID{}, false
	}
	return matrixID, true
}
