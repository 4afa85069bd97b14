// Package handler exposes verification requests over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"heirloom/internal/verification"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// Store defines the verification operations the handler needs.
type Store interface {
	Get(ctx context.Context, requestID uuid.UUID, now time.Time) (verification.Request, error)
	Advance(ctx context.Context, requestID uuid.UUID, next verification.Status, token string, now time.Time) (verification.Request, error)
	ListByUser(ctx context.Context, userID id.UserID, now time.Time) ([]verification.Request, error)
}

// Handler wires verification endpoints to the verification store.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verifications", h.HandleList)
	r.Get("/verifications/{requestID}", h.HandleGet)
	r.Post("/verifications/{requestID}/advance", h.HandleAdvance)
}

// RequestResponse is the HTTP representation of a verification request.
type RequestResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TriggerID string    `json:"trigger_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestsResponse wraps a verification listing.
type RequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
}

func fromRequest(r verification.Request) RequestResponse {
	return RequestResponse{
		ID:        r.ID.String(),
		UserID:    r.UserID.String(),
		TriggerID: r.TriggerID.String(),
		Status:    string(r.Status),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// AdvanceRequest is the HTTP request body for POST /verifications/{id}/advance.
// Token carries the one-time approval code; it is required only when
// completing the request.
type AdvanceRequest struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *AdvanceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

// HandleList handles GET /verifications for the authenticated user.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	requests, err := h.store.ListByUser(ctx, userID, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list verifications"))
		return
	}
	out := RequestsResponse{Requests: make([]RequestResponse, len(requests))}
	for i, request := range requests {
		out.Requests[i] = fromRequest(request)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /verifications/{requestID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := h.pathRequestID(w, r)
	if !ok {
		return
	}

	request, err := h.store.Get(ctx, requestID, requestcontext.Now(ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "verification request not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "get verification"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRequest(request))
}

// HandleAdvance handles POST /verifications/{requestID}/advance requests.
func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.RequestID(ctx)

	requestID, ok := h.pathRequestID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AdvanceRequest](w, r, h.logger, ctx, correlationID)
	if !ok {
		return
	}

	advanced, err := h.store.Advance(ctx, requestID, verification.Status(req.Status), req.Token, requestcontext.Now(ctx))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "verification request not found"))
		return
	case errors.Is(err, sentinel.ErrExpired):
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvariantViolation, "verification request has expired"))
		return
	case errors.Is(err, sentinel.ErrInvalidState):
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvariantViolation, "illegal status transition"))
		return
	case errors.Is(err, sentinel.ErrTokenMismatch):
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "approval token does not match"))
		return
	case err != nil:
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "advance verification"))
		return
	}

	h.logger.InfoContext(ctx, "verification advanced",
		"request_id", correlationID,
		"verification_id", requestID.String(),
		"status", req.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, fromRequest(advanced))
}

func (h *Handler) pathRequestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "requestID")
	requestID, err := uuid.Parse(raw)
	if err != nil || requestID == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "request_id must be a valid UUID"))
		return uuid.Nil, false
	}
	return requestID, true
}
