// Package handler exposes evaluation schedules over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/scheduler"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Service defines the scheduler operations the handler needs.
type Service interface {
	Register(ctx context.Context, params scheduler.RegisterParams) (scheduler.EvaluationSchedule, error)
	Get(ctx context.Context, userID id.UserID) (scheduler.EvaluationSchedule, error)
}

// Handler wires schedule endpoints to the scheduler.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a scheduler handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts schedule endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/schedule", h.HandleRegister)
	r.Get("/schedule", h.HandleGet)
}

// RegisterRequest is the HTTP request body for PUT /schedule.
type RegisterRequest struct {
	Frequency string `json:"frequency"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Frequency = strings.TrimSpace(r.Frequency)
	if r.Frequency == "" {
		return dErrors.New(dErrors.CodeValidation, "frequency is required")
	}
	return nil
}

// ScheduleResponse is the HTTP representation of a schedule.
type ScheduleResponse struct {
	UserID    string     `json:"user_id"`
	Frequency string     `json:"frequency"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	Enabled   bool       `json:"enabled"`
}

func fromSchedule(s scheduler.EvaluationSchedule) ScheduleResponse {
	out := ScheduleResponse{
		UserID:    s.UserID.String(),
		Frequency: string(s.Frequency),
		Enabled:   s.Enabled,
	}
	if !s.NextRun.IsZero() {
		out.NextRun = &s.NextRun
	}
	if !s.LastRun.IsZero() {
		out.LastRun = &s.LastRun
	}
	return out
}

// HandleRegister handles PUT /schedule for the authenticated user.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	schedule, err := h.service.Register(ctx, scheduler.RegisterParams{
		UserID:    userID,
		Frequency: scheduler.Frequency(req.Frequency),
		Enabled:   req.Enabled,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "schedule registered",
		"request_id", requestID,
		"user_id", userID,
		"frequency", string(schedule.Frequency),
	)
	httputil.WriteJSON(w, http.StatusOK, fromSchedule(schedule))
}

// HandleGet handles GET /schedule for the authenticated user.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	schedule, err := h.service.Get(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSchedule(schedule))
}
