// Package handler exposes the trigger registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/trigger"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Service defines the trigger registry operations the handler needs.
type Service interface {
	Create(ctx context.Context, params trigger.CreateParams) (trigger.TriggerCondition, error)
	Get(ctx context.Context, triggerID id.TriggerID) (trigger.TriggerCondition, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]trigger.TriggerCondition, error)
	Update(ctx context.Context, triggerID id.TriggerID, params trigger.UpdateParams) (trigger.TriggerCondition, error)
	UpdateStatus(ctx context.Context, triggerID id.TriggerID, next trigger.Status) (trigger.TriggerCondition, error)
	Escalate(ctx context.Context, triggerID id.TriggerID) (trigger.TriggerCondition, error)
	Delete(ctx context.Context, triggerID id.TriggerID) error
}

// Handler wires trigger endpoints to the trigger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a trigger handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts trigger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/triggers", h.HandleCreate)
	r.Get("/triggers", h.HandleList)
	r.Get("/triggers/{triggerID}", h.HandleGet)
	r.Patch("/triggers/{triggerID}", h.HandleUpdate)
	r.Post("/triggers/{triggerID}/status", h.HandleUpdateStatus)
	r.Post("/triggers/{triggerID}/escalate", h.HandleEscalate)
	r.Delete("/triggers/{triggerID}", h.HandleDelete)
}

// HandleCreate handles POST /triggers requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateTriggerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, trigger.CreateParams{
		UserID:   userID,
		Type:     req.ParsedType(),
		Priority: req.Priority,
		Rules:    req.Rules,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "trigger create failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "trigger created",
		"request_id", requestID,
		"trigger_id", created.ID,
		"type", string(created.Type),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromTrigger(created))
}

// HandleList handles GET /triggers for the authenticated user.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	triggers, err := h.service.ListByUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTriggers(triggers))
}

// HandleGet handles GET /triggers/{triggerID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID, ok := h.pathTriggerID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(ctx, triggerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTrigger(found))
}

// HandleUpdate handles PATCH /triggers/{triggerID} requests.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	triggerID, ok := h.pathTriggerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateTriggerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.Update(ctx, triggerID, trigger.UpdateParams{
		Priority: req.Priority,
		Rules:    req.Rules,
		Metadata: req.Metadata,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTrigger(updated))
}

// HandleUpdateStatus handles POST /triggers/{triggerID}/status requests.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	triggerID, ok := h.pathTriggerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.UpdateStatus(ctx, triggerID, trigger.Status(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "trigger status updated",
		"request_id", requestID,
		"trigger_id", triggerID,
		"status", req.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, FromTrigger(updated))
}

// HandleEscalate handles POST /triggers/{triggerID}/escalate requests.
func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID, ok := h.pathTriggerID(w, r)
	if !ok {
		return
	}

	escalated, err := h.service.Escalate(ctx, triggerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTrigger(escalated))
}

// HandleDelete handles DELETE /triggers/{triggerID} requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID, ok := h.pathTriggerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, triggerID); err != nil {
		httputil.WriteError(w, err)
		return
	}
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

func (h *Handler) pathTriggerID(w http.ResponseWriter, r *http.Request) (id.TriggerID, bool) {
	triggerID, err := id.ParseTriggerID(chi.URLParam(r, "triggerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TriggerID{}, false
	}
	return triggerID, true
}
