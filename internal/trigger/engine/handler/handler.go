// Package handler exposes on-demand trigger evaluation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/trigger/engine"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Evaluator defines the engine operations the handler needs.
type Evaluator interface {
	TriggerEvaluation(ctx context.Context, userID id.UserID) ([]engine.EvaluationResult, error)
	History(userID id.UserID) []engine.EvaluationResult
}

// Handler wires evaluation endpoints to the trigger engine.
type Handler struct {
	engine Evaluator
	logger *slog.Logger
}

// New constructs an evaluation handler with its dependencies.
func New(evaluator Evaluator, logger *slog.Logger) *Handler {
	return &Handler{engine: evaluator, logger: logger}
}

// Register mounts evaluation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/evaluations", h.HandleEvaluate)
	r.Get("/evaluations/history", h.HandleHistory)
}

// EvaluationResponse is the HTTP representation of one evaluation result.
type EvaluationResponse struct {
	TriggerID       string            `json:"trigger_id"`
	Triggered       bool              `json:"triggered"`
	Confidence      float64           `json:"confidence"`
	Reason          string            `json:"reason"`
	RequiredActions []string          `json:"required_actions,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// EvaluationsResponse wraps a batch of evaluation results.
type EvaluationsResponse struct {
	Results []EvaluationResponse `json:"results"`
}

func fromResults(results []engine.EvaluationResult) EvaluationsResponse {
	out := EvaluationsResponse{Results: make([]EvaluationResponse, len(results))}
	for i, result := range results {
		actions := make([]string, len(result.RequiredActions))
		for j, action := range result.RequiredActions {
			actions[j] = string(action)
		}
		out.Results[i] = EvaluationResponse{
			TriggerID:       result.TriggerID.String(),
			Triggered:       result.Triggered,
			Confidence:      result.Confidence,
			Reason:          result.Reason,
			RequiredActions: actions,
			Metadata:        result.Metadata,
			Timestamp:       result.Timestamp,
		}
	}
	return out
}

// HandleEvaluate handles POST /evaluations: one full evaluation pass over
// the authenticated user's non-terminal triggers.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	results, err := h.engine.TriggerEvaluation(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "evaluation failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "evaluation complete",
		"request_id", requestID,
		"user_id", userID,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromResults(results))
}

// HandleHistory handles GET /evaluations/history for the authenticated user.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromResults(h.engine.History(userID)))
}
