// Package handler exposes the audit chain over HTTP: per-user listing
// plus whole-chain verification.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/audit"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Service defines the audit operations the handler needs.
type Service interface {
	List(ctx context.Context, userID id.UserID) ([]audit.Entry, error)
	Verify(ctx context.Context) (int, error)
}

// Handler wires audit endpoints to the audit publisher.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
	r.Get("/audit/verify", h.HandleVerify)
}

// EntryResponse is the HTTP representation of one chain entry.
type EntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason,omitempty"`
	Risk      string    `json:"risk"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Hash      string    `json:"hash"`
}

// EntriesResponse wraps a chain listing.
type EntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
}

// VerifyResponse reports chain integrity.
type VerifyResponse struct {
	Intact     bool `json:"intact"`
	BrokenAt   int  `json:"broken_at,omitempty"`
	EntryCount int  `json:"entry_count,omitempty"`
}

// HandleList handles GET /audit for the authenticated user.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	entries, err := h.service.List(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := EntriesResponse{Entries: make([]EntryResponse, len(entries))}
	for i, entry := range entries {
		out.Entries[i] = EntryResponse{
			Timestamp: entry.Event.Timestamp,
			Subject:   entry.Event.Subject,
			Action:    entry.Event.Action,
			Result:    entry.Event.Result,
			Reason:    entry.Event.Reason,
			Risk:      string(entry.Event.Risk),
			RequestID: entry.Event.RequestID,
			ActorID:   entry.Event.ActorID,
			Hash:      entry.Hash,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleVerify handles GET /audit/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	broken, err := h.service.Verify(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "chain verification failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if broken >= 0 {
		h.logger.ErrorContext(ctx, "audit chain broken", "index", broken)
		httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Intact: false, BrokenAt: broken})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Intact: true})
}
