// Package http assembles the full API surface: request metadata and
// authentication middleware, the per-module handlers, and the
// operational endpoints.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "heirloom/internal/access/handler"
	audithandler "heirloom/internal/audit/handler"
	schedulerhandler "heirloom/internal/scheduler/handler"
	enginehandler "heirloom/internal/trigger/engine/handler"
	triggerhandler "heirloom/internal/trigger/handler"
	verificationhandler "heirloom/internal/verification/handler"
	authmw "heirloom/pkg/platform/middleware/auth"
	"heirloom/pkg/platform/middleware/metadata"
)

// Deps carries the handlers the router mounts. Nil fields are skipped so
// tests can assemble partial routers.
type Deps struct {
	Triggers      *triggerhandler.Handler
	Evaluations   *enginehandler.Handler
	Access        *accesshandler.Handler
	Schedules     *schedulerhandler.Handler
	Verifications *verificationhandler.Handler
	Audit         *audithandler.Handler

	TokenValidator authmw.TokenValidator
	Logger         *slog.Logger
}

// New builds the chi router: /healthz and /metrics are open, everything
// else sits behind bearer-token authentication.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.TokenValidator != nil {
			r.Use(authmw.RequireAuth(deps.TokenValidator, deps.Logger))
		}
		if deps.Triggers != nil {
			deps.Triggers.Register(r)
		}
		if deps.Evaluations != nil {
			deps.Evaluations.Register(r)
		}
		if deps.Access != nil {
			deps.Access.Register(r)
		}
		if deps.Schedules != nil {
			deps.Schedules.Register(r)
		}
		if deps.Verifications != nil {
			deps.Verifications.Register(r)
		}
		if deps.Audit != nil {
			deps.Audit.Register(r)
		}
	})

	return r
}
