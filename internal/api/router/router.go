package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxloop/feedback-platform/internal/config"
	"github.com/voxloop/feedback-platform/internal/http/handlers"
	"github.com/voxloop/feedback-platform/internal/http/middleware"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

// New assembles the HTTP surface: health and metrics are public, lifecycle
// hooks use the shared hook token, everything else requires an admin JWT.
func New(cfg *config.Config, h *handlers.Handler, logger *logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/hooks", func(r chi.Router) {
		r.Use(middleware.HookAuth(cfg.HookToken))
		r.Post("/feedback/created", h.FeedbackCreated)
		r.Post("/feedback/resolved", h.FeedbackResolved)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminJWTSecret, logger))
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Use(middleware.AccountContext)
			r.Post("/scan", h.TriggerScan)
			r.Get("/escalations", h.ListEscalations)
			r.Post("/escalations/{id}/resolve", h.ResolveEscalation)
			r.Get("/stats", h.GetStats)
			r.Get("/policies", h.ListPolicies)
			r.Post("/policies", h.CreatePolicy)
			r.Post("/policies/seed", h.SeedPolicies)
		})
	})

	return r
}
