/**
 * @description
 * This file sets up the HTTP router for the bank sync service using the go-chi/chi router.
 * It applies middleware for logging, CORS, and authentication, and maps the bank sync
 * and insights routes to their handlers.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultRequestTimeout bounds every request unless a longer sync timeout needs more room.
const DefaultRequestTimeout = 60 * time.Second

// RouterOptions carries the auth and timeout settings of the router.
type RouterOptions struct {
	JWTSecret string
	JWTIssuer string
	// RequestTimeout is raised to DefaultRequestTimeout when smaller.
	RequestTimeout time.Duration
}

// NewRouter creates a new Chi router and registers the bank sync and insights routes.
func NewRouter(bank *BankSyncHandlers, insights *InsightsHandlers, opts RouterOptions) *chi.Mux {
	timeout := opts.RequestTimeout
	if timeout < DefaultRequestTimeout {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(opts.JWTSecret, opts.JWTIssuer))

		r.Route("/bank-sync", func(r chi.Router) {
			r.Get("/providers", bank.ListProvidersHandler)
			r.Post("/connect", bank.ConnectHandler)
			r.Get("/connections", bank.ListConnectionsHandler)

			r.Route("/connections/{connectionID}", func(r chi.Router) {
				r.Post("/confirm", bank.ConfirmConsentHandler)
				r.Post("/select-account", bank.SelectAccountHandler)
				r.Post("/sync", bank.SyncHandler)
				r.Post("/refresh", bank.RefreshHandler)
				r.Get("/logs", bank.ListSyncLogsHandler)
				r.Delete("/", bank.DisconnectHandler)
			})
		})

		r.Get("/insights/budget-suggestion", insights.BudgetSuggestionHandler)
	})

	return r
}
