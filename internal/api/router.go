/**
 * @description
 * This file sets up the HTTP router for the sync service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the necessary middleware. The webhook endpoint stays outside the
 * authenticated group: the provider authenticates with an HMAC signature,
 * not a bearer token.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SyncRoutes creates and returns the router for the sync service.
func SyncRoutes(accounts *AccountHandlers, webhooks *WebhookHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider webhook deliveries, authenticated by signature.
	r.Post("/webhooks/mono", webhooks.HandleMonoWebhook)

	// Group routes that require a bearer token.
	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/accounts/link", accounts.HandleLinkAccount)
		r.Get("/accounts", accounts.HandleListAccounts)
		r.Post("/accounts/{accountID}/reauthorize", accounts.HandleReauthorize)
		r.Post("/accounts/{accountID}/sync", accounts.HandleManualSync)
		r.Post("/accounts/{accountID}/unlink", accounts.HandleUnlinkAccount)

		r.Get("/transactions", accounts.HandleListTransactions)
	})

	return r
}
