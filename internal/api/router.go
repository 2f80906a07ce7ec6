package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mediatag/internal/library"
	"github.com/starford/mediatag/internal/metrics"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// Request metrics are recorded for every route.
func NewRouter(svc *library.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(AuthMiddleware(authEnabled, token))

	// Records.
	r.Get("/records", h.ListRecords)
	r.Get("/records/*", h.GetRecord)
	r.Put("/records/*", h.PutRecord)
	r.Patch("/records/*", h.PatchRecord)

	// Search and tag vocabulary.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)

	// Library maintenance.
	r.Post("/rescan", h.Rescan)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
