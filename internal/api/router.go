package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lookout/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events; it also accepts the
// token as ?access_token=.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Lookups.
		r.Get("/lookup", h.Lookup)
		r.Get("/sightings", h.Sightings)
		r.Get("/board", h.Board)

		// Confirmed mutations.
		r.Patch("/reports/{id}/found", h.MarkFound)
		r.Patch("/sightings/{id}/resolved", h.MarkResolved)

		// Submissions.
		r.Post("/reports", h.SubmitReport)
		r.Post("/sightings", h.SubmitSighting)

		// Photos.
		r.Post("/photos", h.UploadPhoto)
		r.Get("/photos", h.ListPhotos)
		r.Delete("/photos/{name}", h.DeletePhoto)

		r.Get("/dial", h.Dial)
	})

	if sseHandler != nil {
		r.With(StreamAuthMiddleware(authEnabled, token)).Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
