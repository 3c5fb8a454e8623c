package parties

import "github.com/go-chi/chi/v5"

// MountRoutes returns a mounter for the routes of one party kind.
func (h *Handler) MountRoutes(kind Kind) func(r chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.list(kind))
		r.Post("/", h.create(kind))
		r.Get("/{id}", h.show(kind))
	}
}
