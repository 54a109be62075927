package registry

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/voters/{id}", GetVoterHandler)
	r.Post("/voters/{id}/location", SetPrimaryLocationHandler)
	r.Post("/import", ImportHandler)

	return r
}
