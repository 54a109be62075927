package geocode

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Post("/jobs", StartJobHandler)
	r.Post("/jobs/{id}/resume", ResumeJobHandler)

	return r
}
