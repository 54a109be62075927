package analysis

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Post("/runs", StartRunHandler)
	r.Get("/runs/{id}", GetRunHandler)
	r.Delete("/runs/{id}", DeleteRunHandler)
	r.Get("/runs/{id}/results", ResultsHandler)
	r.Get("/compare", CompareRunsHandler)

	r.Get("/jobs/{id}", JobStatusHandler)
	r.Post("/jobs/{id}/resume", ResumeJobHandler)

	return r
}
