package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/EmpoweredVote/VR-Backend/internal/analysis"
	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/geocode"
	"github.com/EmpoweredVote/VR-Backend/internal/middleware"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")
	db.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	registry.Init()
	analysis.Init()

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RequestLogger)
	r.Get("/", RootHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/registry", registry.SetupRoutes())
	r.Mount("/geocode", geocode.SetupRoutes())
	r.Mount("/analysis", analysis.SetupRoutes())

	fmt.Println("Server listening on port :" + port + "...")

	http.ListenAndServe("0.0.0.0:"+port, r)
}
