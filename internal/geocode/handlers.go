package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// NewRunner builds the production runner over the shared DB. Returns an error
// when no geocoding client is configured.
func NewRunner() (*Runner, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("geocoding client not configured (GOOGLE_MAPS_API_KEY unset)")
	}

	chunk := jobs.DefaultChunkSize
	if v := os.Getenv("GEOCODE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunk = n
		}
	}

	return &Runner{
		Jobs:      jobs.NewGormStore(db.DB),
		Voters:    registry.NewStore(db.DB),
		Client:    client,
		ChunkSize: chunk,
	}, nil
}

// StartJobHandler creates a geocode job over every voter missing a primary
// point and runs it on a background goroutine.
func StartJobHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FailFast bool `json:"fail_fast,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	runner, err := NewRunner()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	runner.FailFast = input.FailFast

	job, err := runner.Start(r.Context())
	if err != nil {
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := runner.Run(context.Background(), job.ID); err != nil {
			log.Printf("[geocode] job %s: %v", job.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID.String()})
}

// ResumeJobHandler re-enters a failed or interrupted geocode job.
func ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := jobs.NewGormStore(db.DB).Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	if job.Kind != jobs.KindGeocode {
		http.Error(w, "Job kind is not resumable here", http.StatusConflict)
		return
	}

	runner, err := NewRunner()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	go func() {
		if err := runner.Run(context.Background(), jobID); err != nil {
			log.Printf("[geocode] resume job %s: %v", jobID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID.String()})
}
