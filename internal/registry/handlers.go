package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func GetVoterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid voter id", http.StatusBadRequest)
		return
	}

	store := NewStore(db.DB)
	voter, err := store.GetVoter(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVoterNotFound) {
			http.Error(w, "Voter not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(voter); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func SetPrimaryLocationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid voter id", http.StatusBadRequest)
		return
	}

	var input struct {
		Lat    float64 `json:"lat"`
		Lng    float64 `json:"lng"`
		Source string  `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if input.Source == "" {
		input.Source = "manual"
	}

	store := NewStore(db.DB)
	loc, err := store.SetPrimaryLocation(r.Context(), id, input.Lat, input.Lng, input.Source)
	if err != nil {
		if errors.Is(err, ErrVoterNotFound) {
			http.Error(w, "Voter not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to set primary location", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loc)
}

// ImportHandler accepts already-parsed voter rows and starts the import job
// in the background, returning its id immediately.
func ImportHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Rows     []VoterUpsert `json:"rows"`
		FailFast bool          `json:"fail_fast"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(input.Rows) == 0 {
		http.Error(w, "No rows to import", http.StatusBadRequest)
		return
	}

	im := &Importer{
		Jobs:     jobs.NewGormStore(db.DB),
		Voters:   NewStore(db.DB),
		FailFast: input.FailFast,
	}
	job, err := im.Start(r.Context())
	if err != nil {
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := im.Run(context.Background(), job.ID, input.Rows); err != nil {
			log.Printf("[registry] import job %s: %v", job.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID.String()})
}
