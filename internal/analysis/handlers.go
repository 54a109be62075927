package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StartRunHandler validates the filters, creates the run, and kicks off the
// job on a background goroutine. Configuration errors are rejected here,
// before any job row exists.
func StartRunHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		County   string `json:"county,omitempty"`
		Status   string `json:"status,omitempty"`
		FailFast bool   `json:"fail_fast,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	o := NewOrchestrator()
	o.FailFast = input.FailFast

	run, err := o.StartRun(r.Context(), registry.Filters{County: input.County, Status: input.Status})
	if err != nil {
		if errors.Is(err, registry.ErrInvalidFilters) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to start run", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := o.Execute(context.Background(), run.JobID); err != nil {
			log.Printf("[analysis] run %s: %v", run.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"run_id": run.ID.String(),
		"job_id": run.JobID.String(),
	})
}

// ResumeJobHandler re-enters a failed or interrupted job. A live job is
// rejected with 409.
func ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	store := jobs.NewGormStore(db.DB)
	job, err := store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	switch job.Kind {
	case jobs.KindAnalyze:
		o := NewOrchestrator()
		go func() {
			if err := o.Execute(context.Background(), jobID); err != nil {
				log.Printf("[analysis] resume job %s: %v", jobID, err)
			}
		}()
	default:
		http.Error(w, "Job kind is not resumable here", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID.String()})
}

func JobStatusHandler(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func GetRunHandler(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	run, err := NewGormRunStore(db.DB).GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func ResultsHandler(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	store := NewGormRunStore(db.DB)
	if _, err := store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	var filters ResultFilters
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filters.Statuses = append(filters.Statuses, s)
			}
		}
	}
	if v := r.URL.Query().Get("needs_review"); v != "" {
		b := v == "true" || v == "1"
		filters.NeedsReview = &b
	}

	results, total, err := store.GetResults(r.Context(), runID, filters, page, perPage)
	if err != nil {
		http.Error(w, "Failed to load results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":  runID,
		"total":   total,
		"page":    page,
		"results": results,
	})
}

func CompareRunsHandler(w http.ResponseWriter, r *http.Request) {
	runA, errA := uuid.Parse(r.URL.Query().Get("a"))
	runB, errB := uuid.Parse(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		http.Error(w, "Query params a and b must be run ids", http.StatusBadRequest)
		return
	}

	diff, err := NewGormRunStore(db.DB).CompareRuns(r.Context(), runA, runB)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to compare runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(diff)
}

func DeleteRunHandler(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	if err := NewGormRunStore(db.DB).DeleteRun(r.Context(), runID); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete run", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
