package analysis

import (
	"log"
	"os"
	"strconv"

	"github.com/EmpoweredVote/VR-Backend/internal/boundary"
	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
)

// Classes is the active boundary-type class table, loaded in Init.
var Classes *ClassTable

func Init() {
	if err := db.EnsureSchema(db.DB, "analysis"); err != nil {
		log.Fatal("Failed to ensure schema analysis: ", err)
	}

	if err := db.DB.AutoMigrate(&Run{}, &Result{}); err != nil {
		log.Fatal("Failed to auto-migrate analysis tables", err)
	}

	// A run is a snapshot: deleting it takes its results with it.
	if err := db.DB.Exec(`
		ALTER TABLE analysis.results
		DROP CONSTRAINT IF EXISTS results_run_fk;
	`).Error; err != nil {
		log.Fatal("Failed to drop results_run_fk", err)
	}
	if err := db.DB.Exec(`
		ALTER TABLE analysis.results
		ADD CONSTRAINT results_run_fk
		FOREIGN KEY (run_id) REFERENCES analysis.runs(id) ON DELETE CASCADE;
	`).Error; err != nil {
		log.Fatal("Failed to create results_run_fk", err)
	}

	Classes = DefaultClasses()
	if path := os.Getenv("BOUNDARY_CLASSES_PATH"); path != "" {
		loaded, err := LoadClasses(path)
		if err != nil {
			log.Printf("[analysis] WARNING: %v; using default boundary classes", err)
		} else {
			Classes = loaded
			log.Printf("[analysis] Loaded boundary classes from %s", path)
		}
	}
}

// NewOrchestrator builds the production orchestrator over the shared DB.
func NewOrchestrator() *Orchestrator {
	chunk := jobs.DefaultChunkSize
	if v := os.Getenv("ANALYSIS_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunk = n
		}
	}

	return &Orchestrator{
		Jobs:       jobs.NewGormStore(db.DB),
		Voters:     registry.NewStore(db.DB),
		Runs:       NewGormRunStore(db.DB),
		Matcher:    &Matcher{Boundaries: boundary.NewPostgresStore(db.DB)},
		Comparator: &Comparator{Classes: Classes},
		ChunkSize:  chunk,
	}
}
