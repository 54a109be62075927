package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/EmpoweredVote/VR-Backend/internal/analysis"
	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	county   = flag.String("county", "", "Restrict the run to one county")
	status   = flag.String("status", "", "Restrict the run to one registration status (active, inactive, purged)")
	failFast = flag.Bool("fail-fast", false, "Stop after the first chunk containing a record failure")
	resume   = flag.String("resume", "", "Job ID of a failed or interrupted run to resume instead of starting a new one")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()

	db.Connect()
	registry.Init()
	analysis.Init()

	o := analysis.NewOrchestrator()
	o.FailFast = *failFast

	ctx := context.Background()

	var jobID uuid.UUID
	if *resume != "" {
		parsed, err := uuid.Parse(*resume)
		if err != nil {
			log.Fatalf("--resume is not a valid job id: %v", err)
		}
		jobID = parsed
		fmt.Printf("Resuming analysis job %s\n", jobID)
	} else {
		run, err := o.StartRun(ctx, registry.Filters{County: *county, Status: *status})
		if err != nil {
			log.Fatalf("start run: %v", err)
		}
		jobID = run.JobID
		fmt.Printf("Started run %s (job %s)\n", run.ID, jobID)
		if *county != "" {
			fmt.Printf("  county: %s\n", *county)
		}
		if *status != "" {
			fmt.Printf("  status: %s\n", *status)
		}
	}

	if err := o.Execute(ctx, jobID); err != nil {
		// The checkpoint is durable; rerun with --resume to pick up where this
		// run stopped.
		log.Printf("run did not complete: %v", err)
		fmt.Printf("Resume with: analyze --resume %s\n", jobID)
		os.Exit(1)
	}

	run, err := o.Runs.GetRunByJob(ctx, jobID)
	if err != nil {
		log.Fatalf("load run summary: %v", err)
	}

	fmt.Printf("========================================\n")
	fmt.Printf("Run %s complete\n", run.ID)
	fmt.Printf("  analyzed:          %d\n", run.TotalAnalyzed)
	fmt.Printf("  match:             %d\n", run.MatchCount)
	fmt.Printf("  mismatch:          %d\n", run.MismatchCount)
	fmt.Printf("  unable to analyze: %d\n", run.UnableToAnalyzeCount)
	fmt.Printf("========================================\n")
}
