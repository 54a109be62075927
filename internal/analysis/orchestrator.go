package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// VoterSource is the ordered eligible-voter cursor (see registry.Store).
type VoterSource interface {
	EligibleForAnalysis(ctx context.Context, f registry.Filters, after int64, limit int) ([]registry.EligibleVoter, int64, error)
}

// RunStore persists runs and their result snapshots.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	GetRunByJob(ctx context.Context, jobID uuid.UUID) (*Run, error)
	InsertResults(tx *gorm.DB, results []Result) error
	FinalizeRun(ctx context.Context, runID uuid.UUID) (*Run, error)
}

// Orchestrator wires the matcher and comparator into the batch runner to
// produce a timestamped analysis snapshot.
type Orchestrator struct {
	Jobs       jobs.Store
	Voters     VoterSource
	Runs       RunStore
	Matcher    *Matcher
	Comparator *Comparator

	ChunkSize   int
	Parallelism int // matcher lookups fanned out per chunk
	FailFast    bool
}

func (o *Orchestrator) parallelism() int {
	if o.Parallelism <= 0 {
		return 8
	}
	return o.Parallelism
}

// StartRun validates the filters and creates the run and its pending job.
// Nothing executes until Execute is called (typically on a worker goroutine).
func (o *Orchestrator) StartRun(ctx context.Context, f registry.Filters) (*Run, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	job := &jobs.Job{Kind: jobs.KindAnalyze, FailFast: o.FailFast}
	if err := o.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	run := &Run{
		JobID:        job.ID,
		FilterCounty: f.County,
		FilterStatus: f.Status,
	}
	if err := o.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute drives the run's job to a terminal state. Invoking it on a failed
// or stale job resumes from the persisted checkpoint; a live job is rejected
// with jobs.ErrJobActive.
func (o *Orchestrator) Execute(ctx context.Context, jobID uuid.UUID) error {
	run, err := o.Runs.GetRunByJob(ctx, jobID)
	if err != nil {
		return err
	}
	filters := registry.Filters{County: run.FilterCounty, Status: run.FilterStatus}

	cursor := func(ctx context.Context, after int64, limit int) ([]registry.EligibleVoter, int64, error) {
		return o.Voters.EligibleForAnalysis(ctx, filters, after, limit)
	}

	process := func(ctx context.Context, chunk []registry.EligibleVoter) (jobs.ChunkStats, jobs.ApplyFunc, error) {
		results := make([]*Result, len(chunk))
		recErrs := make([]error, len(chunk))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.parallelism())
		for i := range chunk {
			i := i
			g.Go(func() error {
				res, err := o.analyzeVoter(gctx, run.ID, chunk[i])
				if err != nil {
					recErrs[i] = err
					return nil // per-record, not chunk-fatal
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return jobs.ChunkStats{}, nil, err
		}

		var stats jobs.ChunkStats
		keep := make([]Result, 0, len(chunk))
		for i := range chunk {
			if recErrs[i] != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, jobs.RecordError{
					Key:     chunk[i].VoterID.String(),
					Message: recErrs[i].Error(),
					At:      time.Now(),
				})
				continue
			}
			stats.Succeeded++
			keep = append(keep, *results[i])
		}

		apply := func(tx *gorm.DB) error {
			return o.Runs.InsertResults(tx, keep)
		}
		return stats, apply, nil
	}

	if err := jobs.Run(ctx, o.Jobs, jobID, jobs.Config{ChunkSize: o.ChunkSize}, cursor, process); err != nil {
		return err
	}

	if _, err := o.Runs.FinalizeRun(ctx, run.ID); err != nil {
		return fmt.Errorf("run %s finished but summary failed: %w", run.ID, err)
	}
	return nil
}

// analyzeVoter produces one voter's result. A voter with no primary point is
// recorded unable-to-analyze directly; the matcher is never consulted for it.
func (o *Orchestrator) analyzeVoter(ctx context.Context, runID uuid.UUID, v registry.EligibleVoter) (*Result, error) {
	res := &Result{
		RunID:      runID,
		VoterID:    v.VoterID,
		Registered: registry.JSONMap(v.Registered),
		Determined: registry.JSONMap{},
	}

	if v.Point == nil {
		res.MatchStatus = string(StatusUnableToAnalyze)
		res.Mismatches = MismatchList{}
		return res, nil
	}

	types := make([]string, 0, len(v.Registered))
	for t := range v.Registered {
		types = append(types, t)
	}
	sort.Strings(types)

	determined := map[string]string{}
	needsReview := false
	for _, t := range types {
		id, tie, found, err := o.Matcher.Resolve(ctx, *v.Point, t)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", t, err)
		}
		if !found {
			continue
		}
		determined[t] = id
		if tie {
			needsReview = true
		}
	}

	status, details := o.Comparator.Classify(v.Registered, determined)
	res.Determined = registry.JSONMap(determined)
	res.MatchStatus = string(status)
	res.Mismatches = MismatchList(details)
	res.NeedsReview = needsReview
	return res, nil
}
