package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoterUpserter is the write the importer needs; *Store satisfies it.
type VoterUpserter interface {
	UpsertVoters(tx *gorm.DB, rows []VoterUpsert) error
}

// Importer is the import specialization of the batch runner: it upserts
// already-parsed voter rows in checkpointed chunks so a huge voter file can be
// resumed mid-load.
type Importer struct {
	Jobs     jobs.Store
	Voters   VoterUpserter
	FailFast bool
	Chunk    int
}

// Start creates the import job in pending state and returns it without
// running anything.
func (im *Importer) Start(ctx context.Context) (*jobs.Job, error) {
	job := &jobs.Job{Kind: jobs.KindImport, FailFast: im.FailFast}
	if err := im.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Run drives the job over rows. The cursor key is the 1-based row offset:
// the source file is an ordered, append-only input set, so offsets are stable.
func (im *Importer) Run(ctx context.Context, jobID uuid.UUID, rows []VoterUpsert) error {
	cursor := func(ctx context.Context, after int64, limit int) ([]VoterUpsert, int64, error) {
		if after >= int64(len(rows)) {
			return nil, after, nil
		}
		end := after + int64(limit)
		if end > int64(len(rows)) {
			end = int64(len(rows))
		}
		return rows[after:end], end, nil
	}

	process := func(ctx context.Context, chunk []VoterUpsert) (jobs.ChunkStats, jobs.ApplyFunc, error) {
		var stats jobs.ChunkStats
		valid := make([]VoterUpsert, 0, len(chunk))
		for _, r := range chunk {
			if r.ExternalID == "" {
				stats.Failed++
				stats.Errors = append(stats.Errors, jobs.RecordError{
					Key:     fmt.Sprintf("%s %s", r.FirstName, r.LastName),
					Message: "missing external id",
					At:      time.Now(),
				})
				continue
			}
			stats.Succeeded++
			valid = append(valid, r)
		}

		apply := func(tx *gorm.DB) error {
			return im.Voters.UpsertVoters(tx, valid)
		}
		return stats, apply, nil
	}

	return jobs.Run(ctx, im.Jobs, jobID, jobs.Config{ChunkSize: im.Chunk}, cursor, process)
}
