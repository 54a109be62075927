package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Geocoder is the lookup the job depends on; *Client satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// VoterStore is the slice of the registry the job reads and writes.
type VoterStore interface {
	MissingPrimaryLocation(ctx context.Context, after int64, limit int) ([]registry.Voter, int64, error)
	HasPrimaryLocation(ctx context.Context, voterID uuid.UUID) (bool, error)
	InsertPrimaryLocations(tx *gorm.DB, locs []registry.VoterLocation) error
}

// Runner drives a resumable geocode job: every voter without a primary point
// gets one looked up from its registration address. Lookup failures are
// retried with backoff, then recorded against the voter; the job keeps going.
type Runner struct {
	Jobs   jobs.Store
	Voters VoterStore
	Client Geocoder

	ChunkSize int
	FailFast  bool

	// Sleep overrides the backoff wait; tests inject a fake.
	Sleep jobs.SleepFunc
}

// Start creates a pending geocode job. Run executes it.
func (r *Runner) Start(ctx context.Context) (*jobs.Job, error) {
	if r.Client == nil {
		return nil, errors.New("geocoding client not configured (GOOGLE_MAPS_API_KEY unset)")
	}
	job := &jobs.Job{Kind: jobs.KindGeocode, FailFast: r.FailFast}
	if err := r.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create geocode job: %w", err)
	}
	return job, nil
}

// Run claims the job and processes voters missing a primary point in
// checkpoint order. Safe to call again after a failure; committed chunks are
// never re-geocoded.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) error {
	if r.Client == nil {
		return errors.New("geocoding client not configured (GOOGLE_MAPS_API_KEY unset)")
	}

	cursor := func(ctx context.Context, after int64, limit int) ([]registry.Voter, int64, error) {
		return r.Voters.MissingPrimaryLocation(ctx, after, limit)
	}

	return jobs.Run(ctx, r.Jobs, jobID, jobs.Config{ChunkSize: r.ChunkSize}, cursor, r.processChunk)
}

func (r *Runner) processChunk(ctx context.Context, voters []registry.Voter) (jobs.ChunkStats, jobs.ApplyFunc, error) {
	var stats jobs.ChunkStats
	locs := make([]registry.VoterLocation, 0, len(voters))

	for _, v := range voters {
		// A concurrent manual fix may have landed a point since the cursor ran.
		has, err := r.Voters.HasPrimaryLocation(ctx, v.ID)
		if err != nil {
			return stats, nil, fmt.Errorf("location check for %s: %w", v.ID, err)
		}
		if has {
			stats.Succeeded++
			continue
		}

		if v.Address == "" {
			stats.Failed++
			stats.Errors = append(stats.Errors, jobs.RecordError{
				Key:     v.ExternalID,
				Message: "no address on file",
				At:      time.Now(),
			})
			continue
		}

		var result *Result
		err = jobs.WithRetry(ctx, jobs.RetryAttempts, jobs.RetryBaseDelay, r.Sleep, func(ctx context.Context) error {
			var gerr error
			result, gerr = r.Client.Geocode(ctx, v.Address)
			return gerr
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil, ctx.Err()
			}
			stats.Failed++
			stats.Errors = append(stats.Errors, jobs.RecordError{
				Key:     v.ExternalID,
				Message: err.Error(),
				At:      time.Now(),
			})
			continue
		}

		stats.Succeeded++
		locs = append(locs, registry.VoterLocation{
			VoterID:   v.ID,
			Lat:       result.Lat,
			Lng:       result.Lng,
			Source:    "google",
			IsPrimary: true,
		})
	}

	apply := func(tx *gorm.DB) error {
		return r.Voters.InsertPrimaryLocations(tx, locs)
	}
	return stats, apply, nil
}
