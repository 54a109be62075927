package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobActive is returned when a second run is attempted against a job
	// whose running lease is still live.
	ErrJobActive = errors.New("job already running")
	// ErrJobTerminal is returned when claiming a completed job.
	ErrJobTerminal = errors.New("job already completed")
)

// ChunkStats is what a chunk callback reports back to the runner.
type ChunkStats struct {
	Succeeded int64
	Failed    int64
	Errors    []RecordError
}

// ApplyFunc persists a chunk's domain writes. It runs inside the same
// transaction that advances the job's checkpoint and counters, so either both
// land or neither does. tx is nil for stores without a database (tests).
type ApplyFunc func(tx *gorm.DB) error

// Store persists job state. Job state lives here, not in process memory, so a
// run survives process restarts.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// Claim transitions the job to running. It succeeds from pending or
	// failed, and from running only when the heartbeat (updated_at) is older
	// than staleAfter — a live run is rejected with ErrJobActive.
	Claim(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (*Job, error)

	// CommitChunk atomically applies the chunk's writes and advances the
	// job's checkpoint, counters and error log. On error nothing is visible.
	CommitChunk(ctx context.Context, job *Job, checkpoint int64, delta ChunkStats, apply ApplyFunc) error

	// Finalize moves the job to a terminal status. cause may be nil.
	Finalize(ctx context.Context, job *Job, status string, cause error) error
}
