package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize  = 500
	DefaultStaleAfter = 10 * time.Minute
)

// Cursor produces the ordered input set, keyset-style: return up to limit
// records whose cursor key is strictly greater than after, plus the key of the
// last record returned. The key must be monotonic and immutable (a creation
// order surrogate, never a mutable attribute), so the sequence is stable under
// insert-at-end and under updates to already-seen rows.
type Cursor[T any] func(ctx context.Context, after int64, limit int) ([]T, int64, error)

// ChunkFunc performs the domain work for one chunk and returns per-record
// stats plus an ApplyFunc holding the chunk's writes. The writes are committed
// together with the checkpoint advance; a returned error is chunk-fatal.
type ChunkFunc[T any] func(ctx context.Context, records []T) (ChunkStats, ApplyFunc, error)

// Config tunes a run. Zero values fall back to the defaults above.
type Config struct {
	ChunkSize  int
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Run drives one job to a terminal state: claim the running lease, loop
// fetch-process-commit from the persisted checkpoint, and finalize. Re-running
// a failed (or stale running) job resumes after the checkpoint; records at or
// before it are never reprocessed. Cancellation is honored between chunks,
// never mid-chunk.
func Run[T any](ctx context.Context, store Store, id uuid.UUID, cfg Config, cursor Cursor[T], process ChunkFunc[T]) error {
	cfg = cfg.withDefaults()

	job, err := store.Claim(ctx, id, cfg.StaleAfter)
	if err != nil {
		return err
	}
	start := time.Now()
	log.Printf("[jobs] %s job %s running (checkpoint=%d processed=%d)",
		job.Kind, job.ID, job.Checkpoint, job.Processed)

	for {
		if err := ctx.Err(); err != nil {
			return fail(ctx, store, job, start, fmt.Errorf("canceled between chunks: %w", err))
		}

		records, next, err := cursor(ctx, job.Checkpoint, cfg.ChunkSize)
		if err != nil {
			return fail(ctx, store, job, start, fmt.Errorf("cursor after %d: %w", job.Checkpoint, err))
		}
		if len(records) == 0 {
			break
		}

		stats, apply, err := process(ctx, records)
		if err != nil {
			return fail(ctx, store, job, start, fmt.Errorf("chunk after %d: %w", job.Checkpoint, err))
		}

		if err := store.CommitChunk(ctx, job, next, stats, apply); err != nil {
			return fail(ctx, store, job, start, err)
		}
		observeChunk(job.Kind, stats)

		if job.FailFast && stats.Failed > 0 {
			return fail(ctx, store, job, start,
				fmt.Errorf("fail-fast: %d record failure(s) in chunk ending at %d", stats.Failed, next))
		}
	}

	if err := store.Finalize(ctx, job, StatusCompleted, nil); err != nil {
		return err
	}
	observeJob(job.Kind, StatusCompleted, time.Since(start))
	log.Printf("[jobs] %s job %s completed: processed=%d succeeded=%d failed=%d",
		job.Kind, job.ID, job.Processed, job.Succeeded, job.Failed)
	return nil
}

// fail transitions the job to failed, leaving the checkpoint at its last
// committed value, and surfaces the cause with enough context to resume.
func fail(ctx context.Context, store Store, job *Job, start time.Time, cause error) error {
	// Finalize with a fresh context: the run context may already be canceled.
	fctx := ctx
	if fctx.Err() != nil {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := store.Finalize(fctx, job, StatusFailed, cause); err != nil {
		log.Printf("[jobs] %s job %s: could not record failure: %v", job.Kind, job.ID, err)
	}
	observeJob(job.Kind, StatusFailed, time.Since(start))
	log.Printf("[jobs] %s job %s failed at checkpoint %d: %v", job.Kind, job.ID, job.Checkpoint, cause)
	return fmt.Errorf("job %s failed (checkpoint %d): %w", job.ID, job.Checkpoint, cause)
}
