package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Init migrates the jobs table.
func Init(db *gorm.DB) error {
	if err := db.AutoMigrate(&Job{}); err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, job *Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

func (s *GormStore) Claim(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (*Job, error) {
	now := time.Now()

	// Compare-and-swap: the running status is the lease. A stale running job
	// (crashed process, heartbeat older than staleAfter) may be taken over.
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND (status IN ? OR (status = ? AND updated_at < ?))",
			id, []string{StatusPending, StatusFailed}, StatusRunning, now.Add(-staleAfter)).
		Updates(map[string]interface{}{
			"status":     StatusRunning,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
			"last_error": "",
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case StatusRunning:
			return nil, fmt.Errorf("job %s: %w", id, ErrJobActive)
		case StatusCompleted:
			return nil, fmt.Errorf("job %s: %w", id, ErrJobTerminal)
		default:
			return nil, fmt.Errorf("job %s in unexpected status %q", id, job.Status)
		}
	}

	return s.Get(ctx, id)
}

func (s *GormStore) CommitChunk(ctx context.Context, job *Job, checkpoint int64, delta ChunkStats, apply ApplyFunc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if apply != nil {
			if err := apply(tx); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"checkpoint": checkpoint,
			"processed":  gorm.Expr("processed + ?", delta.Succeeded+delta.Failed),
			"succeeded":  gorm.Expr("succeeded + ?", delta.Succeeded),
			"failed":     gorm.Expr("failed + ?", delta.Failed),
			"updated_at": time.Now(),
		}
		if len(delta.Errors) > 0 {
			b, err := json.Marshal(delta.Errors)
			if err != nil {
				return fmt.Errorf("marshal error log delta: %w", err)
			}
			updates["error_log"] = gorm.Expr("error_log || ?::jsonb", string(b))
		}

		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, StatusRunning).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s lost its running lease", job.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit chunk (job %s, checkpoint %d): %w", job.ID, checkpoint, err)
	}

	job.Checkpoint = checkpoint
	job.Processed += delta.Succeeded + delta.Failed
	job.Succeeded += delta.Succeeded
	job.Failed += delta.Failed
	job.ErrorLog = append(job.ErrorLog, delta.Errors...)
	return nil
}

func (s *GormStore) Finalize(ctx context.Context, job *Job, status string, cause error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
		"updated_at":  now,
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}

	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusRunning).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finalize job %s: lease lost", job.ID)
	}

	job.Status = status
	job.FinishedAt = &now
	if cause != nil {
		job.LastError = cause.Error()
	}
	return nil
}
