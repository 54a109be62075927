package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("run not found")

// GormRunStore persists runs and results in Postgres.
type GormRunStore struct {
	db *gorm.DB
}

func NewGormRunStore(db *gorm.DB) *GormRunStore {
	return &GormRunStore{db: db}
}

func (s *GormRunStore) CreateRun(ctx context.Context, run *Run) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *GormRunStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &run, nil
}

func (s *GormRunStore) GetRunByJob(ctx context.Context, jobID uuid.UUID) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).First(&run, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("load run for job %s: %w", jobID, err)
	}
	return &run, nil
}

// InsertResults writes a chunk's results inside the runner's transaction.
func (s *GormRunStore) InsertResults(tx *gorm.DB, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	if err := tx.Create(&results).Error; err != nil {
		return fmt.Errorf("insert results: %w", err)
	}
	return nil
}

// FinalizeRun recomputes the summary counts as aggregates over the run's
// results and stamps them onto the run row.
func (s *GormRunStore) FinalizeRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	err := s.db.WithContext(ctx).Exec(`
		UPDATE analysis.runs SET
			total_analyzed = agg.total,
			match_count = agg.matches,
			mismatch_count = agg.mismatches,
			unable_to_analyze_count = agg.unable,
			updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) AS total,
				COUNT(*) FILTER (WHERE match_status = 'match') AS matches,
				COUNT(*) FILTER (WHERE match_status LIKE 'mismatch-%') AS mismatches,
				COUNT(*) FILTER (WHERE match_status = 'unable-to-analyze') AS unable
			FROM analysis.results
			WHERE run_id = @run
		) agg
		WHERE analysis.runs.id = @run
	`, map[string]interface{}{"run": runID}).Error
	if err != nil {
		return nil, fmt.Errorf("finalize run %s: %w", runID, err)
	}
	return s.GetRun(ctx, runID)
}

// ResultFilters narrows a results page. Statuses is an OR-list; empty means
// every status.
type ResultFilters struct {
	Statuses    []string
	NeedsReview *bool
}

// GetResults returns one page of a run's results ordered by voter id, plus
// the total row count for the filter.
func (s *GormRunStore) GetResults(ctx context.Context, runID uuid.UUID, f ResultFilters, page, perPage int) ([]Result, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 100
	}

	q := s.db.WithContext(ctx).Model(&Result{}).Where("run_id = ?", runID)
	if len(f.Statuses) > 0 {
		q = q.Where("match_status = ANY(?)", pq.Array(f.Statuses))
	}
	if f.NeedsReview != nil {
		q = q.Where("needs_review = ?", *f.NeedsReview)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	var results []Result
	if err := q.Order("voter_id").Offset((page - 1) * perPage).Limit(perPage).Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("load results: %w", err)
	}
	return results, total, nil
}

// DiffEntry is one voter whose classification differs between two runs. A nil
// status means the voter has no result in that run.
type DiffEntry struct {
	VoterID uuid.UUID `json:"voter_id"`
	StatusA *string   `json:"status_a"`
	StatusB *string   `json:"status_b"`
}

// RunDiff is a pure read-side comparison of two snapshots keyed by voter id.
type RunDiff struct {
	RunA    uuid.UUID   `json:"run_a"`
	RunB    uuid.UUID   `json:"run_b"`
	Changed int         `json:"changed"`
	Entries []DiffEntry `json:"entries"`
}

func (s *GormRunStore) CompareRuns(ctx context.Context, runA, runB uuid.UUID) (*RunDiff, error) {
	for _, id := range []uuid.UUID{runA, runB} {
		if _, err := s.GetRun(ctx, id); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(a.voter_id, b.voter_id) AS voter_id, a.match_status, b.match_status
		FROM (SELECT voter_id, match_status FROM analysis.results WHERE run_id = $1) a
		FULL OUTER JOIN (SELECT voter_id, match_status FROM analysis.results WHERE run_id = $2) b
			ON a.voter_id = b.voter_id
		WHERE a.match_status IS DISTINCT FROM b.match_status
		ORDER BY 1
	`, runA, runB).Rows()
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	defer rows.Close()

	diff := &RunDiff{RunA: runA, RunB: runB, Entries: []DiffEntry{}}
	for rows.Next() {
		var e DiffEntry
		if err := rows.Scan(&e.VoterID, &e.StatusA, &e.StatusB); err != nil {
			return nil, fmt.Errorf("scan diff entry: %w", err)
		}
		diff.Entries = append(diff.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compare rows: %w", err)
	}
	diff.Changed = len(diff.Entries)
	return diff, nil
}

// DeleteRun removes a snapshot; the results FK cascades.
func (s *GormRunStore) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&Run{}, "id = ?", runID)
	if res.Error != nil {
		return fmt.Errorf("delete run %s: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}
