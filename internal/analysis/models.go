package analysis

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/google/uuid"
)

// MismatchList wraps the ordered detail list with Scanner/Valuer for JSONB.
type MismatchList []MismatchDetail

func (l MismatchList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *MismatchList) Scan(value interface{}) error {
	if value == nil {
		*l = MismatchList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", value)
	}
	out := MismatchList{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// Run is one analysis snapshot. Summary counts are recomputed as aggregates
// over the run's results at finalization, never maintained incrementally, so
// a resumed run cannot drift.
type Run struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`

	FilterCounty string `json:"filter_county,omitempty"`
	FilterStatus string `json:"filter_status,omitempty"`

	TotalAnalyzed        int64 `json:"total_analyzed"`
	MatchCount           int64 `json:"match_count"`
	MismatchCount        int64 `json:"mismatch_count"`
	UnableToAnalyzeCount int64 `json:"unable_to_analyze_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is one voter's classification within a run. Immutable once the
// run's job is terminal; deleting the run cascades to its results.
type Result struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RunID   uuid.UUID `gorm:"type:uuid;not null;index:uniq_run_voter,unique" json:"run_id"`
	VoterID uuid.UUID `gorm:"type:uuid;not null;index:uniq_run_voter,unique" json:"voter_id"`

	Registered registry.JSONMap `gorm:"type:jsonb;default:'{}'" json:"registered"`
	Determined registry.JSONMap `gorm:"type:jsonb;default:'{}'" json:"determined"`

	MatchStatus string       `gorm:"not null;index" json:"match_status"`
	Mismatches  MismatchList `gorm:"type:jsonb;default:'[]'" json:"mismatches"`

	// NeedsReview marks a boundary-edge tie resolved by the deterministic
	// lowest-identifier rule.
	NeedsReview bool `gorm:"default:false" json:"needs_review"`

	CreatedAt time.Time `json:"created_at"`
}

func (Run) TableName() string {
	return "analysis.runs"
}

func (Result) TableName() string {
	return "analysis.results"
}
