package jobs

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	KindImport  = "import"
	KindGeocode = "geocode"
	KindAnalyze = "analyze"
)

// RecordError is one per-record failure kept in the job's error log. Per-record
// failures are counted and logged but never abort the run on their own.
type RecordError struct {
	Key     string    `json:"key"` // record identifier (voter id, source row key)
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorLog wraps the error list with Scanner/Valuer for a JSONB column.
type ErrorLog []RecordError

func (l ErrorLog) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *ErrorLog) Scan(value interface{}) error {
	if value == nil {
		*l = ErrorLog{}
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
	out := ErrorLog{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// Job is one batch execution. Checkpoint is the last cursor key whose chunk
// was durably committed; it only ever advances inside the same transaction as
// that chunk's writes. A job transitions pending → running exactly once per
// claim and terminates as completed or failed; resuming continues the same row.
type Job struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Kind string    `gorm:"not null;index" json:"kind"` // import, geocode, analyze

	Status     string `gorm:"default:'pending';index" json:"status"`
	Checkpoint int64  `gorm:"not null;default:0" json:"checkpoint"`

	Processed int64 `gorm:"not null;default:0" json:"processed"`
	Succeeded int64 `gorm:"not null;default:0" json:"succeeded"`
	Failed    int64 `gorm:"not null;default:0" json:"failed"`

	FailFast bool `gorm:"default:false" json:"fail_fast"`

	ErrorLog  ErrorLog `gorm:"type:jsonb;default:'[]'" json:"error_log"`
	LastError string   `json:"last_error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Job) TableName() string {
	return "registry.jobs"
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
