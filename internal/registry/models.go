package registry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONMap wraps a string map with Scanner/Valuer for GORM JSONB columns.
// Used for the registered-assignment map (boundary type → identifier).
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
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
	out := JSONMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Voter is one registration record. Seq is a creation-order surrogate key used
// as the batch cursor: it is monotonic and never changes on update, so a long
// analysis run cannot skip or double-process rows while an import is running.
type Voter struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Seq        int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id"` // state voter file ID
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	County     string    `gorm:"index" json:"county"`
	Address    string    `json:"address"`

	// Registered holds the boundary-type → identifier pairs exactly as they
	// appear in the source voter file, never derived.
	Registered JSONMap `gorm:"type:jsonb;default:'{}'" json:"registered"`

	Status string `gorm:"default:'active';index" json:"status"` // active, inactive, purged

	Locations []VoterLocation `gorm:"foreignKey:VoterID" json:"locations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoterLocation is one geocoded point for a voter. At most one row per voter
// carries IsPrimary; the partial unique index created in Init enforces it and
// SetPrimaryLocation swaps the flag atomically.
type VoterLocation struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VoterID uuid.UUID `gorm:"type:uuid;not null;index" json:"voter_id"`
	Lat     float64   `gorm:"not null" json:"lat"`
	Lng     float64   `gorm:"not null" json:"lng"`
	Source  string    `gorm:"not null" json:"source"` // e.g. "google", "manual"

	IsPrimary bool `gorm:"default:false" json:"is_primary"`

	CreatedAt time.Time `json:"created_at"`
}

func (Voter) TableName() string {
	return "registry.voters"
}

func (VoterLocation) TableName() string {
	return "registry.voter_locations"
}
