package boundary

import (
	"time"

	"github.com/google/uuid"
)

// Point is a WGS 84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Boundary is one political/administrative polygon. (Type, Identifier, County)
// is the natural key; geometry is immutable after import. The Postgres store
// keeps the polygon in a PostGIS geometry column populated by the loader CLI,
// so the GORM model carries only the metadata columns.
type Boundary struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Type       string    `gorm:"not null;index:uniq_boundary_key,unique" json:"type"`
	Identifier string    `gorm:"not null;index:uniq_boundary_key,unique" json:"identifier"`
	County     string    `gorm:"not null;index:uniq_boundary_key,unique" json:"county"`
	Name       string    `json:"name"`

	// OverlapFlagged marks a boundary whose polygon overlaps another boundary
	// of the same type. Overlap across types is expected (precincts nest in
	// districts); same-type overlap is an import anomaly kept for review.
	OverlapFlagged bool `gorm:"default:false" json:"overlap_flagged"`

	Source     string    `json:"source"`
	ImportedAt time.Time `json:"imported_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Boundary) TableName() string {
	return "registry.boundaries"
}
