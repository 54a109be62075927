package boundary

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Store is the read API the spatial matcher runs against. Containing returns
// the identifiers of every boundary of the given type whose polygon contains
// the point, sorted ascending so callers see a deterministic order.
type Store interface {
	Containing(ctx context.Context, pt Point, boundaryType string) ([]string, error)
	Types(ctx context.Context) ([]string, error)
}

// PostgresStore answers containment queries with PostGIS ST_Contains against
// the geometry column on registry.boundaries. The GiST index created in Init
// keeps the lookup sub-linear in the boundary count.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Containing(ctx context.Context, pt Point, boundaryType string) ([]string, error) {
	query := `
		SELECT identifier
		FROM registry.boundaries
		WHERE type = $1
		  AND ST_Contains(
			geometry,
			ST_SetSRID(ST_MakePoint($2, $3), 4326)
		  )
	`

	rows, err := s.db.WithContext(ctx).Raw(query, boundaryType, pt.Lng, pt.Lat).Rows()
	if err != nil {
		return nil, fmt.Errorf("boundary containment query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan boundary identifier: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("boundary containment rows: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

func (s *PostgresStore) Types(ctx context.Context) ([]string, error) {
	var types []string
	if err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT type FROM registry.boundaries ORDER BY type`).
		Scan(&types).Error; err != nil {
		return nil, fmt.Errorf("boundary types query failed: %w", err)
	}
	return types, nil
}

// Init creates the geometry column and spatial index. AutoMigrate handles the
// metadata columns; PostGIS bits need raw SQL.
func Init(db *gorm.DB) error {
	if err := db.AutoMigrate(&Boundary{}); err != nil {
		return fmt.Errorf("migrate boundaries: %w", err)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		`ALTER TABLE registry.boundaries
			ADD COLUMN IF NOT EXISTS geometry geometry(MultiPolygon, 4326)`,
		`CREATE INDEX IF NOT EXISTS boundaries_geometry_gist
			ON registry.boundaries USING GIST (geometry)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("boundary schema: %w", err)
		}
	}
	return nil
}
