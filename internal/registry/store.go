package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EmpoweredVote/VR-Backend/internal/boundary"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrVoterNotFound  = errors.New("voter not found")
	ErrInvalidFilters = errors.New("invalid filters")
)

// Filters narrows the analysis input set. Zero values mean no restriction.
type Filters struct {
	County string `json:"county,omitempty"`
	Status string `json:"status,omitempty"`
}

func (f Filters) Validate() error {
	switch f.Status {
	case "", "active", "inactive", "purged":
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilters, f.Status)
	}
	return nil
}

// EligibleVoter is one cursor row for analysis: Point is nil when the voter
// has no primary location.
type EligibleVoter struct {
	VoterID    uuid.UUID
	Seq        int64
	Point      *boundary.Point
	Registered map[string]string
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EligibleForAnalysis returns up to limit voters matching the filters with
// seq strictly greater than after, ordered by seq, plus the seq of the last
// row. Ordering by the creation-order surrogate keeps the cursor stable while
// an unrelated import inserts or updates rows (see Voter.Seq).
func (s *Store) EligibleForAnalysis(ctx context.Context, f Filters, after int64, limit int) ([]EligibleVoter, int64, error) {
	query := `
		SELECT v.id, v.seq, v.registered, l.lat, l.lng
		FROM registry.voters v
		LEFT JOIN registry.voter_locations l
			ON l.voter_id = v.id AND l.is_primary
		WHERE v.seq > ?
	`
	args := []interface{}{after}
	if f.County != "" {
		query += ` AND v.county = ?`
		args = append(args, f.County)
	}
	if f.Status != "" {
		query += ` AND v.status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY v.seq LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, after, fmt.Errorf("eligible voters query failed: %w", err)
	}
	defer rows.Close()

	var out []EligibleVoter
	next := after
	for rows.Next() {
		var (
			ev       EligibleVoter
			reg      JSONMap
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&ev.VoterID, &ev.Seq, &reg, &lat, &lng); err != nil {
			return nil, after, fmt.Errorf("scan eligible voter: %w", err)
		}
		ev.Registered = map[string]string(reg)
		if lat.Valid && lng.Valid {
			ev.Point = &boundary.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, ev)
		next = ev.Seq
	}
	if err := rows.Err(); err != nil {
		return nil, after, fmt.Errorf("eligible voters rows: %w", err)
	}
	return out, next, nil
}

func (s *Store) GetVoter(ctx context.Context, id uuid.UUID) (*Voter, error) {
	var v Voter
	err := s.db.WithContext(ctx).Preload("Locations").First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoterNotFound
		}
		return nil, fmt.Errorf("load voter %s: %w", id, err)
	}
	return &v, nil
}

// SetPrimaryLocation designates a new primary point for the voter. The old
// flag is cleared and the new row inserted in one transaction, so readers
// never see zero or two primaries.
func (s *Store) SetPrimaryLocation(ctx context.Context, voterID uuid.UUID, lat, lng float64, source string) (*VoterLocation, error) {
	loc := &VoterLocation{
		VoterID:   voterID,
		Lat:       lat,
		Lng:       lng,
		Source:    source,
		IsPrimary: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Voter{}).Where("id = ?", voterID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrVoterNotFound
		}
		if err := tx.Model(&VoterLocation{}).
			Where("voter_id = ? AND is_primary", voterID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Create(loc).Error
	})
	if err != nil {
		if errors.Is(err, ErrVoterNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set primary location for %s: %w", voterID, err)
	}
	return loc, nil
}

// HasPrimaryLocation is the "point is known" check used by the geocode job to
// count cache hits instead of re-fetching.
func (s *Store) HasPrimaryLocation(ctx context.Context, voterID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&VoterLocation{}).
		Where("voter_id = ? AND is_primary", voterID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("primary location check for %s: %w", voterID, err)
	}
	return count > 0, nil
}

// MissingPrimaryLocation returns voters (seq-keyed) that have no primary
// point, the geocode job's input set.
func (s *Store) MissingPrimaryLocation(ctx context.Context, after int64, limit int) ([]Voter, int64, error) {
	var voters []Voter
	err := s.db.WithContext(ctx).
		Where(`seq > ? AND NOT EXISTS (
			SELECT 1 FROM registry.voter_locations l
			WHERE l.voter_id = voters.id AND l.is_primary
		)`, after).
		Order("seq").
		Limit(limit).
		Find(&voters).Error
	if err != nil {
		return nil, after, fmt.Errorf("voters missing location: %w", err)
	}
	next := after
	if len(voters) > 0 {
		next = voters[len(voters)-1].Seq
	}
	return voters, next, nil
}

// InsertPrimaryLocations bulk-inserts freshly geocoded primary points inside
// the caller's transaction. Callers must only pass voters with no existing
// primary; the partial unique index rejects a second one.
func (s *Store) InsertPrimaryLocations(tx *gorm.DB, locs []VoterLocation) error {
	if tx == nil {
		tx = s.db
	}
	if len(locs) == 0 {
		return nil
	}
	if err := tx.Create(&locs).Error; err != nil {
		return fmt.Errorf("insert locations: %w", err)
	}
	return nil
}

// VoterUpsert is one already-parsed source row for the import job. Column
// parsing belongs to the caller; the core only upserts.
type VoterUpsert struct {
	ExternalID string            `json:"external_id"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	County     string            `json:"county"`
	Address    string            `json:"address"`
	Registered map[string]string `json:"registered"`
}

// UpsertVoters inserts or updates by external_id inside the caller's
// transaction, so the import job's chunk commit stays atomic.
func (s *Store) UpsertVoters(tx *gorm.DB, rows []VoterUpsert) error {
	if tx == nil {
		tx = s.db
	}
	voters := make([]Voter, 0, len(rows))
	for _, r := range rows {
		voters = append(voters, Voter{
			ExternalID: r.ExternalID,
			FirstName:  r.FirstName,
			LastName:   r.LastName,
			County:     r.County,
			Address:    r.Address,
			Registered: JSONMap(r.Registered),
			Status:     "active",
		})
	}
	if len(voters) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"first_name", "last_name", "county", "address", "registered", "updated_at",
		}),
	}).Create(&voters).Error
	if err != nil {
		return fmt.Errorf("upsert voters: %w", err)
	}
	return nil
}
