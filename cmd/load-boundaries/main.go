package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	geojsonPath  = flag.String("geojson", "", "Path to the source GeoJSON FeatureCollection (required)")
	boundaryType = flag.String("type", "", "Boundary type for every feature, e.g. county_precinct (required)")
	county       = flag.String("county", "", "County the boundaries belong to (required)")
	idProp       = flag.String("id-prop", "identifier", "Feature property holding the boundary identifier")
	nameProp     = flag.String("name-prop", "name", "Feature property holding the display name (optional)")
	dsn          = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	dryRun       = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	confirm      = flag.Bool("confirm", false, "Required to replace boundaries of this type+county")
	advisoryKey  = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key (e.g., 424242). 0 = disabled")
)

// GeoJSON contract: a FeatureCollection of Polygon or MultiPolygon features.
// Each feature must carry the identifier property named by --id-prop.

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type geometryHeader struct {
	Type string `json:"type"`
}

// row is one validated boundary ready to insert.
type row struct {
	Identifier string
	Name       string
	Geometry   string // raw GeoJSON geometry, fed to ST_GeomFromGeoJSON
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *geojsonPath == "" {
		fatalf("--geojson is required")
	}
	if *boundaryType == "" {
		fatalf("--type is required")
	}
	if *county == "" {
		fatalf("--county is required")
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	rows, err := loadGeoJSON(*geojsonPath)
	if err != nil {
		fatalf("GeoJSON error: %v", err)
	}
	if err := validateRows(rows); err != nil {
		fatalf("GeoJSON validation failed: %v", err)
	}

	fmt.Printf("Loaded %d %s boundaries for county %s from %s\n",
		len(rows), *boundaryType, *county, *geojsonPath)

	if *dryRun {
		printPlan(rows)
		fmt.Println("Dry run complete. No changes made.")
		return
	}

	if !*confirm {
		fatalf("Refusing to run without --confirm. Add --dry-run to preview.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op if already committed
	}()

	// Optional advisory lock to avoid concurrent loads
	if *advisoryKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, *advisoryKey); err != nil {
			fatalf("advisory lock: %v", err)
		}
	}

	var before int64
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM registry.boundaries WHERE type = $1 AND county = $2`,
		*boundaryType, *county).Scan(&before); err != nil {
		fatalf("pre-count: %v", err)
	}
	fmt.Printf("Before: %d existing %s boundaries in %s\n", before, *boundaryType, *county)

	// Replace this type+county slice wholesale; geometry is immutable after
	// import, so stale rows must go rather than be patched.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registry.boundaries WHERE type = $1 AND county = $2`,
		*boundaryType, *county); err != nil {
		fatalf("wipe existing: %v", err)
	}

	if err := insertAll(ctx, tx, rows); err != nil {
		fatalf("insert: %v", err)
	}

	flagged, err := flagOverlaps(ctx, tx)
	if err != nil {
		fatalf("overlap check: %v", err)
	}

	var after int64
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM registry.boundaries WHERE type = $1 AND county = $2`,
		*boundaryType, *county).Scan(&after); err != nil {
		fatalf("post-count: %v", err)
	}
	if after != int64(len(rows)) {
		fatalf("sanity check failed: inserted %d rows but count is %d", len(rows), after)
	}

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}

	fmt.Printf("After: %d boundaries, %d flagged for same-type overlap\n", after, flagged)
	fmt.Println("Load complete ✅")
}

func loadGeoJSON(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fc featureCollection
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}

	var out []row
	for i, ft := range fc.Features {
		var gh geometryHeader
		if err := json.Unmarshal(ft.Geometry, &gh); err != nil {
			return nil, fmt.Errorf("feature %d: bad geometry: %w", i, err)
		}
		if gh.Type != "Polygon" && gh.Type != "MultiPolygon" {
			return nil, fmt.Errorf("feature %d: unsupported geometry type %q", i, gh.Type)
		}

		id, _ := ft.Properties[*idProp].(string)
		name, _ := ft.Properties[*nameProp].(string)
		out = append(out, row{
			Identifier: strings.TrimSpace(id),
			Name:       strings.TrimSpace(name),
			Geometry:   string(ft.Geometry),
		})
	}
	return out, nil
}

func validateRows(rows []row) error {
	if len(rows) == 0 {
		return fmt.Errorf("FeatureCollection has no features")
	}
	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		if r.Identifier == "" {
			return fmt.Errorf("feature %d: property %q is empty or missing", i, *idProp)
		}
		if _, dup := seen[r.Identifier]; dup {
			return fmt.Errorf("feature %d: duplicate identifier '%s'", i, r.Identifier)
		}
		seen[r.Identifier] = struct{}{}
	}
	return nil
}

func printPlan(rows []row) {
	fmt.Println("Plan preview:")
	fmt.Printf("  Boundaries to insert: %d (type=%s county=%s)\n", len(rows), *boundaryType, *county)
	show := rows
	if len(show) > 10 {
		show = show[:10]
	}
	for _, r := range show {
		fmt.Printf("    %s  %s\n", r.Identifier, r.Name)
	}
	if len(rows) > 10 {
		fmt.Printf("    ... and %d more\n", len(rows)-10)
	}
	fmt.Println("  Table affected (destructive for this type+county): registry.boundaries")
}

func insertAll(ctx context.Context, tx *sql.Tx, rows []row) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO registry.boundaries
			(id, type, identifier, county, name, source, imported_at, created_at, geometry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7,
			ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($8), 4326)))
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, uuid.New(), *boundaryType, r.Identifier,
			*county, r.Name, *geojsonPath, now, r.Geometry); err != nil {
			return fmt.Errorf("insert boundary '%s': %w", r.Identifier, err)
		}
	}
	return nil
}

// flagOverlaps marks every boundary whose polygon interior-overlaps another of
// the same type. Cross-type overlap is normal nesting and stays unflagged.
func flagOverlaps(ctx context.Context, tx *sql.Tx) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		UPDATE registry.boundaries b
		SET overlap_flagged = EXISTS (
			SELECT 1 FROM registry.boundaries o
			WHERE o.type = b.type
			  AND o.id <> b.id
			  AND o.geometry && b.geometry
			  AND ST_Overlaps(o.geometry, b.geometry)
		)
		WHERE b.type = $1 AND b.county = $2
	`, *boundaryType, *county)
	if err != nil {
		return 0, err
	}

	var flagged int64
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM registry.boundaries
		WHERE type = $1 AND county = $2 AND overlap_flagged
	`, *boundaryType, *county).Scan(&flagged)
	return flagged, err
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
