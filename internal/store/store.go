// Package store records the provenance of composite runs in sqlite: which
// scenes went in, which calibration was used, what the normaliser measured
// and which products came out.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/marine-composite/internal/timeutil"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// Open connects to the database at path without touching the schema.
// Callers run MigrateUp before recording runs.
func Open(path string) (*DB, error) {
	dsn := path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: db, path: path, clock: timeutil.RealClock{}}, nil
}

// OpenMigrated opens path and applies every pending migration.
func OpenMigrated(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// BandDelta is the normaliser's measurement for one band.
type BandDelta struct {
	Band     string
	Observed float64
	Delta    float64
	Applied  float64
}

// ProductRecord is one exported product.
type ProductRecord struct {
	Name  string
	Style string
	Scale float64
	Path  string
}

// Run is the provenance of one composite request.
type Run struct {
	ID                 string
	CreatedAt          time.Time
	Sensor             string
	Tiles              []string
	CalibrationVersion string
	SceneIDs           []string
	Masked             bool
	FallbackPixels     int
	Sunglint           bool
	Brightness         bool
	// Confidence is nil when brightness normalisation did not run.
	Confidence *float64
	Bands      []BandDelta
	Products   []ProductRecord
}

// SetClock replaces the clock that stamps new runs and backups.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// NewRun returns a run with a fresh id stamped with the current time.
func (db *DB) NewRun() *Run {
	return &Run{ID: uuid.NewString(), CreatedAt: db.clock.Now().UTC()}
}

func (r *Run) validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("run id %q: %w", r.ID, err)
	}
	if r.Sensor == "" {
		return errors.New("run sensor is required")
	}
	if r.CalibrationVersion == "" {
		return errors.New("run calibration version is required")
	}
	return nil
}

// RecordRun stores r and its scenes, deltas and products in one transaction.
func (db *DB) RecordRun(ctx context.Context, r *Run) error {
	if err := r.validate(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var confidence sql.NullFloat64
	if r.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
			run_id, created_at, sensor, tiles, calibration_version, scene_count,
			masked, fallback_pixels, sunglint, brightness, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(timeLayout), r.Sensor, strings.Join(r.Tiles, ","),
		r.CalibrationVersion, len(r.SceneIDs), r.Masked, r.FallbackPixels,
		r.Sunglint, r.Brightness, confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	for _, id := range r.SceneIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_scenes (run_id, scene_id) VALUES (?, ?)`, r.ID, id); err != nil {
			return fmt.Errorf("failed to insert scene %s: %w", id, err)
		}
	}
	for _, b := range r.Bands {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO band_deltas (run_id, band, observed, delta, applied) VALUES (?, ?, ?, ?, ?)`,
			r.ID, b.Band, b.Observed, b.Delta, b.Applied,
		); err != nil {
			return fmt.Errorf("failed to insert band delta %s: %w", b.Band, err)
		}
	}
	for _, p := range r.Products {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (run_id, name, style, scale, path) VALUES (?, ?, ?, ?, ?)`,
			r.ID, p.Name, p.Style, p.Scale, p.Path,
		); err != nil {
			return fmt.Errorf("failed to insert product %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

// AddProduct appends a product to an existing run.
func (db *DB) AddProduct(ctx context.Context, runID string, p ProductRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO products (run_id, name, style, scale, path) VALUES (?, ?, ?, ?, ?)`,
		runID, p.Name, p.Style, p.Scale, p.Path,
	)
	return err
}

// Run loads one run with its children.
func (db *DB) Run(ctx context.Context, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT run_id, created_at, sensor, tiles, calibration_version,
			masked, fallback_pixels, sunglint, brightness, confidence
		FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Runs lists the most recent runs, newest first, without children.
func (db *DB) Runs(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, created_at, sensor, tiles, calibration_version,
			masked, fallback_pixels, sunglint, brightness, confidence
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r          Run
		created    string
		tiles      string
		confidence sql.NullFloat64
	)
	if err := s.Scan(&r.ID, &created, &r.Sensor, &tiles, &r.CalibrationVersion,
		&r.Masked, &r.FallbackPixels, &r.Sunglint, &r.Brightness, &confidence); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, created, err)
	}
	r.CreatedAt = t
	if tiles != "" {
		r.Tiles = strings.Split(tiles, ",")
	}
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	return &r, nil
}

func (db *DB) loadChildren(ctx context.Context, r *Run) error {
	rows, err := db.QueryContext(ctx, `SELECT scene_id FROM run_scenes WHERE run_id = ? ORDER BY scene_id`, r.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		r.SceneIDs = append(r.SceneIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, `SELECT band, observed, delta, applied FROM band_deltas WHERE run_id = ? ORDER BY band`, r.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var b BandDelta
		if err := rows.Scan(&b.Band, &b.Observed, &b.Delta, &b.Applied); err != nil {
			rows.Close()
			return err
		}
		r.Bands = append(r.Bands, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, `SELECT name, style, scale, COALESCE(path, '') FROM products WHERE run_id = ? ORDER BY rowid`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p ProductRecord
		if err := rows.Scan(&p.Name, &p.Style, &p.Scale, &p.Path); err != nil {
			return err
		}
		r.Products = append(r.Products, p)
	}
	return rows.Err()
}

// DeltasFrom flattens per-band normaliser maps into sorted records.
// applied(band) returns the confidence-weighted offset.
func DeltasFrom(observed, deltas map[string]float64, applied func(string) float64) []BandDelta {
	bands := make([]string, 0, len(deltas))
	for b := range deltas {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	out := make([]BandDelta, 0, len(bands))
	for _, b := range bands {
		out = append(out, BandDelta{Band: b, Observed: observed[b], Delta: deltas[b], Applied: applied(b)})
	}
	return out
}
