// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger keeps a DuckDB history of geotagging runs and the outcome
// of every photo they touched.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/spatial"
	"github.com/ibenthos/geotag/utils/logger"
)

// H3 resolutions stored per photo.
const (
	MinH3Res = 8
	MaxH3Res = 12
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// Run is a row of the runs table.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	ImportDir   string        `json:"import_dir"`
	GPXPath     string        `json:"gpx_file"`
	Drift       time.Duration `json:"drift"`
	State       geotag.State  `json:"state"`
	Canceled    bool          `json:"canceled"`
	Error       string        `json:"error,omitempty"`
	ExportError string        `json:"export_error,omitempty"`
	Counts      geotag.Counts `json:"counts"`
}

// Photo is a row of the photos table.
type Photo struct {
	RunID       string            `json:"run_id"`
	RelPath     string            `json:"rel_path"`
	Path        string            `json:"path"`
	OutputPath  string            `json:"output_path"`
	Status      geotag.Status     `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	CapturedAt  time.Time         `json:"captured_at,omitzero"`
	CorrectedAt time.Time         `json:"corrected_at,omitzero"`
	Platform    string            `json:"platform,omitempty"`
	Position    *spatial.Position `json:"position,omitempty"`
	Course      *float64          `json:"course,omitempty"`
	// Cells holds the H3 cells of Position from MinH3Res to MaxH3Res.
	Cells []uint64 `json:"h3_cells,omitempty"`
}

// Repository persists runs. It implements geotag.Recorder.
type Repository interface {
	CreateSchema() error
	SaveReport(ctx context.Context, report *geotag.BatchReport) error
	ListRuns(limit int) ([]Run, error)
	GetRun(id string) (*Run, error)
	RunPhotos(runID string) ([]Photo, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a new run repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

// Open opens the DuckDB database at path and makes sure the schema exists.
// An empty path opens an in-memory database.
func Open(path string) (*sql.DB, Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	repo := NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("creating ledger schema: %w", err), db.Close())
	}

	return db, repo, nil
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			import_dir VARCHAR NOT NULL,
			gpx_file VARCHAR NOT NULL,
			drift_ms BIGINT NOT NULL DEFAULT 0,
			state VARCHAR NOT NULL,
			canceled BOOLEAN NOT NULL DEFAULT false,
			error VARCHAR,
			export_error VARCHAR,
			success INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			not_processed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS photos (
			run_id VARCHAR NOT NULL,
			rel_path VARCHAR NOT NULL,
			path VARCHAR NOT NULL,
			output_path VARCHAR,
			status VARCHAR NOT NULL,
			reason VARCHAR,
			captured_at TIMESTAMP,
			corrected_at TIMESTAMPTZ,
			platform VARCHAR,
			point VARCHAR,
			ele DOUBLE,
			course DOUBLE,
			h3_res8 UBIGINT,
			h3_res9 UBIGINT,
			h3_res10 UBIGINT,
			h3_res11 UBIGINT,
			h3_res12 UBIGINT,
			PRIMARY KEY (run_id, rel_path)
		);
	`)

	return err
}

// nve maps empty strings to NULL.
func nve(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nt(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}

func nf(f *float64) any {
	if f == nil {
		return nil
	}

	return *f
}

func errString(err error) any {
	if err == nil {
		return nil
	}

	return err.Error()
}

// SaveReport replaces every row of the report's run.
func (r *sqlRepository) SaveReport(ctx context.Context, report *geotag.BatchReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction for run %s: %w", report.RunID, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log := logger.Get()
			log.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to rollback ledger transaction")
		}
	}()

	for _, query := range []string{"DELETE FROM photos WHERE run_id = ?", "DELETE FROM runs WHERE id = ?"} {
		if _, err := tx.ExecContext(ctx, query, report.RunID); err != nil {
			return fmt.Errorf("deleting previous rows of run %s: %w", report.RunID, err)
		}
	}

	c := report.Counts
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, import_dir, gpx_file, drift_ms, state, canceled,
			error, export_error, success, skipped, failed, not_processed, total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.StartedAt,
		nt(report.FinishedAt),
		report.ImportDir,
		report.GPXPath,
		report.Drift().Milliseconds(),
		report.State.String(),
		report.Canceled,
		errString(report.Err),
		errString(report.ExportErr),
		c.Success, c.Skipped, c.Failed, c.NotProcessed, c.Total,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photos (
			run_id, rel_path, path, output_path, status, reason, captured_at, corrected_at, platform,
			point, ele, course,
			h3_res8, h3_res9, h3_res10, h3_res11, h3_res12
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, res := range report.Results() {
		p := res.Photo

		var point, ele any

		cells := make([]any, MaxH3Res-MinH3Res+1)

		if p.Position != nil {
			point, ele = p.Position.Point, nf(p.Position.Elevation)

			ids, err := spatial.Cells(p.Position.Point, MinH3Res, MaxH3Res)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", p.RelPath, err)
			}

			for i, id := range ids {
				cells[i] = uint64(id)
			}
		}

		args := []any{
			report.RunID,
			p.RelPath,
			p.Path,
			nve(p.OutputPath),
			res.Status.String(),
			nve(res.Reason),
			nt(p.CapturedAt),
			nt(p.CorrectedAt),
			nve(p.Platform),
			point,
			ele,
			nf(p.Course),
		}

		if _, err := stmt.ExecContext(ctx, append(args, cells...)...); err != nil {
			return fmt.Errorf("inserting photo %s of run %s: %w", p.RelPath, report.RunID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `
	id, started_at, finished_at, import_dir, gpx_file, drift_ms, state, canceled,
	error, export_error, success, skipped, failed, not_processed, total`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run               Run
		finished          sql.NullTime
		driftMS           int64
		state             string
		runErr, exportErr sql.NullString
	)

	err := s.Scan(
		&run.ID, &run.StartedAt, &finished, &run.ImportDir, &run.GPXPath, &driftMS, &state, &run.Canceled,
		&runErr, &exportErr,
		&run.Counts.Success, &run.Counts.Skipped, &run.Counts.Failed, &run.Counts.NotProcessed, &run.Counts.Total,
	)
	if err != nil {
		return Run{}, err
	}

	if run.State, err = geotag.ParseState(state); err != nil {
		return Run{}, err
	}

	run.FinishedAt = finished.Time
	run.Drift = time.Duration(driftMS) * time.Millisecond
	run.Error = runErr.String
	run.ExportError = exportErr.String

	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *sqlRepository) ListRuns(limit int) ([]Run, error) {
	rows, err := r.db.Query(`SELECT`+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *sqlRepository) GetRun(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT`+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	return &run, nil
}

// RunPhotos returns the photos of a run sorted by relative path.
func (r *sqlRepository) RunPhotos(runID string) ([]Photo, error) {
	rows, err := r.db.Query(`
		SELECT
			run_id, rel_path, path, output_path, status, reason, captured_at, corrected_at, platform,
			point, ele, course,
			h3_res8, h3_res9, h3_res10, h3_res11, h3_res12
		FROM photos
		WHERE run_id = ?
		ORDER BY rel_path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []Photo

	for rows.Next() {
		var (
			p                     Photo
			output, reason, plat  sql.NullString
			status                string
			captured, corrected   sql.NullTime
			point                 sql.Null[spatial.Point]
			ele, course           sql.NullFloat64
			cells                 [MaxH3Res - MinH3Res + 1]sql.Null[uint64]
		)

		dest := []any{
			&p.RunID, &p.RelPath, &p.Path, &output, &status, &reason, &captured, &corrected, &plat,
			&point, &ele, &course,
		}
		for i := range cells {
			dest = append(dest, &cells[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		if p.Status, err = geotag.ParseStatus(status); err != nil {
			return nil, err
		}

		p.OutputPath = output.String
		p.Reason = reason.String
		p.Platform = plat.String
		p.CapturedAt = captured.Time
		p.CorrectedAt = corrected.Time

		if point.Valid {
			p.Position = &spatial.Position{Point: point.V}
			if ele.Valid {
				p.Position.Elevation = spatial.Float(ele.Float64)
			}
		}

		if course.Valid {
			p.Course = spatial.Float(course.Float64)
		}

		for _, c := range cells {
			if c.Valid {
				p.Cells = append(p.Cells, c.V)
			}
		}

		photos = append(photos, p)
	}

	return photos, rows.Err()
}
