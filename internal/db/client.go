// Package db stores calibration runs, SEFD solutions and pipeline statistics
// in a TimescaleDB catalog.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/saviobatista/ytla-corr/internal/types"
)

// ErrRunNotFound is returned when a run id is not in the catalog
var ErrRunNotFound = errors.New("calibration run not found")

// Client wraps the catalog connection
type Client struct {
	db *sql.DB
}

// PipelineStats is one row of pipeline_stats
type PipelineStats struct {
	Time              time.Time
	Command           string
	FilesRead         int64
	FilesMissing      int64
	SamplesCalibrated int64
	PatchesSolved     int64
	PatchesSkipped    int64
	ProcessingTime    time.Duration
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// DB returns the underlying connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping verifies the catalog is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreCalibrationRun inserts a run, replacing any row with the same id
func (c *Client) StoreCalibrationRun(ctx context.Context, run *types.CalibrationRun) error {
	query := `
		INSERT INTO calibration_runs (
			run_id, started_at, finished_at, raw_path, cal_source, output_path,
			phase_cal, gain_cal, flux_jy, ch_min, ch_max, sigma,
			samples, missing_slices
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			output_path = EXCLUDED.output_path,
			samples = EXCLUDED.samples,
			missing_slices = EXCLUDED.missing_slices
	`
	_, err := c.db.ExecContext(ctx, query,
		run.RunID, run.StartedAt, run.FinishedAt, run.RawPath, run.CalSource, run.OutputPath,
		run.PhaseCal, run.GainCal, run.FluxJy, run.ChMin, run.ChMax, run.Sigma,
		run.Samples, run.MissingSlices,
	)
	if err != nil {
		return fmt.Errorf("failed to store calibration run %s: %w", run.RunID, err)
	}
	return nil
}

// GetCalibrationRun retrieves a run by id
func (c *Client) GetCalibrationRun(ctx context.Context, runID string) (*types.CalibrationRun, error) {
	query := `
		SELECT run_id, started_at, finished_at, raw_path, cal_source, output_path,
			phase_cal, gain_cal, flux_jy, ch_min, ch_max, sigma,
			samples, missing_slices
		FROM calibration_runs
		WHERE run_id = $1
	`
	var r types.CalibrationRun
	err := c.db.QueryRowContext(ctx, query, runID).Scan(
		&r.RunID, &r.StartedAt, &r.FinishedAt, &r.RawPath, &r.CalSource, &r.OutputPath,
		&r.PhaseCal, &r.GainCal, &r.FluxJy, &r.ChMin, &r.ChMax, &r.Sigma,
		&r.Samples, &r.MissingSlices,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StoreSEFDRecords writes one row per antenna of every record in a single
// transaction
func (c *Client) StoreSEFDRecords(ctx context.Context, records []types.SEFDRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sefd_measurements (
			time, run_id, source, sideband, patch, midpoint, antenna, sefd, power
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if len(rec.Power) != len(rec.SEFD) {
			return fmt.Errorf("patch %d has %d powers for %d antennas", rec.Patch, len(rec.Power), len(rec.SEFD))
		}
		at := rec.SolvedAt
		if at.IsZero() {
			at = time.Now()
		}
		for ant, sefd := range rec.SEFD {
			if _, err := stmt.ExecContext(ctx,
				at, rec.RunID, rec.Source, rec.Sideband, rec.Patch, rec.Midpoint,
				ant, sefd, rec.Power[ant],
			); err != nil {
				return fmt.Errorf("failed to store SEFD of patch %d antenna %d: %w", rec.Patch, ant, err)
			}
		}
	}
	return tx.Commit()
}

// GetSEFDHistory reassembles the per-patch records of a source and sideband
// solved between start and end
func (c *Client) GetSEFDHistory(ctx context.Context, source, sideband string, start, end time.Time) ([]types.SEFDRecord, error) {
	query := `
		SELECT time, run_id, patch, midpoint,
			array_agg(sefd ORDER BY antenna), array_agg(power ORDER BY antenna)
		FROM sefd_measurements
		WHERE source = $1 AND sideband = $2 AND time BETWEEN $3 AND $4
		GROUP BY time, run_id, patch, midpoint
		ORDER BY time, patch
	`
	rows, err := c.db.QueryContext(ctx, query, source, sideband, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.SEFDRecord
	for rows.Next() {
		rec := types.SEFDRecord{Source: source, Sideband: sideband}
		if err := rows.Scan(
			&rec.SolvedAt, &rec.RunID, &rec.Patch, &rec.Midpoint,
			pq.Array(&rec.SEFD), pq.Array(&rec.Power),
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StorePipelineStats stores the counters of one command invocation
func (c *Client) StorePipelineStats(ctx context.Context, s PipelineStats) error {
	query := `
		INSERT INTO pipeline_stats (
			time, command, files_read, files_missing, samples_calibrated,
			patches_solved, patches_skipped, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	at := s.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := c.db.ExecContext(ctx, query,
		at, s.Command, s.FilesRead, s.FilesMissing, s.SamplesCalibrated,
		s.PatchesSolved, s.PatchesSkipped, s.ProcessingTime.Milliseconds(),
	)
	return err
}
