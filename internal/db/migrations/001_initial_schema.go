package migrations

import "time"

// InitialSchema creates the run catalog and the SEFD history
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		-- Enable TimescaleDB extension
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		-- One row per calibrated archive
		CREATE TABLE IF NOT EXISTS calibration_runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			raw_path TEXT NOT NULL,
			cal_source TEXT NOT NULL,
			output_path TEXT NOT NULL,
			phase_cal BOOLEAN NOT NULL,
			gain_cal BOOLEAN NOT NULL,
			flux_jy DOUBLE PRECISION NOT NULL DEFAULT 0,
			ch_min INTEGER NOT NULL,
			ch_max INTEGER NOT NULL,
			sigma DOUBLE PRECISION NOT NULL DEFAULT 0,
			samples INTEGER NOT NULL,
			missing_slices INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_calibration_runs_raw_path ON calibration_runs (raw_path);
		CREATE INDEX IF NOT EXISTS idx_calibration_runs_started_at ON calibration_runs (started_at);

		-- Per-antenna SEFD of every solved patch
		CREATE TABLE IF NOT EXISTS sefd_measurements (
			time TIMESTAMPTZ NOT NULL,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			sideband TEXT NOT NULL,
			patch INTEGER NOT NULL,
			midpoint DOUBLE PRECISION NOT NULL,
			antenna INTEGER NOT NULL,
			sefd DOUBLE PRECISION NOT NULL,
			power DOUBLE PRECISION NOT NULL
		);

		-- Create hypertable
		SELECT create_hypertable('sefd_measurements', 'time');

		CREATE INDEX IF NOT EXISTS idx_sefd_measurements_antenna ON sefd_measurements (antenna, sideband, time DESC);
		CREATE INDEX IF NOT EXISTS idx_sefd_measurements_run_id ON sefd_measurements (run_id);

		-- Create statistics table
		CREATE TABLE IF NOT EXISTS pipeline_stats (
			time TIMESTAMPTZ NOT NULL,
			command TEXT NOT NULL,
			files_read BIGINT NOT NULL,
			files_missing BIGINT NOT NULL,
			samples_calibrated BIGINT NOT NULL,
			patches_solved BIGINT NOT NULL,
			patches_skipped BIGINT NOT NULL,
			processing_time_ms BIGINT NOT NULL
		);

		-- Create hypertable for statistics
		SELECT create_hypertable('pipeline_stats', 'time');

		CREATE INDEX IF NOT EXISTS idx_pipeline_stats_time ON pipeline_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS pipeline_stats;
		DROP TABLE IF EXISTS sefd_measurements;
		DROP TABLE IF EXISTS calibration_runs;
	`,
	CreatedAt: time.Now(),
}
