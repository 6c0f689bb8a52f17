package migrations

// RetentionPolicies bounds the time-series tables and adds daily rollups
var RetentionPolicies = &Migration{
	ID:   "002_retention_policies",
	Name: "002_retention_policies",
	UpSQL: `
	-- Keep SEFD history for two years
	SELECT add_retention_policy('sefd_measurements', INTERVAL '730 days');

	-- Set retention policy for pipeline_stats (90 days)
	SELECT add_retention_policy('pipeline_stats', INTERVAL '90 days');

	-- Daily best and mean SEFD per antenna, flagged antennas excluded
	CREATE MATERIALIZED VIEW IF NOT EXISTS sefd_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		antenna,
		sideband,
		MIN(sefd) FILTER (WHERE sefd > 0) AS min_sefd,
		AVG(sefd) FILTER (WHERE sefd > 0) AS avg_sefd,
		COUNT(*) AS patches
	FROM sefd_measurements
	GROUP BY day, antenna, sideband
	WITH NO DATA;

	-- Create continuous aggregate for daily pipeline stats
	CREATE MATERIALIZED VIEW IF NOT EXISTS pipeline_stats_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		SUM(files_read) AS files_read,
		SUM(files_missing) AS files_missing,
		SUM(samples_calibrated) AS samples_calibrated,
		SUM(patches_solved) AS patches_solved,
		SUM(patches_skipped) AS patches_skipped
	FROM pipeline_stats
	GROUP BY day
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS pipeline_stats_daily;
	DROP MATERIALIZED VIEW IF EXISTS sefd_daily;
	-- Remove retention policies
	SELECT remove_retention_policy('sefd_measurements');
	SELECT remove_retention_policy('pipeline_stats');
	`,
}
