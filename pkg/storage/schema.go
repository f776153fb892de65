package storage

// Dialects supported by SQLSink.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS forecasts (
		metric_name         TEXT NOT NULL,
		metric_date         DATE NOT NULL,
		observed_used       DOUBLE PRECISION NOT NULL,
		forecast_7d         DOUBLE PRECISION NOT NULL,
		forecast_14d        DOUBLE PRECISION NOT NULL,
		forecast_30d        DOUBLE PRECISION NOT NULL,
		growth_rate_per_day DOUBLE PRECISION NOT NULL,
		days_to_limit       INTEGER,
		ceiling             DOUBLE PRECISION NOT NULL,
		generated_at        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (metric_name, metric_date)
	)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id              TEXT PRIMARY KEY,
		detected_at     DATE NOT NULL,
		metric_name     TEXT NOT NULL,
		actual_value    DOUBLE PRECISION NOT NULL,
		expected_value  DOUBLE PRECISION NOT NULL,
		deviation_sigma DOUBLE PRECISION NOT NULL,
		severity        TEXT NOT NULL,
		description     TEXT NOT NULL,
		acknowledged    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS anomalies_metric_detected_idx ON anomalies (metric_name, detected_at)`,
	`CREATE TABLE IF NOT EXISTS model_quality (
		id          BIGSERIAL PRIMARY KEY,
		trained_at  TIMESTAMPTZ NOT NULL,
		metric_name TEXT NOT NULL,
		model_type  TEXT NOT NULL,
		mae         DOUBLE PRECISION NOT NULL,
		r_squared   DOUBLE PRECISION NOT NULL,
		growth_rate DOUBLE PRECISION NOT NULL,
		samples     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS model_quality_metric_idx ON model_quality (metric_name, trained_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS forecasts (
		metric_name         TEXT NOT NULL,
		metric_date         DATE NOT NULL,
		observed_used       REAL NOT NULL,
		forecast_7d         REAL NOT NULL,
		forecast_14d        REAL NOT NULL,
		forecast_30d        REAL NOT NULL,
		growth_rate_per_day REAL NOT NULL,
		days_to_limit       INTEGER,
		ceiling             REAL NOT NULL,
		generated_at        TIMESTAMP NOT NULL,
		PRIMARY KEY (metric_name, metric_date)
	)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id              TEXT PRIMARY KEY,
		detected_at     DATE NOT NULL,
		metric_name     TEXT NOT NULL,
		actual_value    REAL NOT NULL,
		expected_value  REAL NOT NULL,
		deviation_sigma REAL NOT NULL,
		severity        TEXT NOT NULL,
		description     TEXT NOT NULL,
		acknowledged    BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS anomalies_metric_detected_idx ON anomalies (metric_name, detected_at)`,
	`CREATE TABLE IF NOT EXISTS model_quality (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		trained_at  TIMESTAMP NOT NULL,
		metric_name TEXT NOT NULL,
		model_type  TEXT NOT NULL,
		mae         REAL NOT NULL,
		r_squared   REAL NOT NULL,
		growth_rate REAL NOT NULL,
		samples     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS model_quality_metric_idx ON model_quality (metric_name, trained_at)`,
}
