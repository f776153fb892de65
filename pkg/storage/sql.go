package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
)

func init() {
	sqlx.BindDriver(DialectSQLite, sqlx.QUESTION)
}

const forecastColumns = `metric_name, metric_date, observed_used, forecast_7d, forecast_14d, forecast_30d,
	growth_rate_per_day, days_to_limit, ceiling, generated_at`

const anomalyColumns = `id, detected_at, metric_name, actual_value, expected_value, deviation_sigma,
	severity, description, acknowledged`

const qualityColumns = `trained_at, metric_name, model_type, mae, r_squared, growth_rate, samples`

const upsertForecast = `INSERT INTO forecasts (` + forecastColumns + `)
	VALUES (:metric_name, :metric_date, :observed_used, :forecast_7d, :forecast_14d, :forecast_30d,
		:growth_rate_per_day, :days_to_limit, :ceiling, :generated_at)
	ON CONFLICT (metric_name, metric_date) DO UPDATE SET
		observed_used = excluded.observed_used,
		forecast_7d = excluded.forecast_7d,
		forecast_14d = excluded.forecast_14d,
		forecast_30d = excluded.forecast_30d,
		growth_rate_per_day = excluded.growth_rate_per_day,
		days_to_limit = excluded.days_to_limit,
		ceiling = excluded.ceiling,
		generated_at = excluded.generated_at`

const insertQuality = `INSERT INTO model_quality (` + qualityColumns + `)
	VALUES (:trained_at, :metric_name, :model_type, :mae, :r_squared, :growth_rate, :samples)`

const insertAnomaly = `INSERT INTO anomalies (` + anomalyColumns + `)
	VALUES (:id, :detected_at, :metric_name, :actual_value, :expected_value, :deviation_sigma,
		:severity, :description, :acknowledged)`

// SQLSink implements Repository over PostgreSQL or SQLite.
type SQLSink struct {
	db      *sqlx.DB
	dialect string
	logger  *slog.Logger
}

// OpenSQL connects to dsn with dialect ("postgres" or "sqlite") and creates
// the schema when missing.
func OpenSQL(ctx context.Context, dialect, dsn string, logger *slog.Logger) (*SQLSink, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unknown sql dialect %q (must be postgres or sqlite)", dialect)
	}
	db, err := sqlx.ConnectContext(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One writer; also keeps a ":memory:" database alive and shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := NewSQLSink(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open pool. The schema is not touched.
func NewSQLSink(db *sqlx.DB, dialect string, logger *slog.Logger) *SQLSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSink{db: db, dialect: dialect, logger: logger}
}

// Migrate creates the tables and indexes when missing.
func (s *SQLSink) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Debug("schema ready", "dialect", s.dialect)
	return nil
}

// Close closes the pool.
func (s *SQLSink) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *SQLSink) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CommitForecast implements Sink.
func (s *SQLSink) CommitForecast(ctx context.Context, f models.Forecast, q quality.Entry) (err error) {
	f.MetricDate = day(f.MetricDate)
	f.GeneratedAt = f.GeneratedAt.UTC()
	q.TrainedAt = q.TrainedAt.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit forecast %s: %w: %w", f.Metric, ErrSinkWrite, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", "metric", f.Metric, "error", rbErr)
			}
		}
	}()

	if _, err = tx.NamedExecContext(ctx, upsertForecast, f); err != nil {
		return fmt.Errorf("upsert forecast %s: %w: %w", f.Metric, ErrSinkWrite, err)
	}
	if _, err = tx.NamedExecContext(ctx, insertQuality, q); err != nil {
		return fmt.Errorf("insert quality %s: %w: %w", q.Metric, ErrSinkWrite, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit forecast %s: %w: %w", f.Metric, ErrSinkWrite, err)
	}
	return nil
}

// InsertAnomaly implements Sink.
func (s *SQLSink) InsertAnomaly(ctx context.Context, a models.Anomaly) error {
	a.DetectedAt = day(a.DetectedAt)
	if _, err := s.db.NamedExecContext(ctx, insertAnomaly, a); err != nil {
		return fmt.Errorf("insert anomaly %s: %w: %w", a.Metric, ErrSinkWrite, err)
	}
	return nil
}

// HasAnomaly implements Sink.
func (s *SQLSink) HasAnomaly(ctx context.Context, metric string, detectedAt time.Time) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM anomalies WHERE metric_name = ? AND detected_at = ?`)
	if err := s.db.GetContext(ctx, &n, q, metric, day(detectedAt)); err != nil {
		return false, fmt.Errorf("has anomaly %s: %w", metric, err)
	}
	return n > 0, nil
}

// LatestForecast implements Querier.
func (s *SQLSink) LatestForecast(ctx context.Context, metric string) (models.Forecast, bool, error) {
	list, err := s.ListForecasts(ctx, metric, 1)
	if err != nil || len(list) == 0 {
		return models.Forecast{}, false, err
	}
	return list[0], true, nil
}

// ListForecasts implements Querier.
func (s *SQLSink) ListForecasts(ctx context.Context, metric string, limit int) ([]models.Forecast, error) {
	var out []models.Forecast
	q := s.db.Rebind(`SELECT ` + forecastColumns + ` FROM forecasts
		WHERE metric_name = ? ORDER BY metric_date DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, metric, listLimit(limit)); err != nil {
		return nil, fmt.Errorf("list forecasts %s: %w", metric, err)
	}
	for i := range out {
		out[i].MetricDate = day(out[i].MetricDate)
		out[i].GeneratedAt = out[i].GeneratedAt.UTC()
	}
	return out, nil
}

// ListAnomalies implements Querier.
func (s *SQLSink) ListAnomalies(ctx context.Context, metric string, since time.Time) ([]models.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE detected_at >= ?`
	args := []any{day(since)}
	if metric != "" {
		query += ` AND metric_name = ?`
		args = append(args, metric)
	}
	query += ` ORDER BY detected_at, metric_name`

	var out []models.Anomaly
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	for i := range out {
		out[i].DetectedAt = day(out[i].DetectedAt)
	}
	return out, nil
}

// ListQuality implements Querier.
func (s *SQLSink) ListQuality(ctx context.Context, metric string, limit int) ([]quality.Entry, error) {
	var out []quality.Entry
	q := s.db.Rebind(`SELECT ` + qualityColumns + ` FROM model_quality
		WHERE metric_name = ? ORDER BY trained_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, metric, listLimit(limit)); err != nil {
		return nil, fmt.Errorf("list quality %s: %w", metric, err)
	}
	for i := range out {
		out[i].TrainedAt = out[i].TrainedAt.UTC()
	}
	return out, nil
}

// AcknowledgeAnomaly implements Querier.
func (s *SQLSink) AcknowledgeAnomaly(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE anomalies SET acknowledged = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("acknowledge anomaly %s: %w: %w", id, ErrSinkWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge anomaly %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
	}
	return nil
}
