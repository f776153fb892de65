// Package storage persists engine output.
//
// The Sink is the durable record: forecasts upserted by (metric, date),
// anomalies appended, model quality appended. SQLSink backs it with
// PostgreSQL or SQLite; MemorySink serves the synthetic mode and tests.
//
// The Store keeps only the latest cycle Snapshot per metric, in memory or
// in Redis, for the status endpoint.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
)

var (
	// ErrSinkWrite wraps every failed write. The target's results for the
	// cycle are not committed.
	ErrSinkWrite = errors.New("sink write failed")
	// ErrNotFound is returned when acknowledging an unknown anomaly.
	ErrNotFound = errors.New("not found")
)

// Sink receives the results of a cycle.
type Sink interface {
	// CommitForecast upserts f keyed by (Metric, MetricDate) and appends q
	// in the same transaction.
	CommitForecast(ctx context.Context, f models.Forecast, q quality.Entry) error
	// InsertAnomaly appends a.
	InsertAnomaly(ctx context.Context, a models.Anomaly) error
	// HasAnomaly reports whether an anomaly of metric was already recorded
	// for the day detectedAt.
	HasAnomaly(ctx context.Context, metric string, detectedAt time.Time) (bool, error)
}

// Querier reads back what the Sink recorded.
type Querier interface {
	LatestForecast(ctx context.Context, metric string) (models.Forecast, bool, error)
	// ListForecasts returns up to limit forecasts, newest date first.
	ListForecasts(ctx context.Context, metric string, limit int) ([]models.Forecast, error)
	// ListAnomalies returns anomalies detected on or after since, oldest
	// first. An empty metric matches every metric.
	ListAnomalies(ctx context.Context, metric string, since time.Time) ([]models.Anomaly, error)
	// ListQuality returns up to limit entries, newest first.
	ListQuality(ctx context.Context, metric string, limit int) ([]quality.Entry, error)
	// AcknowledgeAnomaly marks an anomaly as handled by an operator.
	AcknowledgeAnomaly(ctx context.Context, id string) error
}

// Repository is a Sink that can be queried.
type Repository interface {
	Sink
	Querier
	Close() error
}

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 || limit > 10*DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

func day(t time.Time) time.Time { return t.UTC().Truncate(24 * time.Hour) }
