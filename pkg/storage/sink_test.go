package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
)

var base = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func forecastFor(metric string, date time.Time, f7 float64, days capacity.DaysToLimit) models.Forecast {
	return models.Forecast{
		Metric:           metric,
		MetricDate:       date,
		ObservedUsed:     230,
		Forecast7d:       f7,
		Forecast14d:      f7 + 70,
		Forecast30d:      f7 + 230,
		GrowthRatePerDay: 10,
		DaysToLimit:      days,
		Ceiling:          500,
		GeneratedAt:      date.Add(6 * time.Hour),
	}
}

func entryFor(metric string, at time.Time) quality.Entry {
	return quality.Entry{TrainedAt: at, Metric: metric, ModelType: "linear_trend", MAE: 0.5, RSquared: 0.99, GrowthRate: 10, Samples: 30}
}

func anomalyFor(id, metric string, at time.Time, sev models.Severity) models.Anomaly {
	return models.Anomaly{
		ID: id, DetectedAt: at, Metric: metric, Actual: 500, Expected: 50,
		DeviationSigma: 900, Severity: sev, Description: "spike",
	}
}

// runRepositoryContract exercises any Repository implementation.
func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("forecast upsert is idempotent per date", func(t *testing.T) {
		require.NoError(t, repo.CommitForecast(ctx, forecastFor("disk_d", base, 300, capacity.Days(28)), entryFor("disk_d", base.Add(time.Hour))))
		require.NoError(t, repo.CommitForecast(ctx, forecastFor("disk_d", base, 310, capacity.Unbounded()), entryFor("disk_d", base.Add(2*time.Hour))))
		require.NoError(t, repo.CommitForecast(ctx, forecastFor("disk_d", base.AddDate(0, 0, 1), 320, capacity.Days(20)), entryFor("disk_d", base.Add(26*time.Hour))))

		list, err := repo.ListForecasts(ctx, "disk_d", 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, base.AddDate(0, 0, 1), list[0].MetricDate)
		assert.Equal(t, base, list[1].MetricDate)
		assert.Equal(t, 310.0, list[1].Forecast7d, "second run replaces the first")
		assert.True(t, list[1].DaysToLimit.IsUnbounded())

		latest, found, err := repo.LatestForecast(ctx, "disk_d")
		require.NoError(t, err)
		require.True(t, found)
		n, ok := latest.DaysToLimit.Get()
		assert.True(t, ok)
		assert.Equal(t, 20, n)
		assert.Equal(t, base.AddDate(0, 0, 1).Add(6*time.Hour), latest.GeneratedAt)

		_, found, err = repo.LatestForecast(ctx, "disk_x")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("quality rows are appended", func(t *testing.T) {
		entries, err := repo.ListQuality(ctx, "disk_d", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, base.Add(26*time.Hour), entries[0].TrainedAt)
		assert.Equal(t, "linear_trend", entries[0].ModelType)
		assert.Equal(t, 30, entries[0].Samples)

		entries, err = repo.ListQuality(ctx, "disk_d", 1)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("anomalies append and dedupe lookup", func(t *testing.T) {
		day5 := base.AddDate(0, 0, 5)
		has, err := repo.HasAnomaly(ctx, "sessions", day5)
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, repo.InsertAnomaly(ctx, anomalyFor("a1", "sessions", day5, models.SeverityCritical)))
		require.NoError(t, repo.InsertAnomaly(ctx, anomalyFor("a2", "queries", day5, models.SeverityWarning)))
		require.NoError(t, repo.InsertAnomaly(ctx, anomalyFor("a3", "sessions", base.AddDate(0, 0, 2), models.SeverityWarning)))

		has, err = repo.HasAnomaly(ctx, "sessions", day5.Add(13*time.Hour))
		require.NoError(t, err)
		assert.True(t, has)

		all, err := repo.ListAnomalies(ctx, "", base)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a3", all[0].ID)
		assert.Equal(t, "queries", all[1].Metric)

		sessions, err := repo.ListAnomalies(ctx, "sessions", base.AddDate(0, 0, 3))
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		a := sessions[0]
		assert.Equal(t, "a1", a.ID)
		assert.Equal(t, day5, a.DetectedAt)
		assert.Equal(t, models.SeverityCritical, a.Severity)
		assert.Equal(t, 900.0, a.DeviationSigma)
		assert.False(t, a.Acknowledged)
	})

	t.Run("acknowledge", func(t *testing.T) {
		require.NoError(t, repo.AcknowledgeAnomaly(ctx, "a1"))
		sessions, err := repo.ListAnomalies(ctx, "sessions", base.AddDate(0, 0, 5))
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.True(t, sessions[0].Acknowledged)

		err = repo.AcknowledgeAnomaly(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})
}

func TestMemorySink_Contract(t *testing.T) {
	runRepositoryContract(t, NewMemorySink())
}

func TestSQLSink_SQLiteContract(t *testing.T) {
	sink, err := OpenSQL(context.Background(), DialectSQLite, ":memory:", nil)
	require.NoError(t, err)
	defer sink.Close()

	runRepositoryContract(t, sink)
}

func TestSQLSink_MigrateIsRepeatable(t *testing.T) {
	sink, err := OpenSQL(context.Background(), DialectSQLite, ":memory:", nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Migrate(context.Background()))
	require.NoError(t, sink.Ping(context.Background()))
}

func TestOpenSQL_UnknownDialect(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sql dialect")
}

func TestSQLSink_WriteFailureIsSinkWrite(t *testing.T) {
	sink, err := OpenSQL(context.Background(), DialectSQLite, ":memory:", nil)
	require.NoError(t, err)
	defer sink.Close()

	_, err = sink.db.Exec(`DROP TABLE model_quality`)
	require.NoError(t, err)

	err = sink.CommitForecast(context.Background(), forecastFor("disk_d", base, 300, capacity.Days(28)), entryFor("disk_d", base))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkWrite))

	// The forecast upsert was rolled back with the failed quality insert.
	list, err := sink.ListForecasts(context.Background(), "disk_d", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemorySink_FailWrites(t *testing.T) {
	sink := NewMemorySink()
	sink.FailWrites = true

	err := sink.CommitForecast(context.Background(), forecastFor("disk_d", base, 300, capacity.Days(1)), entryFor("disk_d", base))
	assert.True(t, errors.Is(err, ErrSinkWrite))
	err = sink.InsertAnomaly(context.Background(), anomalyFor("x", "s", base, models.SeverityWarning))
	assert.True(t, errors.Is(err, ErrSinkWrite))

	list, _ := sink.ListForecasts(context.Background(), "disk_d", 0)
	assert.Empty(t, list)
}
