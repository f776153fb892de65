package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
)

type forecastKey struct {
	metric string
	date   time.Time
}

// MemorySink implements Repository in memory. It is safe for concurrent use.
type MemorySink struct {
	mu        sync.RWMutex
	forecasts map[forecastKey]models.Forecast
	anomalies []models.Anomaly
	quality   []quality.Entry
	// FailWrites makes every write fail with ErrSinkWrite, for tests.
	FailWrites bool
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{forecasts: make(map[forecastKey]models.Forecast)}
}

// CommitForecast implements Sink.
func (s *MemorySink) CommitForecast(ctx context.Context, f models.Forecast, q quality.Entry) error {
	if err := s.writable(ctx); err != nil {
		return fmt.Errorf("commit forecast %s: %w", f.Metric, err)
	}
	f.MetricDate = day(f.MetricDate)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts[forecastKey{f.Metric, f.MetricDate}] = f
	s.quality = append(s.quality, q)
	return nil
}

// InsertAnomaly implements Sink.
func (s *MemorySink) InsertAnomaly(ctx context.Context, a models.Anomaly) error {
	if err := s.writable(ctx); err != nil {
		return fmt.Errorf("insert anomaly %s: %w", a.Metric, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, a)
	return nil
}

// HasAnomaly implements Sink.
func (s *MemorySink) HasAnomaly(ctx context.Context, metric string, detectedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d := day(detectedAt)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.anomalies {
		if a.Metric == metric && day(a.DetectedAt).Equal(d) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemorySink) writable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	if s.FailWrites {
		return fmt.Errorf("%w: writes disabled", ErrSinkWrite)
	}
	return nil
}

// LatestForecast implements Querier.
func (s *MemorySink) LatestForecast(ctx context.Context, metric string) (models.Forecast, bool, error) {
	list, err := s.ListForecasts(ctx, metric, 1)
	if err != nil || len(list) == 0 {
		return models.Forecast{}, false, err
	}
	return list[0], true, nil
}

// ListForecasts implements Querier.
func (s *MemorySink) ListForecasts(ctx context.Context, metric string, limit int) ([]models.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []models.Forecast
	for k, f := range s.forecasts {
		if k.metric == metric {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MetricDate.After(out[j].MetricDate) })
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// ListAnomalies implements Querier.
func (s *MemorySink) ListAnomalies(ctx context.Context, metric string, since time.Time) ([]models.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []models.Anomaly
	for _, a := range s.anomalies {
		if (metric == "" || a.Metric == metric) && !a.DetectedAt.Before(since) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].Metric < out[j].Metric
	})
	return out, nil
}

// ListQuality implements Querier.
func (s *MemorySink) ListQuality(ctx context.Context, metric string, limit int) ([]quality.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []quality.Entry
	for i := len(s.quality) - 1; i >= 0; i-- {
		if s.quality[i].Metric == metric {
			out = append(out, s.quality[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// AcknowledgeAnomaly implements Querier.
func (s *MemorySink) AcknowledgeAnomaly(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.anomalies {
		if s.anomalies[i].ID == id {
			s.anomalies[i].Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
}

// Close implements Repository.
func (s *MemorySink) Close() error { return nil }
