// Package quality records how well each trend fit matched its own history,
// one append-only entry per training run, so model drift can be watched
// over time.
package quality

import (
	"math"
	"time"

	"github.com/HatiCode/foresight/pkg/models"
)

// Entry is one training run.
type Entry struct {
	TrainedAt  time.Time `json:"trained_at" db:"trained_at"`
	Metric     string    `json:"metric" db:"metric_name"`
	ModelType  string    `json:"model_type" db:"model_type"`
	MAE        float64   `json:"mae" db:"mae"`
	RSquared   float64   `json:"r_squared" db:"r_squared"`
	GrowthRate float64   `json:"growth_rate" db:"growth_rate"`
	Samples    int       `json:"samples" db:"samples"`
}

// FromFit builds the entry for a fit produced at time at.
func FromFit(metric, modelType string, fit models.Fit, at time.Time) Entry {
	return Entry{
		TrainedAt:  at.UTC(),
		Metric:     metric,
		ModelType:  modelType,
		MAE:        fit.MAE,
		RSquared:   fit.RSquared,
		GrowthRate: fit.Slope,
		Samples:    fit.Samples,
	}
}

// Summary aggregates entries of one metric.
type Summary struct {
	Metric         string    `json:"metric"`
	Runs           int       `json:"runs"`
	MeanMAE        float64   `json:"mean_mae"`
	LatestRSquared float64   `json:"latest_r_squared"`
	MinRSquared    float64   `json:"min_r_squared"`
	MeanGrowthRate float64   `json:"mean_growth_rate"`
	LastTrainedAt  time.Time `json:"last_trained_at"`
}

// Summarize aggregates entries, which may be in any order. The zero Summary
// is returned for no entries.
func Summarize(entries []Entry) Summary {
	if len(entries) == 0 {
		return Summary{}
	}
	s := Summary{Metric: entries[0].Metric, Runs: len(entries), MinRSquared: math.Inf(1)}
	var sumMAE, sumGrowth float64
	for _, e := range entries {
		sumMAE += e.MAE
		sumGrowth += e.GrowthRate
		s.MinRSquared = math.Min(s.MinRSquared, e.RSquared)
		if !e.TrainedAt.Before(s.LastTrainedAt) {
			s.LastTrainedAt = e.TrainedAt
			s.LatestRSquared = e.RSquared
		}
	}
	s.MeanMAE = sumMAE / float64(len(entries))
	s.MeanGrowthRate = sumGrowth / float64(len(entries))
	return s
}
