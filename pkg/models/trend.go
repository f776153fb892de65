package models

import (
	"fmt"
	"math"
	"time"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/series"
)

// DefaultMinPoints is the minimum number of dated points a trend is fit on.
const DefaultMinPoints = 14

// TrendModel projects a capacity series linearly.
//
// Algorithm:
//  1. x = days elapsed since the earliest point, y = value. Missing days
//     simply contribute no sample.
//  2. Fit y = a + b*x by ordinary least squares; b is the growth per day.
//  3. Anchor = fitted value at the last observed date.
//  4. forecast_Nd = max(0, anchor + b*N) for N in Horizons.
//  5. Days to limit = capacity.Project(anchor, b, ceiling).
type TrendModel struct {
	// MinPoints defaults to DefaultMinPoints when <= 0.
	MinPoints int
	// Now stamps GeneratedAt; defaults to time.Now.
	Now func() time.Time
}

// NewTrendModel returns a TrendModel requiring minPoints points.
func NewTrendModel(minPoints int) *TrendModel {
	return &TrendModel{MinPoints: minPoints}
}

// Name returns the model identifier stored in quality rows.
func (m *TrendModel) Name() string { return "linear_trend" }

// Forecast fits points and projects them against ceiling. points must be
// ascending with one point per date.
func (m *TrendModel) Forecast(metric string, points []series.Point, ceiling float64) (Forecast, Fit, error) {
	minPoints := m.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	if n := distinctDates(points); n < minPoints {
		return Forecast{}, Fit{}, fmt.Errorf("%s: %d points, need %d: %w", metric, n, minPoints, ErrInsufficientHistory)
	}

	first := points[0].Date
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Date.Sub(first).Hours() / 24
		ys[i] = p.Value
	}

	l, ok := fitLine(xs, ys)
	if !ok {
		return Forecast{}, Fit{}, fmt.Errorf("%s: degenerate series: %w", metric, ErrInsufficientHistory)
	}
	mae, r2 := goodness(l, xs, ys)

	last := points[len(points)-1]
	anchor := l.at(xs[len(xs)-1])
	fit := Fit{
		Slope:     l.slope,
		Intercept: l.intercept,
		Anchor:    anchor,
		MAE:       mae,
		RSquared:  r2,
		Samples:   len(points),
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	project := func(days int) float64 { return math.Max(0, anchor+l.slope*float64(days)) }

	f := Forecast{
		Metric:           metric,
		MetricDate:       series.Day(last.Date),
		ObservedUsed:     last.Value,
		Forecast7d:       project(Horizons[0]),
		Forecast14d:      project(Horizons[1]),
		Forecast30d:      project(Horizons[2]),
		GrowthRatePerDay: l.slope,
		DaysToLimit:      capacity.Project(anchor, l.slope, ceiling),
		Ceiling:          ceiling,
		GeneratedAt:      now().UTC(),
	}
	return f, fit, nil
}

func distinctDates(points []series.Point) int {
	seen := make(map[time.Time]struct{}, len(points))
	for _, p := range points {
		seen[series.Day(p.Date)] = struct{}{}
	}
	return len(seen)
}
