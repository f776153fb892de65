// Package models contains the forecasting and anomaly detection models.
//
// TrendModel fits an ordinary least squares line to a daily capacity series
// and projects it to fixed horizons and to a capacity ceiling. Detector
// scores each day of an activity series against a trailing window of the
// days before it.
//
// Both are pure: they hold configuration only and refit from the series on
// every call.
package models

import (
	"errors"
	"time"

	"github.com/HatiCode/foresight/pkg/capacity"
)

// ErrInsufficientHistory is returned when a series is too short to fit.
var ErrInsufficientHistory = errors.New("insufficient history")

// Horizons are the forecast offsets in days.
var Horizons = []int{7, 14, 30}

// Forecast is the capacity projection for one metric on one date. It is
// keyed by (Metric, MetricDate) and replaced wholesale on re-run.
type Forecast struct {
	Metric           string               `json:"metric" db:"metric_name"`
	MetricDate       time.Time            `json:"metric_date" db:"metric_date"`
	ObservedUsed     float64              `json:"observed_used" db:"observed_used"`
	Forecast7d       float64              `json:"forecast_7d" db:"forecast_7d"`
	Forecast14d      float64              `json:"forecast_14d" db:"forecast_14d"`
	Forecast30d      float64              `json:"forecast_30d" db:"forecast_30d"`
	GrowthRatePerDay float64              `json:"growth_rate_per_day" db:"growth_rate_per_day"`
	DaysToLimit      capacity.DaysToLimit `json:"days_to_limit" db:"days_to_limit"`
	Ceiling          float64              `json:"ceiling" db:"ceiling"`
	GeneratedAt      time.Time            `json:"generated_at" db:"generated_at"`
}

// Fit describes a fitted trend line and its in-sample quality.
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Anchor    float64 `json:"anchor"`
	MAE       float64 `json:"mae"`
	RSquared  float64 `json:"r_squared"`
	Samples   int     `json:"samples"`
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is one flagged day of an activity metric. Acknowledged is the only
// field that changes after insertion.
type Anomaly struct {
	ID             string    `json:"id" db:"id"`
	DetectedAt     time.Time `json:"detected_at" db:"detected_at"`
	Metric         string    `json:"metric" db:"metric_name"`
	Actual         float64   `json:"actual" db:"actual_value"`
	Expected       float64   `json:"expected" db:"expected_value"`
	DeviationSigma float64   `json:"deviation_sigma" db:"deviation_sigma"`
	Severity       Severity  `json:"severity" db:"severity"`
	Description    string    `json:"description" db:"description"`
	Acknowledged   bool      `json:"acknowledged" db:"acknowledged"`
}
