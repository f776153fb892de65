package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/foresight/pkg/series"
)

// Detector defaults.
const (
	DefaultWindowDays        = 7
	DefaultWarningSigma      = 2.0
	DefaultCriticalSigma     = 3.0
	DefaultMinStdDevFraction = 0.01
)

// Detector flags days whose value deviates from the trailing window.
//
// For a point dated d the baseline is every other point dated in
// [d-(Window-1), d-1]; nothing after d is ever used. The score is
// z = (value - mean) / stddev with the sample standard deviation.
//
// A perfectly flat baseline has zero deviation. The stddev is therefore
// floored at MinStdDevFraction*|mean|; if it is still 0 the point scores 0.
// A MinStdDevFraction of 0 means a flat baseline never yields an anomaly.
type Detector struct {
	Window            int
	WarningSigma      float64
	CriticalSigma     float64
	MinStdDevFraction float64
	// NewID generates anomaly IDs; defaults to uuid.NewString.
	NewID func() string
}

// NewDetector returns a Detector with the default thresholds.
func NewDetector() *Detector {
	return &Detector{
		Window:            DefaultWindowDays,
		WarningSigma:      DefaultWarningSigma,
		CriticalSigma:     DefaultCriticalSigma,
		MinStdDevFraction: DefaultMinStdDevFraction,
	}
}

// Name returns the model identifier.
func (d *Detector) Name() string { return "rolling_zscore" }

// Detect scores every point of an ascending daily series and returns one
// anomaly per flagged date. Points in the first Window-1 days of the series
// are never flagged.
func (d *Detector) Detect(metric string, points []series.Point) []Anomaly {
	window := d.Window
	if window <= 1 {
		window = DefaultWindowDays
	}
	warn, crit := d.WarningSigma, d.CriticalSigma
	if warn <= 0 {
		warn = DefaultWarningSigma
	}
	if crit <= 0 {
		crit = DefaultCriticalSigma
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	if len(points) == 0 {
		return nil
	}

	warmup := series.Day(points[0].Date).AddDate(0, 0, window-1)
	var out []Anomaly
	lo := 0
	for i, p := range points {
		day := series.Day(p.Date)
		if day.Before(warmup) {
			continue
		}
		oldest := day.AddDate(0, 0, -(window - 1))
		for lo < i && series.Day(points[lo].Date).Before(oldest) {
			lo++
		}
		baseline := series.Values(points[lo:i])
		if len(baseline) < 2 {
			continue
		}

		expected := mean(baseline)
		z := d.score(p.Value, expected, sampleStdDev(baseline))

		var sev Severity
		switch abs := math.Abs(z); {
		case abs >= crit:
			sev = SeverityCritical
		case abs >= warn:
			sev = SeverityWarning
		default:
			continue
		}

		out = append(out, Anomaly{
			ID:             newID(),
			DetectedAt:     day,
			Metric:         metric,
			Actual:         p.Value,
			Expected:       expected,
			DeviationSigma: z,
			Severity:       sev,
			Description:    describe(metric, day, p.Value, expected, z),
		})
	}
	return out
}

func (d *Detector) score(value, expected, stddev float64) float64 {
	if floor := d.MinStdDevFraction * math.Abs(expected); stddev < floor {
		stddev = floor
	}
	if stddev == 0 {
		return 0
	}
	return (value - expected) / stddev
}

func describe(metric string, day time.Time, actual, expected, z float64) string {
	dir := "above"
	if z < 0 {
		dir = "below"
	}
	return fmt.Sprintf("%s on %s was %.2f, %.1f sigma %s the expected %.2f",
		metric, day.Format(time.DateOnly), actual, math.Abs(z), dir, expected)
}
