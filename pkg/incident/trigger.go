package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/models"
)

// Trigger defaults.
const (
	DefaultHighDays            = 14
	DefaultCriticalDays        = 7
	DefaultUtilizationFraction = 0.9
)

// Trigger decides which results warrant an incident.
//
// Rules:
//   - days to limit below HighDays opens a high incident, below
//     CriticalDays a critical one, with a due date derived from the days left
//   - observed usage at or above UtilizationFraction of the ceiling opens a
//     high incident (0 disables the rule)
//   - every critical anomaly opens a critical incident; warning anomalies
//     open a medium one only with IncidentOnWarning
type Trigger struct {
	HighDays            int
	CriticalDays        int
	UtilizationFraction float64
	IncidentOnWarning   bool
	// Now anchors due dates; defaults to time.Now.
	Now func() time.Time
}

// NewTrigger returns a Trigger with the default thresholds.
func NewTrigger() *Trigger {
	return &Trigger{
		HighDays:            DefaultHighDays,
		CriticalDays:        DefaultCriticalDays,
		UtilizationFraction: DefaultUtilizationFraction,
	}
}

func (t *Trigger) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// ForForecast returns at most one request for f.
func (t *Trigger) ForForecast(f models.Forecast) []Request {
	high, crit := t.HighDays, t.CriticalDays
	if high <= 0 {
		high = DefaultHighDays
	}
	if crit <= 0 {
		crit = DefaultCriticalDays
	}

	utilization := capacity.Utilization(f.ObservedUsed, f.Ceiling)
	overUtilized := t.UtilizationFraction > 0 && f.Ceiling > 0 && utilization >= t.UtilizationFraction

	var warnings []string
	if overUtilized {
		warnings = append(warnings, fmt.Sprintf("current usage is %.0f%% of the limit", utilization*100))
	}

	if days, bounded := f.DaysToLimit.Get(); bounded && days < high {
		sev := SeverityHigh
		if days < crit {
			sev = SeverityCritical
		}
		due := DueDate(days, t.now())
		return []Request{{
			Summary:     fmt.Sprintf("%s: capacity limit in %d days", f.Metric, days),
			Description: describeForecast(f, warnings),
			Severity:    sev,
			DueDate:     &due,
			Metric:      f.Metric,
		}}
	}

	if overUtilized {
		return []Request{{
			Summary:     fmt.Sprintf("%s: usage at %.0f%% of the limit", f.Metric, utilization*100),
			Description: describeForecast(f, warnings),
			Severity:    SeverityHigh,
			Metric:      f.Metric,
		}}
	}
	return nil
}

// ForAnomalies returns one request per anomaly that qualifies.
func (t *Trigger) ForAnomalies(anomalies []models.Anomaly) []Request {
	var out []Request
	for _, a := range anomalies {
		var sev Severity
		switch {
		case a.Severity == models.SeverityCritical:
			sev = SeverityCritical
		case a.Severity == models.SeverityWarning && t.IncidentOnWarning:
			sev = SeverityMedium
		default:
			continue
		}
		out = append(out, Request{
			Summary:     fmt.Sprintf("%s: %s anomaly on %s", a.Metric, a.Severity, a.DetectedAt.Format(time.DateOnly)),
			Description: a.Description,
			Severity:    sev,
			Metric:      a.Metric,
		})
	}
	return out
}

// DueDate gives a day of slack before the projected limit: one day when
// it is a week or less away, two within two weeks, three beyond.
func DueDate(daysToLimit int, now time.Time) time.Time {
	var due int
	switch {
	case daysToLimit <= 7:
		due = max(1, daysToLimit-1)
	case daysToLimit <= 14:
		due = max(2, daysToLimit-2)
	default:
		due = max(3, daysToLimit-3)
	}
	return now.UTC().Truncate(24*time.Hour).AddDate(0, 0, due)
}

func describeForecast(f models.Forecast, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capacity forecast for %s on %s\n\n", f.Metric, f.MetricDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "- used: %.2f\n", f.ObservedUsed)
	fmt.Fprintf(&b, "- limit: %.2f\n", f.Ceiling)
	fmt.Fprintf(&b, "- growth per day: %.2f\n", f.GrowthRatePerDay)
	fmt.Fprintf(&b, "- forecast in 7 days: %.2f\n", f.Forecast7d)
	fmt.Fprintf(&b, "- forecast in 14 days: %.2f\n", f.Forecast14d)
	fmt.Fprintf(&b, "- forecast in 30 days: %.2f\n", f.Forecast30d)
	fmt.Fprintf(&b, "- days to limit: %s\n", f.DaysToLimit)
	if len(warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
