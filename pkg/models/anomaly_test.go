package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseline has mean 50 and sample standard deviation 10.
var baseline = []float64{35, 45, 50, 50, 55, 65}

func TestDetector_SpikeSeverity(t *testing.T) {
	tests := []struct {
		k    float64
		want Severity
	}{
		{1.9, ""},
		{2, SeverityWarning},
		{2.5, SeverityWarning},
		{2.99, SeverityWarning},
		{3, SeverityCritical},
		{4, SeverityCritical},
		{-2.5, SeverityWarning},
		{-3, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%v", tt.k), func(t *testing.T) {
			values := append(append([]float64{}, baseline...), 50+10*tt.k)
			got := NewDetector().Detect("sessions", daily(values...))
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Severity)
			assert.InDelta(t, tt.k, got[0].DeviationSigma, 1e-9)
			assert.InDelta(t, 50, got[0].Expected, 1e-9)
			assert.Equal(t, start.AddDate(0, 0, 6), got[0].DetectedAt)
		})
	}
}

func TestDetector_FlatThenSpike(t *testing.T) {
	values := make([]float64, 0, 11)
	for i := 0; i < 10; i++ {
		values = append(values, 50)
	}
	values = append(values, 500)

	got := NewDetector().Detect("queries", daily(values...))
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, start.AddDate(0, 0, 10), a.DetectedAt)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Greater(t, a.DeviationSigma, 100.0)
	assert.Equal(t, 500.0, a.Actual)
	assert.Equal(t, 50.0, a.Expected)
	assert.Equal(t, "queries", a.Metric)
	assert.NotEmpty(t, a.ID)
	assert.Contains(t, a.Description, "above the expected 50.00")
}

func TestDetector_StrictZeroVariance(t *testing.T) {
	values := []float64{50, 50, 50, 50, 50, 50, 50, 50, 500}
	d := NewDetector()
	d.MinStdDevFraction = 0
	assert.Empty(t, d.Detect("queries", daily(values...)))
}

func TestDetector_ColdWindowNeverFlagged(t *testing.T) {
	// Wild swings inside the first six days must not be reported.
	values := []float64{1, 1000, 1, 1000, 1, 5000}
	assert.Empty(t, NewDetector().Detect("sessions", daily(values...)))

	values = append(values, 1000)
	for _, a := range NewDetector().Detect("sessions", daily(values...)) {
		assert.False(t, a.DetectedAt.Before(start.AddDate(0, 0, 6)))
	}
}

func TestDetector_NoLookAhead(t *testing.T) {
	values := append(append([]float64{}, baseline...), 50, 50, 50)
	before := NewDetector().Detect("sessions", daily(values...))

	// A huge future value must not change the verdict on earlier days.
	values = append(values, 100000)
	after := NewDetector().Detect("sessions", daily(values...))
	require.Len(t, after, len(before)+1)
	assert.Equal(t, start.AddDate(0, 0, 9), after[len(after)-1].DetectedAt)
}

func TestDetector_GapsShrinkBaseline(t *testing.T) {
	points := daily(40, 60, 50, 50, 50, 50, 50)
	// Day 20 has no points in its trailing window.
	points = append(points, daily(0)[0])
	points[7].Date = start.AddDate(0, 0, 20)
	points[7].Value = 999
	got := NewDetector().Detect("sessions", points)
	for _, a := range got {
		assert.NotEqual(t, start.AddDate(0, 0, 20), a.DetectedAt)
	}
}

func TestDetector_CustomIDs(t *testing.T) {
	d := NewDetector()
	d.NewID = func() string { return "fixed" }
	got := d.Detect("s", daily(35, 45, 50, 50, 55, 65, 100))
	require.Len(t, got, 1)
	assert.Equal(t, "fixed", got[0].ID)
}
