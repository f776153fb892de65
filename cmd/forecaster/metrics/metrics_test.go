package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/quality"
)

func TestSetForecast(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetForecast("disk_d", 10, capacity.Days(28), quality.Entry{MAE: 0.5, RSquared: 0.99})
	if got := testutil.ToFloat64(m.DaysToLimit.WithLabelValues("disk_d")); got != 28 {
		t.Errorf("days_to_limit = %v, want 28", got)
	}
	if got := testutil.ToFloat64(m.ModelRSquared.WithLabelValues("disk_d")); got != 0.99 {
		t.Errorf("r_squared = %v, want 0.99", got)
	}

	m.SetForecast("disk_d", 0, capacity.Unbounded(), quality.Entry{})
	if n := testutil.CollectAndCount(m.DaysToLimit); n != 0 {
		t.Errorf("unbounded forecast left %d days_to_limit series, want 0", n)
	}
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordAnomaly("sessions", "critical")
	m.RecordAnomaly("sessions", "critical")
	m.RecordIncident("jira", "failed")
	m.RecordError("sink", "write_failed")

	if got := testutil.ToFloat64(m.AnomaliesTotal.WithLabelValues("sessions", "critical")); got != 2 {
		t.Errorf("anomalies_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IncidentsTotal.WithLabelValues("jira", "failed")); got != 1 {
		t.Errorf("incidents_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("sink", "write_failed")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordRead("x", 1)
	m.RecordFit("x", 1)
	m.SetForecast("x", 1, capacity.Days(1), quality.Entry{})
	m.RecordAnomaly("x", "warning")
	m.RecordIncident("none", "created")
	m.RecordError("x", "y")
	m.RecordCycle(1, 1)
}
