// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed:
//   - foresight_source_read_seconds: histogram of source reads, by target
//   - foresight_model_fit_seconds: histogram of trend fits and detections, by target
//   - foresight_growth_rate_per_day: gauge of the fitted growth, by metric
//   - foresight_days_to_limit: gauge of days until the ceiling; absent when unbounded
//   - foresight_model_mae, foresight_model_r_squared: fit quality, by metric
//   - foresight_anomalies_total: counter of recorded anomalies, by metric and severity
//   - foresight_incidents_total: counter of incident deliveries, by backend and outcome
//   - foresight_errors_total: counter of errors, by component and reason
//   - foresight_cycle_seconds, foresight_last_cycle_timestamp_seconds
//
// All methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/quality"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	SourceReadSeconds  *prometheus.HistogramVec
	ModelFitSeconds    *prometheus.HistogramVec
	GrowthRate         *prometheus.GaugeVec
	DaysToLimit        *prometheus.GaugeVec
	ModelMAE           *prometheus.GaugeVec
	ModelRSquared      *prometheus.GaugeVec
	AnomaliesTotal     *prometheus.CounterVec
	IncidentsTotal     *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	CycleSeconds       prometheus.Histogram
	LastCycleTimestamp prometheus.Gauge
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SourceReadSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foresight_source_read_seconds",
			Help:    "Time spent reading a target's series from its source",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),

		ModelFitSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foresight_model_fit_seconds",
			Help:    "Time spent fitting or scoring a target's series",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"target"}),

		GrowthRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_growth_rate_per_day",
			Help: "Fitted growth of a capacity metric per day",
		}, []string{"metric"}),

		DaysToLimit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_days_to_limit",
			Help: "Days until the projected capacity exceeds its ceiling; absent when unbounded",
		}, []string{"metric"}),

		ModelMAE: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_model_mae",
			Help: "Mean absolute in-sample error of the latest fit",
		}, []string{"metric"}),

		ModelRSquared: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_model_r_squared",
			Help: "Coefficient of determination of the latest fit",
		}, []string{"metric"}),

		AnomaliesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_anomalies_total",
			Help: "Anomalies recorded, by metric and severity",
		}, []string{"metric", "severity"}),

		IncidentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_incidents_total",
			Help: "Incident deliveries, by backend and outcome",
		}, []string{"backend", "outcome"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),

		CycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "foresight_cycle_seconds",
			Help:    "Duration of a full evaluation cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "foresight_last_cycle_timestamp_seconds",
			Help: "Unix time the last evaluation cycle finished",
		}),
	}
}

// RecordRead records the duration of a source read.
func (m *Metrics) RecordRead(target string, seconds float64) {
	if m == nil {
		return
	}
	m.SourceReadSeconds.WithLabelValues(target).Observe(seconds)
}

// RecordFit records the duration of a fit or detection.
func (m *Metrics) RecordFit(target string, seconds float64) {
	if m == nil {
		return
	}
	m.ModelFitSeconds.WithLabelValues(target).Observe(seconds)
}

// SetForecast publishes the latest fit of metric.
func (m *Metrics) SetForecast(metric string, rate float64, days capacity.DaysToLimit, q quality.Entry) {
	if m == nil {
		return
	}
	m.GrowthRate.WithLabelValues(metric).Set(rate)
	if n, ok := days.Get(); ok {
		m.DaysToLimit.WithLabelValues(metric).Set(float64(n))
	} else {
		m.DaysToLimit.DeleteLabelValues(metric)
	}
	m.ModelMAE.WithLabelValues(metric).Set(q.MAE)
	m.ModelRSquared.WithLabelValues(metric).Set(q.RSquared)
}

// RecordAnomaly counts one recorded anomaly.
func (m *Metrics) RecordAnomaly(metric, severity string) {
	if m == nil {
		return
	}
	m.AnomaliesTotal.WithLabelValues(metric, severity).Inc()
}

// RecordIncident counts one delivery attempt; outcome is "created" or "failed".
func (m *Metrics) RecordIncident(backend, outcome string) {
	if m == nil {
		return
	}
	m.IncidentsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(seconds float64, finishedUnix float64) {
	if m == nil {
		return
	}
	m.CycleSeconds.Observe(seconds)
	m.LastCycleTimestamp.Set(finishedUnix)
}
