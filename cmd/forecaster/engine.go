// Package main implements the forecaster evaluation cycle.
//
// One cycle evaluates every configured target once:
//
//	capacity: read snapshots → fit trend → commit forecast + quality → incidents
//	activity: read series → detect anomalies → record new ones → incidents
//
// Targets are independent. A target whose source is unavailable is skipped
// without writes; a target whose sink write fails is aborted while the
// others continue. Incident delivery failures only produce warnings.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/foresight/cmd/forecaster/metrics"
	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/incident"
	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
	"github.com/HatiCode/foresight/pkg/series"
	"github.com/HatiCode/foresight/pkg/storage"
)

// Cycle statuses.
const (
	CycleOK      = "ok"
	CyclePartial = "partial"
	CycleFailed  = "failed"
)

// SeriesReader reads the daily history of one target.
type SeriesReader interface {
	ReadSeries(ctx context.Context, lookbackDays int) ([]series.Point, error)
	ReadSnapshots(ctx context.Context, lookbackDays int) ([]series.CapacitySnapshot, error)
}

// Target is one metric wired to its reader.
type Target struct {
	Name         string
	Kind         string
	Reader       SeriesReader
	LookbackDays int
	// Policy is used by capacity targets. A zero Total is replaced by the
	// total of the latest snapshot.
	Policy capacity.Policy
}

// Engine runs evaluation cycles.
type Engine struct {
	Targets  []Target
	Trend    *models.TrendModel
	Detector *models.Detector
	Sink     storage.Sink
	// Store receives one snapshot per target and cycle; optional.
	Store   storage.Store
	Trigger *incident.Trigger
	// Creator receives incident requests; nil disables delivery.
	Creator incident.Creator
	// Parallelism bounds concurrently evaluated targets (default 1).
	Parallelism int
	// DedupeAnomalies skips anomalies already recorded for the same metric
	// and day, which keeps re-runs idempotent.
	DedupeAnomalies bool
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// Report summarizes one cycle. It is what `forecaster run` prints.
type Report struct {
	CycleID    string            `json:"cycle_id"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Forecasts  []models.Forecast `json:"forecasts"`
	Anomalies  []models.Anomaly  `json:"anomalies"`
	Incidents  []IncidentResult  `json:"incidents"`
	Skipped    []TargetIssue     `json:"skipped,omitempty"`
	Failures   []TargetIssue     `json:"failures,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// TargetIssue explains why a target produced no result.
type TargetIssue struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// IncidentResult is the outcome of one delivery.
type IncidentResult struct {
	Metric   string            `json:"metric"`
	Backend  string            `json:"backend"`
	Severity incident.Severity `json:"severity"`
	Summary  string            `json:"summary"`
	ID       string            `json:"id,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type targetResult struct {
	target      Target
	status      string
	reason      string
	unavailable bool
	points      int
	forecast    *models.Forecast
	anomalies   []models.Anomaly
	incidents   []IncidentResult
	warnings    []string
	err         error
}

func (r *targetResult) skip(reason string) {
	r.status, r.reason = storage.StatusSkipped, reason
}

func (r *targetResult) fail(err error) {
	r.status, r.reason, r.err = storage.StatusFailed, err.Error(), err
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunCycle evaluates every target once. The returned error joins the
// failures of targets that could not commit their results; skipped
// targets and delivery problems only show in the Report.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	report := &Report{CycleID: uuid.NewString(), StartedAt: e.now().UTC()}
	log := e.logger().With("cycle_id", report.CycleID)
	log.Info("starting cycle", "targets", len(e.Targets), "parallelism", max(1, e.Parallelism))

	results := make([]targetResult, len(e.Targets))
	var g errgroup.Group
	g.SetLimit(max(1, e.Parallelism))
	for i, t := range e.Targets {
		g.Go(func() error {
			results[i] = e.runTarget(ctx, t, report.CycleID, log.With("metric", t.Name, "kind", t.Kind))
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	evaluated := 0
	for _, r := range results {
		if r.forecast != nil {
			report.Forecasts = append(report.Forecasts, *r.forecast)
		}
		report.Anomalies = append(report.Anomalies, r.anomalies...)
		report.Incidents = append(report.Incidents, r.incidents...)
		report.Warnings = append(report.Warnings, r.warnings...)
		switch r.status {
		case storage.StatusSkipped:
			report.Skipped = append(report.Skipped, TargetIssue{Target: r.target.Name, Reason: r.reason})
		case storage.StatusFailed:
			report.Failures = append(report.Failures, TargetIssue{Target: r.target.Name, Reason: r.reason})
			errs = append(errs, r.err)
		}
		if r.status != storage.StatusFailed && !r.unavailable {
			evaluated++
		}
	}
	report.FinishedAt = e.now().UTC()

	err := errors.Join(errs...)
	switch {
	case err != nil || (len(e.Targets) > 0 && evaluated == 0):
		report.Status = CycleFailed
	case len(report.Skipped) > 0 || len(report.Warnings) > 0:
		report.Status = CyclePartial
	default:
		report.Status = CycleOK
	}

	elapsed := report.FinishedAt.Sub(report.StartedAt)
	e.Metrics.RecordCycle(elapsed.Seconds(), float64(report.FinishedAt.Unix()))
	log.Info("cycle finished",
		"status", report.Status,
		"forecasts", len(report.Forecasts),
		"anomalies", len(report.Anomalies),
		"incidents", len(report.Incidents),
		"skipped", len(report.Skipped),
		"failures", len(report.Failures),
		"duration", elapsed,
	)
	return report, err
}

func (e *Engine) runTarget(ctx context.Context, t Target, cycleID string, log *slog.Logger) targetResult {
	res := targetResult{target: t, status: storage.StatusOK}

	if err := ctx.Err(); err != nil {
		res.fail(fmt.Errorf("%s: %w", t.Name, err))
		return res
	}

	switch t.Kind {
	case storage.KindCapacity:
		e.runCapacity(ctx, t, &res, log)
	case storage.KindActivity:
		e.runActivity(ctx, t, &res, log)
	default:
		res.fail(fmt.Errorf("%s: unknown target kind %q", t.Name, t.Kind))
	}

	e.putSnapshot(ctx, cycleID, &res, log)
	return res
}

// readFailed classifies a read error. It reports true when the target
// must stop.
func (e *Engine) readFailed(ctx context.Context, t Target, err error, res *targetResult, log *slog.Logger) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		res.fail(fmt.Errorf("%s: %w", t.Name, ctx.Err()))
		return true
	}
	res.unavailable = true
	e.Metrics.RecordError("reader", "data_unavailable")
	if errors.Is(err, series.ErrDataUnavailable) {
		log.Warn("skipping target, data unavailable", "error", err)
		res.skip(err.Error())
		return true
	}
	log.Error("read failed", "error", err)
	res.skip(fmt.Sprintf("%v: %v", series.ErrDataUnavailable, err))
	return true
}

func (e *Engine) runCapacity(ctx context.Context, t Target, res *targetResult, log *slog.Logger) {
	start := time.Now()
	snaps, err := t.Reader.ReadSnapshots(ctx, t.LookbackDays)
	e.Metrics.RecordRead(t.Name, time.Since(start).Seconds())
	if e.readFailed(ctx, t, err, res, log) {
		return
	}
	res.points = len(snaps)

	policy := t.Policy
	if policy.Total <= 0 {
		policy.Total = snaps[len(snaps)-1].Total
	}
	if err := policy.Validate(); err != nil {
		e.Metrics.RecordError("policy", "invalid_ceiling")
		log.Warn("skipping forecast, no usable capacity total", "error", err)
		res.skip(fmt.Sprintf("%s: %v", t.Name, err))
		return
	}

	points := make([]series.Point, len(snaps))
	for i, s := range snaps {
		points[i] = s.Point()
	}

	start = time.Now()
	f, fit, err := e.Trend.Forecast(t.Name, points, policy.Ceiling())
	e.Metrics.RecordFit(t.Name, time.Since(start).Seconds())
	if errors.Is(err, models.ErrInsufficientHistory) {
		log.Info("skipping forecast", "reason", err)
		res.skip(err.Error())
		return
	}
	if err != nil {
		e.Metrics.RecordError("model", "fit_failed")
		res.fail(fmt.Errorf("%s: fit: %w", t.Name, err))
		return
	}

	q := quality.FromFit(t.Name, e.Trend.Name(), fit, f.GeneratedAt)
	if err := e.Sink.CommitForecast(ctx, f, q); err != nil {
		e.Metrics.RecordError("sink", "commit_failed")
		log.Error("forecast not committed", "error", err)
		res.fail(fmt.Errorf("%s: %w", t.Name, err))
		return
	}
	e.Metrics.SetForecast(t.Name, f.GrowthRatePerDay, f.DaysToLimit, q)
	res.forecast = &f
	log.Info("forecast committed",
		"date", f.MetricDate.Format(time.DateOnly),
		"used", f.ObservedUsed,
		"growth_per_day", f.GrowthRatePerDay,
		"days_to_limit", f.DaysToLimit.String(),
		"r_squared", fit.RSquared,
	)

	if e.Trigger != nil {
		e.deliver(ctx, e.Trigger.ForForecast(f), res, log)
	}
}

func (e *Engine) runActivity(ctx context.Context, t Target, res *targetResult, log *slog.Logger) {
	start := time.Now()
	points, err := t.Reader.ReadSeries(ctx, t.LookbackDays)
	e.Metrics.RecordRead(t.Name, time.Since(start).Seconds())
	if e.readFailed(ctx, t, err, res, log) {
		return
	}
	res.points = len(points)

	start = time.Now()
	found := e.Detector.Detect(t.Name, points)
	e.Metrics.RecordFit(t.Name, time.Since(start).Seconds())

	for _, a := range found {
		if err := ctx.Err(); err != nil {
			res.fail(fmt.Errorf("%s: %w", t.Name, err))
			break
		}
		if e.DedupeAnomalies {
			seen, err := e.Sink.HasAnomaly(ctx, a.Metric, a.DetectedAt)
			if err != nil {
				e.Metrics.RecordError("sink", "lookup_failed")
				res.fail(fmt.Errorf("%s: %w: %w", t.Name, storage.ErrSinkWrite, err))
				break
			}
			if seen {
				continue
			}
		}
		if err := e.Sink.InsertAnomaly(ctx, a); err != nil {
			e.Metrics.RecordError("sink", "insert_failed")
			log.Error("anomaly not recorded", "date", a.DetectedAt.Format(time.DateOnly), "error", err)
			res.fail(fmt.Errorf("%s: %w", t.Name, err))
			break
		}
		e.Metrics.RecordAnomaly(a.Metric, string(a.Severity))
		res.anomalies = append(res.anomalies, a)
		log.Info("anomaly recorded",
			"date", a.DetectedAt.Format(time.DateOnly),
			"severity", a.Severity,
			"sigma", a.DeviationSigma,
		)
	}

	if e.Trigger != nil {
		e.deliver(ctx, e.Trigger.ForAnomalies(res.anomalies), res, log)
	}
}

func (e *Engine) deliver(ctx context.Context, reqs []incident.Request, res *targetResult, log *slog.Logger) {
	if e.Creator == nil {
		return
	}
	for _, req := range reqs {
		out := IncidentResult{
			Metric:   req.Metric,
			Backend:  e.Creator.Name(),
			Severity: req.Severity,
			Summary:  req.Summary,
		}
		id, err := incident.Deliver(ctx, e.Creator, req)
		if err != nil {
			out.Error = err.Error()
			res.warnings = append(res.warnings, err.Error())
			e.Metrics.RecordIncident(e.Creator.Name(), "failed")
			log.Warn("incident not delivered", "severity", req.Severity, "error", err)
		} else {
			out.ID = id
			e.Metrics.RecordIncident(e.Creator.Name(), "created")
			log.Info("incident created", "backend", e.Creator.Name(), "id", id, "severity", req.Severity)
		}
		res.incidents = append(res.incidents, out)
	}
}

func (e *Engine) putSnapshot(ctx context.Context, cycleID string, res *targetResult, log *slog.Logger) {
	if e.Store == nil {
		return
	}
	snap := storage.Snapshot{
		Metric:      res.target.Name,
		Kind:        res.target.Kind,
		CycleID:     cycleID,
		Status:      res.status,
		Reason:      res.reason,
		GeneratedAt: e.now().UTC(),
		Points:      res.points,
		Forecast:    res.forecast,
		Anomalies:   len(res.anomalies),
		Incidents:   len(res.incidents),
	}
	if err := e.Store.Put(ctx, snap); err != nil {
		e.Metrics.RecordError("store", "put_failed")
		log.Warn("failed to store snapshot", "error", err)
	}
}
