// Package router configures the forecaster's HTTP API.
//
// Routes configured:
//   - GET /healthz - 200 "OK" when the sink and snapshot store answer
//   - GET /metrics - Prometheus metrics
//   - GET /forecast/current?metric=<name> - latest committed forecast
//   - GET /status/current[?metric=<name>] - latest cycle snapshot(s)
//   - GET /anomalies[?metric=<name>&since=YYYY-MM-DD] - recorded anomalies
//   - POST /anomalies/{id}/ack - acknowledge an anomaly
//   - GET /quality?metric=<name>[&limit=N] - model quality history
//
// Snapshots older than the stale threshold carry an X-Foresight-Stale header.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/foresight/pkg/httpx"
	"github.com/HatiCode/foresight/pkg/models"
	"github.com/HatiCode/foresight/pkg/quality"
	"github.com/HatiCode/foresight/pkg/storage"
)

// DefaultAnomalyDays is how far back /anomalies looks without ?since.
const DefaultAnomalyDays = 30

const queryTimeout = 5 * time.Second

var metricNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_.-]{0,251}[a-zA-Z0-9])?$`)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Store      storage.Store
	Querier    storage.Querier
	StaleAfter time.Duration
	// Checks back /healthz.
	Checks   []func(context.Context) error
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Now      func() time.Time
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler(d.Checks...))
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /forecast/current", handleCurrentForecast(d))
	mux.HandleFunc("GET /status/current", handleStatus(d))
	mux.HandleFunc("GET /anomalies", handleListAnomalies(d))
	mux.HandleFunc("POST /anomalies/{id}/ack", handleAckAnomaly(d))
	mux.HandleFunc("GET /quality", handleQuality(d))
	return mux
}

// metricParam returns the validated ?metric value. When required is false an
// empty value is allowed.
func metricParam(w http.ResponseWriter, r *http.Request, required bool) (string, bool) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		if required {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "metric parameter required")
			return "", false
		}
		return "", true
	}
	if !metricNameRegex.MatchString(metric) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid metric name format")
		return "", false
	}
	return metric, true
}

func internalError(w http.ResponseWriter, logger *slog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append(args, "error", err)...)
	httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

func respond(w http.ResponseWriter, logger *slog.Logger, v any) {
	if err := httpx.WriteJSON(w, http.StatusOK, v); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}

func handleCurrentForecast(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric, ok := metricParam(w, r, true)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		f, found, err := d.Querier.LatestForecast(ctx, metric)
		if err != nil {
			internalError(w, d.Logger, "failed to get forecast", err, "metric", metric)
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no forecast for metric %q", metric))
			return
		}
		respond(w, d.Logger, f)
	}
}

func handleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric, ok := metricParam(w, r, false)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		if metric == "" {
			list, err := d.Store.List(ctx)
			if err != nil {
				internalError(w, d.Logger, "failed to list snapshots", err)
				return
			}
			for _, s := range list {
				if d.stale(s) {
					w.Header().Set("X-Foresight-Stale", "true")
					break
				}
			}
			if list == nil {
				list = []storage.Snapshot{}
			}
			respond(w, d.Logger, map[string]any{"snapshots": list})
			return
		}

		s, found, err := d.Store.GetLatest(ctx, metric)
		if err != nil {
			internalError(w, d.Logger, "failed to get snapshot", err, "metric", metric)
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for metric %q", metric))
			return
		}
		if d.stale(s) {
			w.Header().Set("X-Foresight-Stale", "true")
		}
		respond(w, d.Logger, s)
	}
}

func (d Deps) stale(s storage.Snapshot) bool {
	return d.StaleAfter > 0 && d.Now().Sub(s.GeneratedAt) > d.StaleAfter
}

func handleListAnomalies(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric, ok := metricParam(w, r, false)
		if !ok {
			return
		}
		since := d.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -DefaultAnomalyDays)
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
				return
			}
			since = t
		}
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		list, err := d.Querier.ListAnomalies(ctx, metric, since)
		if err != nil {
			internalError(w, d.Logger, "failed to list anomalies", err, "metric", metric)
			return
		}
		if list == nil {
			list = []models.Anomaly{}
		}
		respond(w, d.Logger, map[string]any{
			"since":     since.Format(time.DateOnly),
			"anomalies": list,
		})
	}
}

func handleAckAnomaly(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "anomaly id required")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		err := d.Querier.AcknowledgeAnomaly(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("anomaly %q not found", id))
			return
		}
		if err != nil {
			internalError(w, d.Logger, "failed to acknowledge anomaly", err, "id", id)
			return
		}
		d.Logger.Info("anomaly acknowledged", "id", id)
		respond(w, d.Logger, map[string]any{"id": id, "acknowledged": true})
	}
}

func handleQuality(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric, ok := metricParam(w, r, true)
		if !ok {
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		entries, err := d.Querier.ListQuality(ctx, metric, limit)
		if err != nil {
			internalError(w, d.Logger, "failed to list quality", err, "metric", metric)
			return
		}
		if entries == nil {
			entries = []quality.Entry{}
		}
		summary := quality.Summarize(entries)
		summary.Metric = metric
		respond(w, d.Logger, map[string]any{
			"entries": entries,
			"summary": summary,
		})
	}
}
