package adapters

import (
	"context"
	"errors"
	"net/http"
)

// VictoriaMetricsAdapter fetches rollups from VictoriaMetrics via its
// Prometheus-compatible /api/v1/query_range endpoint. Rows have the same
// shape as PrometheusAdapter rows and multiple series are summed per timestamp.
type VictoriaMetricsAdapter struct {
	// ServerURL is the base URL to VictoriaMetrics, e.g. http://victoria-metrics:8428
	ServerURL string
	// Query is the MetricsQL/PromQL expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to one day if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (v *VictoriaMetricsAdapter) Name() string { return "victoria-metrics" }

// Collect implements Adapter.
func (v *VictoriaMetricsAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if v.ServerURL == "" || v.Query == "" {
		return &DataFrame{}, errors.New("victoria metrics adapter: ServerURL and Query are required")
	}
	return queryRange(ctx, v.HTTPClient, "victoria-metrics", v.ServerURL, v.Query, v.StepSeconds, windowSeconds)
}
