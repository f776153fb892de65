// Package adapters provides the data source connectors that pull daily and
// hourly telemetry rollups (capacity snapshots, session and query counts)
// from external stores and normalize them into a common DataFrame.
//
// Each adapter implements the Adapter interface and is selected by kind in
// New. Available adapters:
//   - PrometheusAdapter: range queries against the Prometheus HTTP API
//   - VictoriaMetricsAdapter: the same, against VictoriaMetrics
//   - HTTPAdapter: any REST API returning JSON, extracted with gjson paths
//   - SQLAdapter: a SQL query over a relational rollup table (sqlx)
//   - SyntheticAdapter: deterministic generated data for test mode
//
// Adapters only fetch and shape rows. Day bucketing, gap handling and the
// DataUnavailable policy belong to the series package.
package adapters

import (
	"context"
	"sort"
	"time"
)

// Row represents a single observation.
// Adapters always set "ts" (RFC3339 string or time.Time) and "value"; extra
// columns such as "used", "free" or "total" are passed through.
type Row map[string]any

// DataFrame is a lightweight structure for tabular data returned by adapters.
type DataFrame struct {
	Rows []Row
}

// Adapter is the interface that all source adapters implement.
//
// Collect is synchronous and must respect context cancellation and deadlines.
type Adapter interface {
	// Collect fetches rows for the last windowSeconds and returns them as a
	// DataFrame sorted by timestamp. It must never panic.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier for the adapter, e.g. "prometheus".
	Name() string
}

// AlignTimestamp truncates ts to the step resolution.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}

// finalizeRows sorts rows holding time.Time timestamps and rewrites the
// timestamps as RFC3339 strings.
func finalizeRows(rows []Row) []Row {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["ts"].(time.Time).Before(rows[j]["ts"].(time.Time))
	})

	for i := range rows {
		rows[i]["ts"] = rows[i]["ts"].(time.Time).UTC().Format(time.RFC3339)
	}
	return rows
}
