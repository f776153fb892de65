package storage

import (
	"context"
	"time"

	"github.com/HatiCode/foresight/pkg/models"
)

// Target kinds.
const (
	KindCapacity = "capacity"
	KindActivity = "activity"
)

// Cycle outcomes of one target.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Snapshot is the outcome of the latest cycle for one metric. Snapshots
// back the status endpoint; the durable record lives in the Sink.
type Snapshot struct {
	Metric      string           `json:"metric"`
	Kind        string           `json:"kind"`
	CycleID     string           `json:"cycle_id"`
	Status      string           `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Points      int              `json:"points"`
	Forecast    *models.Forecast `json:"forecast,omitempty"`
	Anomalies   int              `json:"anomalies"`
	Incidents   int              `json:"incidents"`
}

// Store keeps the latest Snapshot per metric.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, metric string) (Snapshot, bool, error)
	List(ctx context.Context) ([]Snapshot, error)
}
