// Package incident turns forecasts and anomalies into incident requests and
// hands them to one issue tracker or chat backend.
//
// The Trigger is stateless: it evaluates one cycle's results and never
// remembers what it raised before. Backends implement Creator and are
// chosen once at startup with New.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDelivery wraps every failed CreateIncident call. Delivery is never
// retried by the caller.
var ErrDelivery = errors.New("incident delivery failed")

// Severity of a requested incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Priority maps a severity onto the Highest/High/Medium/Low scale most
// trackers use.
func (s Severity) Priority() string {
	switch s {
	case SeverityCritical:
		return "Highest"
	case SeverityHigh:
		return "High"
	case SeverityLow:
		return "Low"
	default:
		return "Medium"
	}
}

// Request is one incident to open.
type Request struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	// Metric is the metric that raised the request, for logs and metrics.
	Metric string `json:"metric"`
}

// DueDateString formats the due date as YYYY-MM-DD, or "" without one.
func (r Request) DueDateString() string {
	if r.DueDate == nil {
		return ""
	}
	return r.DueDate.Format(time.DateOnly)
}

// Creator opens incidents in an external system.
type Creator interface {
	// Name identifies the backend, e.g. "jira".
	Name() string
	// CreateIncident opens an incident and returns its identifier in the
	// backend (issue key, incident number, message id).
	CreateIncident(ctx context.Context, req Request) (string, error)
}

// Deliver calls c and wraps a failure in ErrDelivery.
func Deliver(ctx context.Context, c Creator, req Request) (string, error) {
	id, err := c.CreateIncident(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", c.Name(), ErrDelivery, err)
	}
	return id, nil
}
