package incident

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Default Redmine priority ids: Low=2 .. Immediate=5.
var redminePriorityIDs = map[string]int{
	"Highest": 5,
	"High":    4,
	"Medium":  3,
	"Low":     2,
}

// Redmine opens issues through the Redmine REST API.
type Redmine struct {
	URL        string
	APIKey     string
	ProjectID  string
	HTTPClient *http.Client
}

func (r *Redmine) Name() string { return "redmine" }

// CreateIncident implements Creator and returns the issue id.
func (r *Redmine) CreateIncident(ctx context.Context, req Request) (string, error) {
	issue := map[string]any{
		"project_id":  r.ProjectID,
		"subject":     req.Summary,
		"description": req.Description,
		"priority_id": redminePriorityIDs[req.Severity.Priority()],
	}
	if due := req.DueDateString(); due != "" {
		issue["due_date"] = due
	}

	res, err := postJSON(ctx, r.HTTPClient, strings.TrimRight(r.URL, "/")+"/issues.json",
		map[string]any{"issue": issue}, header("X-Redmine-API-Key", r.APIKey))
	if err != nil {
		return "", err
	}
	id := res.Get("issue.id").String()
	if id == "" {
		return "", errors.New("redmine: response has no issue id")
	}
	return id, nil
}
