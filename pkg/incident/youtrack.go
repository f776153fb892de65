package incident

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var youTrackPriorities = map[string]string{
	"Highest": "Critical",
	"High":    "Major",
	"Medium":  "Normal",
	"Low":     "Minor",
}

// YouTrack opens issues through the YouTrack REST API.
type YouTrack struct {
	URL        string
	Token      string
	ProjectID  string
	HTTPClient *http.Client
}

func (y *YouTrack) Name() string { return "youtrack" }

// CreateIncident implements Creator and returns the readable issue id.
func (y *YouTrack) CreateIncident(ctx context.Context, req Request) (string, error) {
	description := req.Description
	if due := req.DueDateString(); due != "" {
		description += "\nDue: " + due + "\n"
	}
	payload := map[string]any{
		"project":     map[string]string{"id": y.ProjectID},
		"summary":     req.Summary,
		"description": description,
		"customFields": []map[string]any{{
			"name":  "Priority",
			"$type": "SingleEnumIssueCustomField",
			"value": map[string]string{"name": youTrackPriorities[req.Severity.Priority()]},
		}},
	}

	res, err := postJSON(ctx, y.HTTPClient, strings.TrimRight(y.URL, "/")+"/api/issues?fields=id,idReadable",
		payload, bearer(y.Token))
	if err != nil {
		return "", err
	}
	if id := res.Get("idReadable").String(); id != "" {
		return id, nil
	}
	if id := res.Get("id").String(); id != "" {
		return id, nil
	}
	return "", errors.New("youtrack: response has no issue id")
}
