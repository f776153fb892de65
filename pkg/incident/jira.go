package incident

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var jiraPriorityIDs = map[string]string{
	"Highest": "1",
	"High":    "2",
	"Medium":  "3",
	"Low":     "4",
}

// Jira opens issues through the Jira Cloud REST API v3.
type Jira struct {
	URL        string
	Username   string
	APIToken   string
	ProjectKey string
	IssueType  string
	HTTPClient *http.Client
}

func (j *Jira) Name() string { return "jira" }

// CreateIncident implements Creator and returns the issue key.
func (j *Jira) CreateIncident(ctx context.Context, req Request) (string, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": j.ProjectKey},
		"summary":     req.Summary,
		"description": adfDocument(req.Description),
		"issuetype":   map[string]string{"name": j.IssueType},
		"priority":    map[string]string{"id": jiraPriorityIDs[req.Severity.Priority()]},
	}
	if due := req.DueDateString(); due != "" {
		fields["duedate"] = due
	}

	res, err := postJSON(ctx, j.HTTPClient, strings.TrimRight(j.URL, "/")+"/rest/api/3/issue",
		map[string]any{"fields": fields}, basicAuth(j.Username, j.APIToken))
	if err != nil {
		return "", err
	}
	key := res.Get("key").String()
	if key == "" {
		return "", errors.New("jira: response has no issue key")
	}
	return key, nil
}

// adfDocument wraps plain text in an Atlassian Document Format document,
// one paragraph per line.
func adfDocument(text string) map[string]any {
	var content []map[string]any
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		p := map[string]any{"type": "paragraph"}
		if line != "" {
			p["content"] = []map[string]any{{"type": "text", "text": line}}
		}
		content = append(content, p)
	}
	return map[string]any{"type": "doc", "version": 1, "content": content}
}
