package incident

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// GitLab opens issues in one project. Severity becomes a scoped
// priority:: label.
type GitLab struct {
	URL string
	// ProjectID is the numeric id or the full path, e.g. "infra/disks".
	ProjectID  string
	Token      string
	HTTPClient *http.Client
}

func (g *GitLab) Name() string { return "gitlab" }

// CreateIncident implements Creator and returns the project-scoped iid.
func (g *GitLab) CreateIncident(ctx context.Context, req Request) (string, error) {
	payload := map[string]any{
		"title":       req.Summary,
		"description": req.Description,
		"labels":      "priority::" + strings.ToLower(string(req.Severity)),
	}
	if due := req.DueDateString(); due != "" {
		payload["due_date"] = due
	}

	endpoint := strings.TrimRight(g.URL, "/") + "/api/v4/projects/" + url.PathEscape(g.ProjectID) + "/issues"
	res, err := postJSON(ctx, g.HTTPClient, endpoint, payload, bearer(g.Token))
	if err != nil {
		return "", err
	}
	iid := res.Get("iid").String()
	if iid == "" {
		return "", errors.New("gitlab: response has no issue iid")
	}
	return iid, nil
}
