package incident

import (
	"context"
	"net/http"
)

// Webhook posts the request as JSON to an arbitrary endpoint. The id is
// read from the "id" field of the response, if any.
type Webhook struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

func (w *Webhook) Name() string { return "webhook" }

// CreateIncident implements Creator.
func (w *Webhook) CreateIncident(ctx context.Context, req Request) (string, error) {
	payload := struct {
		Request
		Priority string `json:"priority"`
		DueDate  string `json:"due_date,omitempty"`
	}{Request: req, Priority: req.Severity.Priority(), DueDate: req.DueDateString()}

	var auth authFunc
	if w.Token != "" {
		auth = bearer(w.Token)
	}
	res, err := postJSON(ctx, w.HTTPClient, w.URL, payload, auth)
	if err != nil {
		return "", err
	}
	return res.Get("id").String(), nil
}

// Noop discards every request. It is the backend when none is configured.
type Noop struct{}

func (Noop) Name() string { return "none" }

// CreateIncident implements Creator.
func (Noop) CreateIncident(context.Context, Request) (string, error) { return "", nil }
