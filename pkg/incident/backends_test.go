package incident

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type captured struct {
	method string
	path   string
	header http.Header
	body   gjson.Result
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.method = r.Method
		c.path = r.URL.Path
		c.header = r.Header.Clone()
		c.body = gjson.ParseBytes(raw)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func sampleRequest() Request {
	due := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	return Request{
		Summary:     "disk_d: capacity limit in 5 days",
		Description: "line one\nline two\n",
		Severity:    SeverityCritical,
		DueDate:     &due,
		Metric:      "disk_d",
	}
}

func TestJira_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusCreated, `{"id":"10001","key":"IT-42"}`)
	j := &Jira{URL: srv.URL, Username: "bot@example.com", APIToken: "secret", ProjectKey: "IT", IssueType: "Task"}

	id, err := j.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "IT-42", id)

	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/rest/api/3/issue", c.path)
	user, pass, ok := (&http.Request{Header: c.header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "bot@example.com", user)
	assert.Equal(t, "secret", pass)

	assert.Equal(t, "IT", c.body.Get("fields.project.key").String())
	assert.Equal(t, "1", c.body.Get("fields.priority.id").String())
	assert.Equal(t, "2024-06-05", c.body.Get("fields.duedate").String())
	assert.Equal(t, "doc", c.body.Get("fields.description.type").String())
	assert.Equal(t, "line two", c.body.Get("fields.description.content.1.content.0.text").String())
}

func TestYouTrack_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"id":"2-17","idReadable":"OPS-17"}`)
	y := &YouTrack{URL: srv.URL, Token: "perm:abc", ProjectID: "0-1"}

	id, err := y.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "OPS-17", id)
	assert.Equal(t, "/api/issues", c.path)
	assert.Equal(t, "Bearer perm:abc", c.header.Get("Authorization"))
	assert.Equal(t, "0-1", c.body.Get("project.id").String())
	assert.Equal(t, "Critical", c.body.Get("customFields.0.value.name").String())
	assert.Contains(t, c.body.Get("description").String(), "Due: 2024-06-05")
}

func TestServiceNow_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusCreated, `{"result":{"number":"INC0010001","sys_id":"abc"}}`)
	s := &ServiceNow{URL: srv.URL, Username: "admin", Password: "pw", AssignmentGroup: "storage"}

	req := sampleRequest()
	req.Severity = SeverityHigh
	id, err := s.CreateIncident(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "INC0010001", id)
	assert.Equal(t, "/api/now/table/incident", c.path)
	assert.Equal(t, "1", c.body.Get("urgency").String())
	assert.Equal(t, "2", c.body.Get("impact").String())
	assert.Equal(t, "Infrastructure", c.body.Get("category").String())
	assert.Equal(t, "storage", c.body.Get("assignment_group").String())
}

func TestServiceNow_OAuth(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth_token.do", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	var auth string
	mux.HandleFunc("/api/now/table/incident", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":{"number":"INC2"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewServiceNowOAuth(srv.URL, "client", "secret", "")
	id, err := s.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INC2", id)
	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, 1, tokenCalls)
}

func TestRedmine_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusCreated, `{"issue":{"id":311}}`)
	r := &Redmine{URL: srv.URL, APIKey: "key", ProjectID: "ops"}

	id, err := r.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "311", id)
	assert.Equal(t, "/issues.json", c.path)
	assert.Equal(t, "key", c.header.Get("X-Redmine-API-Key"))
	assert.Equal(t, int64(5), c.body.Get("issue.priority_id").Int())
	assert.Equal(t, "2024-06-05", c.body.Get("issue.due_date").String())
}

func TestGitLab_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusCreated, `{"id":9001,"iid":12}`)
	g := &GitLab{URL: srv.URL, ProjectID: "42", Token: "glpat"}

	id, err := g.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "12", id)
	assert.Equal(t, "/api/v4/projects/42/issues", c.path)
	assert.Equal(t, "Bearer glpat", c.header.Get("Authorization"))
	assert.Equal(t, "priority::critical", c.body.Get("labels").String())
}

func TestTelegram_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"ok":true,"result":{"message_id":77}}`)
	tg := &Telegram{URL: srv.URL, BotToken: "123:abc", ChatID: "-100"}

	id, err := tg.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, "/bot123:abc/sendMessage", c.path)
	assert.Equal(t, "-100", c.body.Get("chat_id").String())
	assert.Contains(t, c.body.Get("text").String(), "[CRITICAL] disk_d")
}

func TestWebhook_CreateIncident(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"id":"evt-1"}`)
	w := &Webhook{URL: srv.URL + "/hook"}

	id, err := w.CreateIncident(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	assert.Equal(t, "Highest", c.body.Get("priority").String())
	assert.Equal(t, "2024-06-05", c.body.Get("due_date").String())
	assert.Equal(t, "critical", c.body.Get("severity").String())
	assert.Empty(t, c.header.Get("Authorization"))
}

func TestDeliver_WrapsFailure(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest, `{"errorMessages":["bad project"]}`)
	j := &Jira{URL: srv.URL, ProjectKey: "NOPE", IssueType: "Task"}

	_, err := Deliver(context.Background(), j, sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDelivery))
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "bad project")
}

func TestDeliver_MissingID(t *testing.T) {
	srv, _ := captureServer(t, http.StatusCreated, `{}`)
	_, err := Deliver(context.Background(), &GitLab{URL: srv.URL, ProjectID: "1"}, sampleRequest())
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestNoop(t *testing.T) {
	id, err := Noop{}.CreateIncident(context.Background(), sampleRequest())
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestRequestJSON(t *testing.T) {
	b, err := json.Marshal(sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "critical", gjson.GetBytes(b, "severity").String())
}
