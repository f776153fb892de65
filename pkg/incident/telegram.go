package incident

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultTelegramURL is the Bot API base.
const DefaultTelegramURL = "https://api.telegram.org"

var severityMarks = map[Severity]string{
	SeverityCritical: "[CRITICAL]",
	SeverityHigh:     "[HIGH]",
	SeverityMedium:   "[MEDIUM]",
	SeverityLow:      "[LOW]",
}

// Telegram posts incidents as chat messages through a bot.
type Telegram struct {
	URL        string
	BotToken   string
	ChatID     string
	HTTPClient *http.Client
}

func (t *Telegram) Name() string { return "telegram" }

// CreateIncident implements Creator and returns the message id.
func (t *Telegram) CreateIncident(ctx context.Context, req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n%s", severityMarks[req.Severity], req.Summary, req.Description)
	if due := req.DueDateString(); due != "" {
		fmt.Fprintf(&b, "\nDue: %s", due)
	}

	base := t.URL
	if base == "" {
		base = DefaultTelegramURL
	}
	payload := map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     b.String(),
		"disable_web_page_preview": true,
	}
	res, err := postJSON(ctx, t.HTTPClient, strings.TrimRight(base, "/")+"/bot"+t.BotToken+"/sendMessage", payload, nil)
	if err != nil {
		return "", err
	}
	if !res.Get("ok").Bool() {
		return "", fmt.Errorf("telegram: %s", res.Get("description").String())
	}
	id := res.Get("result.message_id").String()
	if id == "" {
		return "", errors.New("telegram: response has no message id")
	}
	return id, nil
}
