package incident

import (
	"fmt"
	"strings"
)

// New creates a backend from kind and a settings map, usually built from
// ITSM_* environment variables (ITSM_PROJECT_ID becomes "projectId").
//
// Supported kinds and their settings:
//   - "jira": url, username, token, projectId (default "IT"), issueType (default "Task")
//   - "youtrack": url, token, projectId
//   - "servicenow": instance or url; username and password, or clientId,
//     clientSecret and optional tokenUrl; assignmentGroup
//   - "redmine": url, token, projectId
//   - "gitlab": url (default https://gitlab.com), token, projectId
//   - "telegram": token, chatId, url (optional API base)
//   - "webhook": url, token (optional bearer)
//   - "none" or "": no backend
func New(kind string, settings map[string]string) (Creator, error) {
	need := func(keys ...string) error {
		var missing []string
		for _, k := range keys {
			if settings[k] == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s backend requires %s", kind, strings.Join(missing, ", "))
		}
		return nil
	}

	switch kind {
	case "", "none":
		return Noop{}, nil
	case "jira":
		if err := need("url", "username", "token"); err != nil {
			return nil, err
		}
		return &Jira{
			URL:        settings["url"],
			Username:   settings["username"],
			APIToken:   settings["token"],
			ProjectKey: withDefault(settings["projectId"], "IT"),
			IssueType:  withDefault(settings["issueType"], "Task"),
		}, nil
	case "youtrack":
		if err := need("url", "token", "projectId"); err != nil {
			return nil, err
		}
		return &YouTrack{URL: settings["url"], Token: settings["token"], ProjectID: settings["projectId"]}, nil
	case "servicenow":
		return newServiceNow(settings)
	case "redmine":
		if err := need("url", "token", "projectId"); err != nil {
			return nil, err
		}
		return &Redmine{URL: settings["url"], APIKey: settings["token"], ProjectID: settings["projectId"]}, nil
	case "gitlab":
		if err := need("token", "projectId"); err != nil {
			return nil, err
		}
		return &GitLab{
			URL:       withDefault(settings["url"], "https://gitlab.com"),
			ProjectID: settings["projectId"],
			Token:     settings["token"],
		}, nil
	case "telegram":
		if err := need("token", "chatId"); err != nil {
			return nil, err
		}
		return &Telegram{URL: settings["url"], BotToken: settings["token"], ChatID: settings["chatId"]}, nil
	case "webhook":
		if err := need("url"); err != nil {
			return nil, err
		}
		return &Webhook{URL: settings["url"], Token: settings["token"]}, nil
	default:
		return nil, fmt.Errorf("unknown incident backend: %s (must be jira, youtrack, servicenow, redmine, gitlab, telegram, webhook, or none)", kind)
	}
}

func newServiceNow(settings map[string]string) (Creator, error) {
	base := settings["url"]
	if base == "" && settings["instance"] != "" {
		base = "https://" + settings["instance"] + ".service-now.com"
	}
	if base == "" {
		return nil, fmt.Errorf("servicenow backend requires instance or url")
	}

	var s *ServiceNow
	switch {
	case settings["clientId"] != "":
		if settings["clientSecret"] == "" {
			return nil, fmt.Errorf("servicenow backend requires clientSecret with clientId")
		}
		s = NewServiceNowOAuth(base, settings["clientId"], settings["clientSecret"], settings["tokenUrl"])
	case settings["username"] != "":
		s = &ServiceNow{URL: base, Username: settings["username"], Password: settings["password"]}
	default:
		return nil, fmt.Errorf("servicenow backend requires username/password or clientId/clientSecret")
	}
	s.AssignmentGroup = settings["assignmentGroup"]
	return s, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
