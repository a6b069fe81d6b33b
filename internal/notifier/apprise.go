package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/alertline/alertline/internal/types"
)

// AppriseChannel posts to a stateful Apprise API endpoint,
// POST {api_url}/notify/{key}.
type AppriseChannel struct {
	endpoint string
	client   *http.Client
}

// NewAppriseChannel creates an Apprise channel. A nil client uses a default one.
func NewAppriseChannel(apiURL, key string, client *http.Client) *AppriseChannel {
	return &AppriseChannel{
		endpoint: fmt.Sprintf("%s/notify/%s", strings.TrimRight(apiURL, "/"), key),
		client:   httpClient(client),
	}
}

func (c *AppriseChannel) Name() string { return "apprise" }

func (c *AppriseChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	return c.notify(ctx, alertTitle(alert), alertBody(alert), appriseType(alert.Severity))
}

func (c *AppriseChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	return c.notify(ctx, resolutionTitle(alert), resolutionBody(alert), "success")
}

func (c *AppriseChannel) notify(ctx context.Context, title, body, kind string) error {
	payload := map[string]string{
		"title":  title,
		"body":   body,
		"type":   kind,
		"format": "text",
	}
	if err := postJSON(ctx, c.client, c.endpoint, payload); err != nil {
		return fmt.Errorf("apprise: %w", err)
	}
	return nil
}

// appriseType maps severity onto Apprise's notification types
func appriseType(s types.Severity) string {
	switch s {
	case types.SeverityCritical, types.SeverityError:
		return "failure"
	case types.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}
