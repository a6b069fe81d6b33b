package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/alertline/alertline/internal/types"
)

var slackColors = map[types.Severity]string{
	types.SeverityInfo:     "#439FE0",
	types.SeverityWarning:  "#FFCC00",
	types.SeverityError:    "#FF9000",
	types.SeverityCritical: "#FF0000",
}

const slackResolvedColor = "#36A64F"

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Fallback string       `json:"fallback"`
	Color    string       `json:"color"`
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Fields   []slackField `json:"fields,omitempty"`
	Footer   string       `json:"footer"`
	Ts       int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackChannel posts attachments to a Slack incoming webhook
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel. A nil client uses a default one.
func NewSlackChannel(webhookURL string, client *http.Client) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL, client: httpClient(client)}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	color, ok := slackColors[alert.Severity]
	if !ok {
		color = slackColors[types.SeverityInfo]
	}
	details, err := json.MarshalIndent(alert.Details, "", "  ")
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}

	payload := slackPayload{Attachments: []slackAttachment{{
		Fallback: alert.Message,
		Color:    color,
		Title:    fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message),
		Text:     fmt.Sprintf("*Source*: %s\n*Environment*: %s", alert.Source, alert.Environment),
		Fields: []slackField{{
			Title: "Details",
			Value: string(details),
			Short: false,
		}},
		Footer: "Alert ID: " + alert.ID,
		Ts:     alert.CreatedAt.Unix(),
	}}}

	if err := postJSON(ctx, c.client, c.webhookURL, payload); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

func (c *SlackChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	var ts int64
	if alert.ResolvedAt != nil {
		ts = alert.ResolvedAt.Unix()
	}
	payload := slackPayload{Attachments: []slackAttachment{{
		Fallback: "RESOLVED: " + alert.Message,
		Color:    slackResolvedColor,
		Title:    "RESOLVED: " + alert.Message,
		Text:     "Alert has been resolved at " + resolvedAt(alert),
		Footer:   "Alert ID: " + alert.ID,
		Ts:       ts,
	}}}

	if err := postJSON(ctx, c.client, c.webhookURL, payload); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}
