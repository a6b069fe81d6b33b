package notifier

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alertline/alertline/internal/config"
	"github.com/alertline/alertline/internal/types"
)

type pagerDutyEvent struct {
	ServiceKey  string `json:"service_key"`
	EventType   string `json:"event_type"`
	IncidentKey string `json:"incident_key"`
	Description string `json:"description"`
	Details     any    `json:"details"`
}

// PagerDutyChannel opens and resolves incidents through the Events API v1.
// Incidents are keyed by alert id.
type PagerDutyChannel struct {
	serviceKey string
	eventsURL  string
	client     *http.Client
}

// NewPagerDutyChannel creates a PagerDuty channel. A nil client uses a default one.
func NewPagerDutyChannel(serviceKey, eventsURL string, client *http.Client) *PagerDutyChannel {
	if eventsURL == "" {
		eventsURL = config.DefaultPagerDutyEventsURL
	}
	return &PagerDutyChannel{
		serviceKey: serviceKey,
		eventsURL:  eventsURL,
		client:     httpClient(client),
	}
}

func (c *PagerDutyChannel) Name() string { return "pagerduty" }

// SendAlert triggers an incident. Alerts below error never page.
func (c *PagerDutyChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	if !alert.Severity.AtLeast(types.SeverityError) {
		return nil
	}
	event := pagerDutyEvent{
		ServiceKey:  c.serviceKey,
		EventType:   "trigger",
		IncidentKey: alert.ID,
		Description: alert.Message,
		Details:     alert,
	}
	if err := postJSON(ctx, c.client, c.eventsURL, event); err != nil {
		return fmt.Errorf("failed to create PagerDuty incident: %w", err)
	}
	return nil
}

// SendResolution resolves the incident opened for the alert.
func (c *PagerDutyChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	message := "Alert resolved"
	if alert.ResolutionMessage != nil {
		message = *alert.ResolutionMessage
	}
	event := pagerDutyEvent{
		ServiceKey:  c.serviceKey,
		EventType:   "resolve",
		IncidentKey: alert.ID,
		Description: "RESOLVED: " + alert.Message,
		Details: map[string]string{
			"resolution_message": message,
			"resolved_at":        resolvedAt(alert),
		},
	}
	if err := postJSON(ctx, c.client, c.eventsURL, event); err != nil {
		return fmt.Errorf("failed to resolve PagerDuty incident: %w", err)
	}
	return nil
}
