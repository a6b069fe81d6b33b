package notifier

import (
	"context"
	"fmt"

	"github.com/alertline/alertline/internal/types"
)

// Event names the lifecycle transition being announced
type Event string

const (
	EventCreated  Event = "created"
	EventResolved Event = "resolved"
)

// Channel delivers alert notifications to one external sink.
type Channel interface {
	Name() string
	SendAlert(ctx context.Context, alert types.Alert) error
	SendResolution(ctx context.Context, alert types.Alert) error
}

// DeliveryError records a failed delivery on a single channel.
type DeliveryError struct {
	Channel string
	Event   Event
	AlertID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s notification for alert %s failed: %v", e.Channel, e.Event, e.AlertID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
