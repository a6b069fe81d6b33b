package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/types"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single channel call when none is configured
const DefaultTimeout = 10 * time.Second

// Report summarizes one dispatch. Failures is in channel order.
type Report struct {
	Event     Event            `json:"event"`
	Skipped   bool             `json:"skipped"`
	Attempted []string         `json:"attempted"`
	Failed    []string         `json:"failed"`
	Failures  []*DeliveryError `json:"-"`
}

// OK reports whether every attempted channel succeeded.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Dispatcher fans notifications out to the configured channels
type Dispatcher struct {
	log      zerolog.Logger
	channels []Channel
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher over a fixed channel set.
func NewDispatcher(log zerolog.Logger, channels []Channel, timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		log:      log.With().Str("component", "dispatcher").Logger(),
		channels: channels,
		timeout:  timeout,
		metrics:  m,
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// NotifyCreated announces a new alert. Info alerts are not sent.
func (d *Dispatcher) NotifyCreated(ctx context.Context, alert types.Alert) Report {
	if alert.Severity == types.SeverityInfo {
		d.skip(EventCreated, alert)
		return Report{Event: EventCreated, Skipped: true}
	}
	return d.dispatch(ctx, EventCreated, alert)
}

// NotifyResolved announces a resolution. Only error and critical alerts are sent.
func (d *Dispatcher) NotifyResolved(ctx context.Context, alert types.Alert) Report {
	if !alert.Severity.AtLeast(types.SeverityError) {
		d.skip(EventResolved, alert)
		return Report{Event: EventResolved, Skipped: true}
	}
	return d.dispatch(ctx, EventResolved, alert)
}

func (d *Dispatcher) skip(event Event, alert types.Alert) {
	d.log.Debug().
		Str("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Str("event", string(event)).
		Msg("notification skipped by severity")
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event, alert types.Alert) Report {
	report := Report{
		Event:     event,
		Attempted: make([]string, 0, len(d.channels)),
		Failed:    []string{},
	}
	if len(d.channels) == 0 {
		return report
	}

	errs := make([]*DeliveryError, len(d.channels))
	var wg sync.WaitGroup
	for i, ch := range d.channels {
		report.Attempted = append(report.Attempted, ch.Name())
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			errs[i] = d.deliver(ctx, ch, event, alert)
		}(i, ch)
	}
	wg.Wait()

	for _, derr := range errs {
		if derr == nil {
			continue
		}
		report.Failed = append(report.Failed, derr.Channel)
		report.Failures = append(report.Failures, derr)
	}
	return report
}

// deliver calls one channel under its own deadline. Errors and panics are
// converted into a DeliveryError.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, event Event, alert types.Alert) (derr *DeliveryError) {
	name := ch.Name()
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			derr = &DeliveryError{Channel: name, Event: event, AlertID: alert.ID, Err: fmt.Errorf("panic: %v", r)}
		}

		outcome := metrics.OutcomeSent
		if derr != nil {
			outcome = metrics.OutcomeFailed
			d.log.Error().
				Err(derr.Err).
				Str("channel", name).
				Str("event", string(event)).
				Str("alert_id", alert.ID).
				Msg("Failed to send notification")
		} else {
			d.log.Info().
				Str("channel", name).
				Str("event", string(event)).
				Str("alert_id", alert.ID).
				Msg("Notification sent")
		}
		d.metrics.NotificationAttempt(name, string(event), outcome, time.Since(start))
	}()

	var err error
	switch event {
	case EventResolved:
		err = ch.SendResolution(callCtx, alert)
	default:
		err = ch.SendAlert(callCtx, alert)
	}
	if err != nil {
		return &DeliveryError{Channel: name, Event: event, AlertID: alert.ID, Err: err}
	}
	return nil
}
