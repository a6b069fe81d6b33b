package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/alertline/alertline/internal/types"
)

// SendFunc delivers message to one shoutrrr service URL.
type SendFunc func(url, message string) error

// ShoutrrrChannel renders alerts as text and sends them to every configured
// service URL (ntfy, telegram, discord, ...).
type ShoutrrrChannel struct {
	urls []string
	send SendFunc
}

// NewShoutrrrChannel creates a shoutrrr channel. A nil send uses shoutrrr.Send.
func NewShoutrrrChannel(urls []string, send SendFunc) *ShoutrrrChannel {
	if send == nil {
		send = shoutrrr.Send
	}
	return &ShoutrrrChannel{urls: append([]string(nil), urls...), send: send}
}

func (c *ShoutrrrChannel) Name() string { return "shoutrrr" }

func (c *ShoutrrrChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	return c.broadcast(ctx, alertTitle(alert)+"\n\n"+alertBody(alert))
}

func (c *ShoutrrrChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	return c.broadcast(ctx, resolutionTitle(alert)+"\n\n"+resolutionBody(alert))
}

// broadcast tries every URL and joins the failures. shoutrrr.Send takes no
// context, so the call runs in a goroutine and is abandoned on cancellation.
func (c *ShoutrrrChannel) broadcast(ctx context.Context, message string) error {
	done := make(chan error, 1)
	go func() {
		var errs []error
		for i, u := range c.urls {
			if err := c.send(u, message); err != nil {
				errs = append(errs, fmt.Errorf("service %d: %w", i, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("shoutrrr: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shoutrrr: %w", ctx.Err())
	}
}
