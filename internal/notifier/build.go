package notifier

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/alertline/alertline/internal/config"
)

// BuildChannels creates the enabled channels in a fixed order. The returned
// closers release connections held by the channels and should be closed on
// shutdown.
func BuildChannels(cfg config.NotificationConfig, client *http.Client, log zerolog.Logger) ([]Channel, []io.Closer) {
	var (
		channels []Channel
		closers  []io.Closer
	)

	if cfg.Email.Enabled {
		channels = append(channels, NewEmailChannel(cfg.Email, nil))
	}
	if cfg.Slack.Enabled {
		channels = append(channels, NewSlackChannel(cfg.Slack.WebhookURL, client))
	}
	if cfg.PagerDuty.Enabled {
		channels = append(channels, NewPagerDutyChannel(cfg.PagerDuty.ServiceKey, cfg.PagerDuty.EventsURL, client))
	}
	if cfg.Apprise.Enabled {
		channels = append(channels, NewAppriseChannel(cfg.Apprise.APIURL, cfg.Apprise.Key, client))
	}
	if cfg.Shoutrrr.Enabled {
		channels = append(channels, NewShoutrrrChannel(cfg.Shoutrrr.URLs, nil))
	}
	if cfg.Redis.Enabled {
		rdb := NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		channels = append(channels, NewRedisChannel(rdb, cfg.Redis.Channel))
		closers = append(closers, rdb)
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name()
	}
	log.Info().Strs("channels", names).Msg("Notification channels configured")

	return channels, closers
}
