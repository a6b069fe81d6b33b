package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alertline/alertline/internal/types"
)

// Publisher is the subset of *redis.Client used by RedisChannel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// LifecycleEvent is the JSON message published for every transition.
type LifecycleEvent struct {
	Event Event       `json:"event"`
	At    time.Time   `json:"at"`
	Alert types.Alert `json:"alert"`
}

// RedisChannel publishes lifecycle events on a Redis pub/sub channel so
// dashboards can stream them.
type RedisChannel struct {
	pub     Publisher
	channel string
}

// NewRedisChannel creates a channel publishing on the named pub/sub channel.
func NewRedisChannel(pub Publisher, channel string) *RedisChannel {
	return &RedisChannel{pub: pub, channel: channel}
}

// NewRedisClient builds the client used by RedisChannel.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *RedisChannel) Name() string { return "redis" }

func (c *RedisChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	return c.publish(ctx, LifecycleEvent{Event: EventCreated, At: alert.CreatedAt, Alert: alert})
}

func (c *RedisChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	at := alert.UpdatedAt
	if alert.ResolvedAt != nil {
		at = *alert.ResolvedAt
	}
	return c.publish(ctx, LifecycleEvent{Event: EventResolved, At: at, Alert: alert})
}

func (c *RedisChannel) publish(ctx context.Context, ev LifecycleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	if err := c.pub.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", c.channel, err)
	}
	return nil
}
