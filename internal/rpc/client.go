package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/types"
)

// DefaultDialTimeout bounds Dial when the context has no deadline
const DefaultDialTimeout = 5 * time.Second

// Client calls AlertService on a remote alertline
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr and blocks until the connection is ready.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}
	conn, err := grpc.DialContext(ctx, addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial alertline at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// CreateAlert raises an alert remotely.
func (c *Client) CreateAlert(ctx context.Context, req alerter.CreateRequest) (*alerter.Outcome, error) {
	out := new(alerter.Outcome)
	if err := c.invoke(ctx, "CreateAlert", &req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveAlert resolves an alert remotely.
func (c *Client) ResolveAlert(ctx context.Context, id, message string) (*alerter.Outcome, error) {
	out := new(alerter.Outcome)
	if err := c.invoke(ctx, "ResolveAlert", &ResolveAlertRequest{ID: id, Message: message}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetActiveAlerts lists active alerts matching the request.
func (c *Client) GetActiveAlerts(ctx context.Context, req GetActiveAlertsRequest) ([]types.Alert, error) {
	out := new(GetActiveAlertsResponse)
	if err := c.invoke(ctx, "GetActiveAlerts", &req, out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// GetAlert fetches one alert by id.
func (c *Client) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	out := new(types.Alert)
	if err := c.invoke(ctx, "GetAlert", &GetAlertRequest{ID: id}, out); err != nil {
		return nil, err
	}
	return out, nil
}
