package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/config"
	"github.com/alertline/alertline/internal/rpc"
	"github.com/alertline/alertline/internal/types"
)

const callTimeout = 15 * time.Second

// withClient dials addr and runs fn with a bounded context.
func withClient(ctx context.Context, addr string, fn func(context.Context, *rpc.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := rpc.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addAddrFlag(cmd *cobra.Command, addr *string) {
	cmd.Flags().StringVar(addr, "addr", "localhost"+config.DefaultGRPCAddr, "gRPC address of a running alertline")
}

func newSendCmd() *cobra.Command {
	var (
		addr     string
		severity string
		req      alerter.CreateRequest
		entities []string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Raise an alert on a running alertline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Severity = types.Severity(severity)
			req.RelatedEntities = entities
			return withClient(cmd.Context(), addr, func(ctx context.Context, c *rpc.Client) error {
				out, err := c.CreateAlert(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	f := cmd.Flags()
	addAddrFlag(cmd, &addr)
	f.StringVar(&req.Type, "type", "", "alert type, e.g. latency_spike")
	f.StringVar(&req.Source, "source", "", "component that raised the alert")
	f.StringVar(&severity, "severity", string(types.SeverityWarning), "info, warning, error or critical")
	f.StringVarP(&req.Message, "message", "m", "", "human readable description")
	f.StringVarP(&req.Environment, "environment", "e", "", "deployment environment")
	f.StringSliceVar(&entities, "related", nil, "related entity ids")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newResolveCmd() *cobra.Command {
	var addr, message string
	cmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an active alert on a running alertline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), addr, func(ctx context.Context, c *rpc.Client) error {
				out, err := c.ResolveAlert(ctx, args[0], message)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	addAddrFlag(cmd, &addr)
	cmd.Flags().StringVarP(&message, "message", "m", "", "resolution message")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		addr string
		req  rpc.GetActiveAlertsRequest
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active alerts on a running alertline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), addr, func(ctx context.Context, c *rpc.Client) error {
				alerts, err := c.GetActiveAlerts(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alerts)
			})
		},
	}
	addAddrFlag(cmd, &addr)
	f := cmd.Flags()
	f.StringVarP(&req.Environment, "environment", "e", "", "only alerts in this environment")
	f.StringVar(&req.Severity, "severity", "", "only alerts with this severity")
	f.StringVar(&req.Source, "source", "", "only alerts from this source")
	return cmd
}

func newGetCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "get <alert-id>",
		Short: "Show one alert from a running alertline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), addr, func(ctx context.Context, c *rpc.Client) error {
				alert, err := c.GetAlert(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alert)
			})
		},
	}
	addAddrFlag(cmd, &addr)
	return cmd
}
