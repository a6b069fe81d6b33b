package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/api"
	"github.com/alertline/alertline/internal/config"
	"github.com/alertline/alertline/internal/evaluator"
	"github.com/alertline/alertline/internal/logbuffer"
	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/notifier"
	"github.com/alertline/alertline/internal/rpc"
)

const logBufferSize = 1000

type serveOptions struct {
	configPath string
	envFile    string
	logLevel   string
	httpAddr   string
	grpcAddr   string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert engine with its HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "alertline.yaml", "path to the YAML or JSON configuration file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	f.StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	f.StringVar(&opts.httpAddr, "http-addr", "", "override the HTTP listen address")
	f.StringVar(&opts.grpcAddr, "grpc-addr", "", "override the gRPC listen address")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions, stdout io.Writer) error {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.httpAddr != "" {
		cfg.Server.HTTPAddr = opts.httpAddr
	}
	if opts.grpcAddr != "" {
		cfg.Server.GRPCAddr = opts.grpcAddr
	}

	logs := logbuffer.New(logBufferSize)
	logger, err := newLogger(stdout, logs, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger.Info().
		Str("config_path", opts.configPath).
		Int("deduplication_window", cfg.DeduplicationWindow).
		Int("auto_resolve_time", cfg.AutoResolveTime).
		Msg("Starting alertline")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	channels, closers := notifier.BuildChannels(cfg.Notification, &http.Client{}, logger)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing notification channel")
			}
		}
	}()
	dispatcher := notifier.NewDispatcher(logger, channels, cfg.NotificationTimeoutDuration(), m)

	engine := alerter.NewEngine(logger, alerter.NewMemoryStore(), cfg.DeduplicationWindowDuration(), dispatcher,
		alerter.WithMetrics(m))
	sweeper := alerter.NewSweeper(logger, engine, cfg.AutoResolveDuration(), cfg.AutoResolveIntervalDuration())
	eval := evaluator.NewEvaluator(cfg, engine, logger)

	httpServer := api.NewServer(engine, eval, logger, cfg.Server.HTTPAddr)
	httpServer.SetLogBuffer(logs)
	httpServer.SetMetricsHandler(m.Handler())
	httpServer.SetChannels(dispatcher.Channels())

	grpcServer := rpc.NewServer(engine, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return httpServer.Start(gctx)
	})
	g.Go(func() error {
		return grpcServer.ListenAndServe(gctx, cfg.Server.GRPCAddr)
	})

	logger.Info().Msg("alertline running, press Ctrl+C to stop")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Server error")
		return err
	}
	logger.Info().Msg("alertline stopped")
	return nil
}
