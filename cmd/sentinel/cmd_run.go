package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/internal/config"
	"github.com/petrijr/sentinel/internal/metrics"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Sentinel and Sweeper workers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("store_close_failed", slog.Any("error", err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := sentinel.NewCompositeObserver(
		sentinel.NewLoggingObserver(logger),
		metrics.New(registry),
	)

	bundle, err := sentinel.NewBundle(store, bundleOptions(cfg, loc, observer, logger))
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = serveMetrics(cfg.Metrics, registry, logger)
	}

	if err := bundle.Supervisor.StartEnabled(); err != nil {
		logger.Error("workers_start_failed", slog.Any("error", err))
	}
	logger.Info("sentinel_started",
		slog.String("store", cfg.Store.Backend),
		slog.String("time_zone", loc.String()),
	)

	_ = bundle.Supervisor.Watch(ctx, cfg.Workers.WatchInterval)

	logger.Info("sentinel_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	errs = append(errs, bundle.Supervisor.Shutdown(shutdownCtx))
	return errors.Join(errs...)
}

func bundleOptions(cfg *config.Config, loc *time.Location, obs sentinel.Observer, logger *slog.Logger) sentinel.BundleOptions {
	return sentinel.BundleOptions{
		SentinelEnabled: cfg.Workers.SentinelEnabled,
		SweeperEnabled:  cfg.Workers.SweeperEnabled,
		Worker: sentinel.WorkerConfig{
			Location: loc,
			Queue: sentinel.QueueConfig{
				BatchSize:     cfg.Queue.BatchSize,
				PollInterval:  cfg.Queue.PollInterval,
				RetryInterval: cfg.Queue.RetryInterval,
				StartAtLatest: cfg.Queue.StartAtLatest,
			},
			ExcludedEventTypes: cfg.Workers.ExcludedEventTypes,
			SweepInterval:      cfg.Workers.SweepInterval,
			Observer:           obs,
			Logger:             logger,
		},
	}
}

func serveMetrics(cfg config.MetricsConfig, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", slog.String("addr", cfg.Addr), slog.Any("error", err))
		}
	}()
	logger.Info("metrics_listening", slog.String("addr", cfg.Addr), slog.String("path", path))
	return srv
}
