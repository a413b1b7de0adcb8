package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrag/opsconsole/internal/api"
	"github.com/openrag/opsconsole/internal/api/middleware"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/console"
	"github.com/openrag/opsconsole/internal/health"
	"github.com/openrag/opsconsole/internal/probe"
	"github.com/openrag/opsconsole/internal/resilience"
	"github.com/openrag/opsconsole/internal/runtime"
	"github.com/openrag/opsconsole/internal/session"
	"github.com/openrag/opsconsole/internal/stream"
	"github.com/openrag/opsconsole/internal/telemetry"
	"github.com/openrag/opsconsole/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the console API and the health monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg
	log := a.newLogger()

	log.Info().
		Str("build_time", a.build.BuildTime).
		Msg("starting opsconsole")

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: a.build.Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize http metrics: %w", err)
	}
	monitorMetrics, err := health.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize monitor metrics: %w", err)
	}

	registry := resilience.NewRegistry()

	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout,
		Registry: registry,
		Logger:   log,
	})
	runtimeClient := runtime.NewClient(runtime.ClientConfig{
		BaseURL:  cfg.Runtime.BaseURL,
		Timeout:  cfg.Runtime.Timeout,
		Registry: registry,
		Logger:   log,
	})

	monitor, err := health.NewMonitor(health.Config{
		Probes:      cfg.ServiceProbes(),
		Prober:      probe.NewRunner(probe.RunnerConfig{Logger: log}),
		Logger:      log,
		Metrics:     monitorMetrics,
		Interval:    cfg.Monitor.Interval,
		MaxInterval: cfg.Monitor.MaxInterval,
	})
	if err != nil {
		return fmt.Errorf("create health monitor: %w", err)
	}

	shell := console.NewShell(console.Config{
		Backend:     backendClient,
		PageSize:    cfg.Paging.DefaultPageSize,
		MaxPageSize: cfg.Paging.MaxPageSize,
		IdleTTL:     cfg.Shell.IdleTTL,
		Logger:      log,
	})

	hub := stream.NewHub(stream.HubConfig{Source: monitor, Logger: log})

	go monitor.Run(ctx)
	go shell.Run(ctx)
	go hub.Run(ctx)

	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Job:              worker.NewJob(worker.JobConfig{Monitor: monitor, Sweeper: shell, Logger: log}),
			Logger:           log,
		})
		if err != nil {
			return fmt.Errorf("create pubsub handler: %w", err)
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     a.build.Version,
		BuildTime:   a.build.BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.Server.RequireTLS,
		Resolver: session.NewResolver(session.ResolverConfig{
			Lookup: backendClient,
			Logger: log,
			TTL:    cfg.Session.PrincipalTTL,
		}),
		Shell:    shell,
		Monitor:  monitor,
		Runtime:  runtimeClient,
		Registry: registry,
		Stream:   hub,
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
