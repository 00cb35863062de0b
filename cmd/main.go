package main

import (
	"context"
	"fmt"
	logByDefault "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/gradewise/moderation-server/internal/config"
	"github.com/gradewise/moderation-server/internal/directory"
	"github.com/gradewise/moderation-server/internal/httpclient"
	log "github.com/gradewise/moderation-server/internal/log"
	"github.com/gradewise/moderation-server/internal/metrics"
	"github.com/gradewise/moderation-server/internal/moderation"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/gradewise/moderation-server/internal/notifier"
	"github.com/gradewise/moderation-server/internal/server"
	storage "github.com/gradewise/moderation-server/internal/storage"

	// This controls the maxprocs environment variable in container runtimes.
	// see https://martin.baillie.id/wrote/gotchas-in-the-go-network-packages-defaults/#bonus-gomaxprocs-containers-and-the-cfs
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	shutdownTimeout     = 30 * time.Second
	directoryProfileTTL = 5 * time.Minute
)

func main() {
	// Set the local timezone to UTC
	time.Local = time.UTC

	// Initialize the configuration
	config, err := config.MustLoadConfig()
	if err != nil {
		logByDefault.Fatalf("Config load error: %v", err)
		os.Exit(1)
	}

	// Logger configuration
	logger := log.New(
		log.WithLevel(config.Verbose),
		log.WithSource(),
	)

	if err := run(config, logger); err != nil {
		logger.ErrorContext(context.Background(), "an error occurred", slog.String("error", err.Error()))
		os.Exit(1)
	}

	os.Exit(0)
}

func run(config *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	_, err := maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		logger.DebugContext(ctx, fmt.Sprintf(s, i...))
	}))
	if err != nil {
		return fmt.Errorf("setting max procs: %w", err)
	}

	// Setup hash function
	model.InitHashFunction()

	// Setup database connection
	db, err := storage.New(config, logger)
	if err != nil {
		return fmt.Errorf("database connection error: %w", err)
	}
	defer db.Close()

	// Metrics sink: InfluxDB when configured, a discard fake otherwise
	var m metrics.Metrics
	if config.Influx.URL != "" {
		m = metrics.NewMetricsImpl(
			config.Influx.URL,
			config.Influx.Token,
			config.Influx.Org,
			config.Influx.Bucket,
			map[string]string{"environment": config.Environment},
		)
	} else {
		m = metrics.NewMetricsFake()
	}
	defer m.Close()

	// Domain events: webhook delivery when an endpoint is configured
	events := moderation.NewDispatcher(logger)

	if config.Webhook.URL != "" {
		httpClient, err := httpclient.NewHTTPClient(&config.Webhook.Proxy)
		if err != nil {
			return fmt.Errorf("webhook client setup error: %w", err)
		}

		webhook := notifier.NewWebhook(config.Webhook.URL, httpClient, logger)
		events.Subscribe(webhook.Notify)
	}

	// Moderation core
	svc := moderation.New(db, events, m, logger, moderation.Options{
		HourlyReportLimit: config.Moderation.HourlyReportLimit,
		DailyReportLimit:  config.Moderation.DailyReportLimit,
		MinReasonLength:   config.Moderation.MinReasonLength,
		DefaultSuspension: config.Moderation.DefaultSuspension,
	})

	// User directory for admin read models. The static directory is a
	// placeholder until the platform's user service is plugged in.
	users, err := directory.NewCached(directory.NewStatic(), directoryProfileTTL)
	if err != nil {
		return fmt.Errorf("directory cache setup error: %w", err)
	}
	defer users.Close()

	queue := moderation.NewReviewQueue(db, users, logger)

	// HTTP API
	srv := server.New(config, logger)
	srv.AddModerationRoutes(svc, queue)
	srv.AddHealthCheck(func() (bool, map[string]string) {
		status := map[string]string{}
		healthy := true

		if dbStatus, err := db.Status(); err != nil {
			status["database"] = err.Error()
			healthy = false
		} else {
			status["database"] = dbStatus
		}

		if srvStatus, err := srv.Status(); err != nil {
			status["server"] = err.Error()
			healthy = false
		} else {
			status["server"] = srvStatus
		}

		return healthy, status
	})

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.InfoContext(ctx, "Server started", slog.String("host", config.API.Host), slog.Int("port", config.API.Port))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.InfoContext(ctx, "Shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Let in-flight event deliveries drain before the process exits
	events.Wait()

	return nil
}
