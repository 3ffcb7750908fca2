// Package main is the entry point for the worktrack daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"worktrack/internal/autotimer"
	"worktrack/internal/clock"
	"worktrack/internal/config"
	"worktrack/internal/controller"
	"worktrack/internal/controller/handlers"
	"worktrack/internal/geofence"
	"worktrack/internal/jobs"
	"worktrack/internal/location"
	"worktrack/internal/logger"
	"worktrack/internal/notify"
	"worktrack/internal/observability"
	"worktrack/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Samples older than this are not used for on-demand geofence checks.
const sampleMaxAge = 10 * time.Minute

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel)
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "worktrackd", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			appLogger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(ctx, "worktrackd")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			appLogger.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Stores
	st, err := openStores(ctx, cfg, *migrateFlag, appLogger)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer st.Close()

	// Location and geofencing
	clk := clock.Real{}
	source := location.NewPushSource(clk, sampleMaxAge)
	monitor := geofence.NewMonitor(source,
		geofence.WithClock(clk),
		geofence.WithLogger(appLogger),
		geofence.WithExitHysteresis(cfg.ExitHysteresis),
		geofence.WithWatchOptions(geofence.WatchOptions{
			Interval:          cfg.LocationInterval,
			MinDistanceMeters: cfg.LocationMinDistance,
		}),
	)

	notifier, closeNotifier := newNotifier(cfg, clk, appLogger)
	defer closeNotifier()

	svc := autotimer.New(st.sessions, st.kv, monitor,
		autotimer.WithClock(clk),
		autotimer.WithLogger(appLogger),
		autotimer.WithNotifier(notifier),
		autotimer.WithConfig(autotimer.Config{
			TickInterval: cfg.CountdownTick,
			ReminderLead: cfg.ReminderLead,
		}),
	)
	svc.AddStatusListener(func(s autotimer.Status) {
		appLogger.Debug("auto-timer status", "state", s.State, "job_id", s.JobID, "message", s.Message)
	})
	registerGauges(svc, appLogger)

	// Jobs file
	var reloader handlers.JobsReloader
	jobList, err := st.sessions.GetJobs(ctx)
	if err != nil {
		log.Fatalf("Failed to load jobs: %v", err)
	}
	if cfg.JobsFile != "" {
		watcher := jobs.NewWatcher(cfg.JobsFile, st.sessions, func(ctx context.Context, js []store.Job) {
			svc.UpdateJobs(ctx, js)
		}, appLogger)

		jobList, err = watcher.Reload(ctx)
		if err != nil {
			log.Fatalf("Failed to load jobs file: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("Failed to watch jobs file: %v", err)
		}
		defer watcher.Stop()
		reloader = watcher
	}

	if !svc.Start(ctx, jobList) {
		appLogger.Warn("auto-timer not started", "jobs", len(jobList))
	}
	defer svc.Stop(context.Background())

	// Start Server
	h := handlers.New(handlers.Deps{
		Service:  svc,
		Geofence: monitor,
		Location: source,
		Store:    st.sessions,
		Jobs:     reloader,
		Logger:   appLogger,
	})
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, controller.Options{
		TokenHash: cfg.TokenHash(),
		RateLimit: cfg.APIRateLimit,
		Metrics:   metricsHandler,
	})

	appLogger.Info("worktrackd starting", "addr", addr, "jobs", len(jobList))
	if err := srv.Run(ctx); err != nil {
		appLogger.Error("server stopped", "error", err)
		return
	}
	appLogger.Info("server exited properly")
}

func newNotifier(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (notify.Notifier, func()) {
	if cfg.NotifyWebhookURL == "" {
		return notify.NewLogNotifier(logger, clk), func() {}
	}
	n := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:       cfg.NotifyWebhookURL,
		RateLimit: rate.Limit(cfg.NotifyRateLimit),
	}, clk, logger)
	return n, n.Close
}

// registerGauges exposes the countdown as an observable gauge read on scrape.
func registerGauges(svc *autotimer.Service, logger *slog.Logger) {
	meter := otel.Meter("worktrackd")
	_, err := meter.Float64ObservableGauge("worktrack.autotimer.remaining_seconds",
		metric.WithDescription("Seconds until the pending action runs"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			obs.Observe(svc.GetStatus().RemainingSeconds)
			return nil
		}),
	)
	if err != nil {
		logger.Warn("failed to register countdown gauge", "error", err)
	}
}
