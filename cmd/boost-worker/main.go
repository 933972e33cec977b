package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/di"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/internal/notifier"
	"github.com/Umairakbar1/business-backend-sub000/internal/worker"
	"github.com/Umairakbar1/business-backend-sub000/pkg/config"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: "boost-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting boost worker", "reconcile_interval", cfg.Boost.ReconcileInterval.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "boost-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("telemetry disabled", "error", err)
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("boost metrics disabled", "error", err)
	}

	if cfg.Storage.Driver == "memory" {
		appLog.Warn("memory storage is process-local; this worker only sees its own queues")
	}

	container, err := di.Build(ctx, cfg)
	if err != nil {
		appLog.Fatal("failed to build container", "error", err)
	}
	defer container.Close()

	// Start reconcile worker in background
	go container.ReconcileWorker.Start(ctx)

	// Start metrics reporter in background
	go reportMetrics(ctx, container.ReconcileWorker, appLog)

	// Notification tasks are consumed here when the API enqueues them through asynq
	if cfg.Notifier.Backend == "asynq" {
		concurrency := getEnvInt("NOTIFY_WORKER_CONCURRENCY", 5)
		srv, mux := notifier.NewNotifyServer(di.AsynqRedisOpt(cfg), cfg.Notifier.Queue, concurrency, notifier.LogDelivery)
		if err := srv.Start(mux); err != nil {
			appLog.Fatal("failed to start notification server", "error", err)
		}
		defer srv.Shutdown()
		appLog.Info("notification server started", "queue", cfg.Notifier.Queue, "concurrency", concurrency)
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down boost worker...")
	cancel()

	// Give the in-flight pass time to finish
	time.Sleep(2 * time.Second)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("failed to flush traces", "error", err)
	}
	appLog.Info("boost worker stopped")
}

// reportMetrics periodically logs worker metrics
func reportMetrics(ctx context.Context, w *worker.ReconcileWorker, log *logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := w.GetMetrics()
			if m.Passes > 0 {
				log.Info("reconcile worker metrics",
					"passes", m.Passes,
					"total_expired", m.TotalExpired,
					"total_activated", m.TotalActivated,
					"last_run", m.LastRunTime.Format(time.RFC3339),
				)
			}
		}
	}
}

// getEnvInt gets an integer environment variable with a default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}
