package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Umairakbar1/business-backend-sub000/internal/di"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/pkg/config"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/middleware"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	level := "info"
	if cfg.App.Debug {
		level = "debug"
	}
	if err := logger.Init(&logger.Config{
		Level:       level,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting boost api", "version", cfg.App.Version, "environment", cfg.App.Environment)

	ctx := context.Background()

	if err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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

	container, err := di.Build(ctx, cfg)
	if err != nil {
		appLog.Fatal("failed to build container", "error", err)
	}
	defer container.Close()

	// Catch up on windows that elapsed while no process was running
	if cfg.Boost.ReconcileOnStartup {
		summary := container.Reconciler.ReconcileAll(ctx)
		appLog.Info("startup reconcile finished",
			"categories", summary.Categories,
			"expired", summary.Expired,
			"activated", summary.Activated,
			"failed", summary.Failed,
		)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.App.Name, "/health", "/ready"))

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)
	router.POST("/webhooks/stripe", container.WebhookHandler.HandleStripeWebhook)

	var writeMiddleware []gin.HandlerFunc
	if container.Redis != nil {
		writeMiddleware = append(writeMiddleware, middleware.Idempotency(middleware.IdempotencyConfig{
			Redis: container.Redis,
			TTL:   cfg.Boost.IdempotencyTTL,
		}))
	}

	v1 := router.Group("/api/v1", middleware.JWTAuth(middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	}))
	container.BoostHandler.RegisterRoutes(v1, writeMiddleware...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("boost api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("failed to flush traces", "error", err)
	}

	appLog.Info("server exited gracefully")
}
