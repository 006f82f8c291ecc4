package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thunder45/service-translate/internal/app"
	"github.com/thunder45/service-translate/internal/config"
	"github.com/thunder45/service-translate/internal/httpapi"
	"github.com/thunder45/service-translate/internal/telemetry"
	"github.com/thunder45/service-translate/pkg/logging"
)

// This is the main entry point for the translation broadcast server.
// Loads configuration, wires every component, and exposes the WebSocket
// and HTTP surfaces over a single gin Engine.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Debug)
	logger.Info("logger initialized")

	shutdownTelemetry, err := telemetry.Setup(context.Background(), "service-translate")
	if err != nil {
		logger.Fatalf("failed to set up telemetry: %v", err)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to initialize application: %v", err)
	}

	engine := gin.Default()
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpapi.InitializeRoutes(engine, httpapi.Dependencies{
		Cache:      application.AudioCache,
		Sessions:   application.Sessions,
		Supervisor: application.Supervisor,
		Signer:     application.Signer,
		Logger:     logger,
	}, application.Supervisor)

	logger.Info("application initialized successfully")

	startServer(engine, application, cfg.Server.Addr(), logger)

	if err := shutdownTelemetry(context.Background()); err != nil {
		logger.Errorf("telemetry shutdown error: %v", err)
	}
}

func startServer(engine *gin.Engine, application *app.App, addr string, logger *logging.Logger) {
	srv := &http.Server{
		Addr:    addr,
		Handler: engine.Handler(),
	}

	go func() {
		logger.Infof("server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		logger.Errorf("error during application shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	} else {
		logger.Info("server shutdown complete")
	}
}
