package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"factorcorr/internal"
	"factorcorr/internal/config"
	"factorcorr/internal/container"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLoggerFromConfig(appConfig.LogLevel, appConfig.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	if err := appContainer.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// A stored snapshot is optional; a cold model initializes on first use
	if err := appContainer.Service.Fetch(ctx, ""); err != nil {
		logger.WithError(err).Info("no published snapshot loaded, starting from fresh weights")
	}

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           appContainer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var admin *http.Server
	if appConfig.Admin.Enabled {
		admin = &http.Server{
			Addr:              ":" + appConfig.Admin.Port,
			Handler:           appContainer.AdminHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin server (metrics, health, pprof) listening on :%s", appConfig.Admin.Port)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("admin server failed")
			}
		}()
	}

	go func() {
		logger.Info("starting factorcorr API on port %s", appConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown")
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("admin server shutdown")
		}
	}
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("container shutdown")
	}
}
