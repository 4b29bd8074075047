package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/simple-listing/pkg/simplelisting/api"
	"github.com/tendant/simple-listing/pkg/simplelisting/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println(config.EnvUsage())
		return
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = uuid.NewString()
		slog.Warn("JWT_SECRET not set, using a random secret; issued tokens will not survive a restart")
	}

	ctx := context.Background()
	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		slog.Error("Failed to build runtime", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("Failed to close runtime", "err", err)
		}
	}()

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	api.RoutesReady(server.R, rt.Ready)

	api.Mount(server.R, api.Config{
		Services:       rt.Services,
		Media:          rt.Media,
		Auth:           api.NewAuthenticator(cfg.JWTSecret, logger),
		Metrics:        api.NewPrometheusCollector(),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment,
			"database", cfg.DatabaseType, "storage", cfg.StorageBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	// Uploads may run for the full upload timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UploadTimeout+10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
	slog.Info("Server exiting")
}
