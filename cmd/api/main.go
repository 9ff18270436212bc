package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/internal/app"
	"github.com/auswanderer-plattform/backend/internal/catalog"
	"github.com/auswanderer-plattform/backend/internal/config"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
	"github.com/auswanderer-plattform/backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Msg("Starting Auswanderer AI API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Init()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	go a.DB.ReportStats(ctx, 15*time.Second)
	go a.Invalidator.Listen(ctx, a.Factory.ClearCache)

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort)
	}

	deps := server.Deps{
		Auth:     a.Auth,
		Analyzer: a.Analyzer,
		Catalog:  a.Agent,
		Settings: a.Settings,
		Models:   a.Factory,
		Limiter:  a.Limiter,
		DB:       a.DB,
	}
	if a.Redis != nil {
		deps.Redis = a.Redis
	}

	if cfg.Catalog.Enabled {
		scheduler := catalog.NewScheduler(a.Agent, cfg.Catalog.Interval)
		if err := scheduler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start catalog scheduler")
		}
		defer scheduler.Stop()
		deps.Scheduler = scheduler
	}

	srv := server.NewAPIServer(cfg, deps)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// analyses wait on the AI provider
		WriteTimeout: cfg.AI.MaxTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = metricsServer.Close()
	}()

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
