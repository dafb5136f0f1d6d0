package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/geocode"
	"github.com/vzahanych/smart-meteo/internal/scheduler"
	"github.com/vzahanych/smart-meteo/internal/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the weather aggregation server",
	Long:  `Start the HTTP server that merges weather data from the configured sources, with caching, forecast history and observability.`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	log.Info("Starting weather aggregation server",
		zap.String("config_path", configPath),
		zap.String("environment", cfg.Environment),
		zap.Bool("telemetry_enabled", cfg.Telemetry.Enabled),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("server_port", cfg.Server.Port))

	eng, err := newEngine(ctx, cfg, log.Logger, tele, true)
	if err != nil {
		log.Error("Failed to build aggregation engine", zap.Error(err))
		return err
	}

	srv := server.NewServer(server.Options{
		Config:     cfg.Server,
		JWTSecret:  cfg.Auth.JWTSecret,
		Forecaster: eng.cache,
		Cache:      eng.cache,
		Geocoder:   geocode.NewResolver(cfg.Geocoder.APIKey, log.Logger),
		Registry:   eng.registry,
		History:    eng.history(),
		Readiness:  eng.readiness(),
		Logger:     log.Logger,
		Telemetry:  tele,
	})

	eng.aggregator.SetMetricsRecorder(srv.Metrics())
	eng.cache.SetMetricsRecorder(srv.Metrics())

	if cfg.Auth.JWTSecret == "" {
		log.Warn("No JWT secret configured, source updates are unauthenticated")
	}

	if err := eng.aggregator.Start(ctx); err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler, eng.aggregator, log.Logger)
		if err := sched.Start(); err != nil {
			log.Error("Failed to start scheduler", zap.Error(err))
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
		if serveErr != nil {
			log.Error("Server error", zap.Error(serveErr))
		}
	case <-ctx.Done():
		log.Info("Shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	if err := eng.aggregator.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping worker pool", zap.Error(err))
	}
	eng.close(shutdownCtx)

	if err := tele.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server shutdown complete")
	return serveErr
}
