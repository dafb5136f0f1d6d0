package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/server/handlers"
	"github.com/vzahanych/smart-meteo/internal/server/middlewares"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.uber.org/zap"
)

// Options carries everything the HTTP layer serves. History, Geocoder and
// Cache may be nil, which disables the history route, city lookups and cache
// invalidation.
type Options struct {
	Config     config.ServerConfig
	JWTSecret  string
	Forecaster handlers.Forecaster
	Cache      handlers.ForecastCache
	Geocoder   handlers.Geocoder
	Registry   handlers.SourceRegistry
	History    handlers.HistoryStore
	Readiness  map[string]handlers.ReadinessCheck
	Logger     *zap.Logger
	Telemetry  *telemetry.Telemetry
}

type Server struct {
	cfg         config.ServerConfig
	engine      *gin.Engine
	handler     http.Handler
	server      *http.Server
	httpMetrics *middlewares.MetricsMiddleware
	metrics     *handlers.MetricsHandler
	logger      *zap.Logger
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	httpMetrics := middlewares.NewMetricsMiddleware(opts.Logger)

	engine.Use(middlewares.RequestIDMiddleware())
	engine.Use(middlewares.LoggingMiddleware(opts.Logger, true))
	engine.Use(middlewares.RecoveryMiddleware(opts.Logger, true))
	engine.Use(middlewares.TelemetryMiddleware(opts.Logger, opts.Telemetry))
	engine.Use(httpMetrics.Handler())

	s := &Server{
		cfg:         opts.Config,
		engine:      engine,
		httpMetrics: httpMetrics,
		metrics:     handlers.NewMetricsHandler(opts.Logger, httpMetrics),
		logger:      opts.Logger,
	}

	s.setupRoutes(opts)
	s.handler = gorillahandlers.CORS(corsOptions(opts.Config.CORSOrigins)...)(engine)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeout) * time.Second,
	}

	return s
}

func corsOptions(origins []string) []gorillahandlers.CORSOption {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return []gorillahandlers.CORSOption{
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPatch, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type", middlewares.RequestIDHeader}),
		gorillahandlers.ExposedHeaders([]string{middlewares.RequestIDHeader}),
	}
}

func (s *Server) setupRoutes(opts Options) {
	forecast := handlers.NewForecastHandler(opts.Forecaster, opts.Geocoder, opts.Logger)
	sources := handlers.NewSourcesHandler(opts.Registry, opts.Cache, opts.Logger)
	health := handlers.NewHealthHandler(opts.Logger, opts.Readiness, opts.Cache)

	api := s.engine.Group("/api")
	{
		api.GET("/forecast", forecast.GetForecast)
		api.GET("/health", health.Health)
		api.GET("/sources", sources.ListSources)
		api.PATCH("/sources/:id", middlewares.JWTAuthMiddleware(opts.JWTSecret, opts.Logger), sources.UpdateSource)

		if opts.History != nil {
			api.GET("/history", handlers.NewHistoryHandler(opts.History, opts.Logger).GetHistory)
		}
	}

	// Health endpoints (Kubernetes friendly)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/health/live", health.Liveness)
	s.engine.GET("/health/ready", health.Readiness)

	// Monitoring endpoints
	s.engine.GET("/metrics", s.metrics.ServeMetrics)
}

// Metrics is the recorder the cache and aggregator report into.
func (s *Server) Metrics() *handlers.MetricsHandler {
	return s.metrics
}

// Handler is the full HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
