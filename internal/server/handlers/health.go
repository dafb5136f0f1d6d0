package handlers

import (
	"context"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type HealthHandler struct {
	logger    *zap.Logger
	clock     clock.Clock
	startTime time.Time
	checks    map[string]ReadinessCheck
	cache     ForecastCache
}

// NewHealthHandler builds the handler. cache may be nil.
func NewHealthHandler(logger *zap.Logger, checks map[string]ReadinessCheck, cache ForecastCache) *HealthHandler {
	c := clock.NewClock()
	return &HealthHandler{
		logger:    logger,
		clock:     c,
		startTime: c.Now(),
		checks:    checks,
		cache:     cache,
	}
}

func (h *HealthHandler) uptime() string {
	return h.clock.Since(h.startTime).Round(time.Second).String()
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: h.uptime(),
	})
}

func (h *HealthHandler) Readiness(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	status := "ok"

	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = "unavailable"
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status: status,
		Uptime: h.uptime(),
		Checks: results,
	})
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    h.uptime(),
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	}
	if h.cache != nil {
		resp.Cache = h.cache.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
