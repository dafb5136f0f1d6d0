package utils

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/pkg/logger"
)

// Gin context keys shared by the middlewares and handlers.
const (
	SpanContextKey = "span_context"
	RequestIDKey   = "request_id"
)

// GetContextFromGinContext returns the traced request context stored by the
// telemetry middleware, or the plain request context outside of it.
func GetContextFromGinContext(c *gin.Context) context.Context {
	if ctx, ok := c.Value(SpanContextKey).(context.Context); ok {
		return ctx
	}
	return c.Request.Context()
}

// GetRequestIDFromGinContext prefers the id set on the gin context and falls
// back to the one carried by the request context.
func GetRequestIDFromGinContext(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return logger.RequestID(c.Request.Context())
}
