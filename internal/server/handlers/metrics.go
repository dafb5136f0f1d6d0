package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/internal/server/middlewares"
	"go.uber.org/zap"
)

// HTTPMetricsSource exposes the HTTP counters collected by the middleware.
type HTTPMetricsSource interface {
	Snapshot() middlewares.HTTPSnapshot
}

// AppMetrics holds application-level metrics (cache, sources)
type AppMetrics struct {
	mutex               sync.RWMutex
	cacheHits           map[string]int64
	cacheMisses         map[string]int64
	weatherSourceCalls  map[string]int64
	weatherSourceErrors map[string]int64
}

// MetricsHandler records application metrics and serves them together with
// the HTTP metrics in Prometheus text format.
type MetricsHandler struct {
	logger     *zap.Logger
	http       HTTPMetricsSource
	appMetrics *AppMetrics
}

func NewMetricsHandler(logger *zap.Logger, httpMetrics HTTPMetricsSource) *MetricsHandler {
	return &MetricsHandler{
		logger: logger,
		http:   httpMetrics,
		appMetrics: &AppMetrics{
			cacheHits:           make(map[string]int64),
			cacheMisses:         make(map[string]int64),
			weatherSourceCalls:  make(map[string]int64),
			weatherSourceErrors: make(map[string]int64),
		},
	}
}

// RecordCacheHit records a cache hit metric
func (h *MetricsHandler) RecordCacheHit(_ context.Context, cacheType string) {
	h.appMetrics.mutex.Lock()
	h.appMetrics.cacheHits[cacheType]++
	h.appMetrics.mutex.Unlock()
}

// RecordCacheMiss records a cache miss metric
func (h *MetricsHandler) RecordCacheMiss(_ context.Context, cacheType string) {
	h.appMetrics.mutex.Lock()
	h.appMetrics.cacheMisses[cacheType]++
	h.appMetrics.mutex.Unlock()
}

// RecordWeatherServiceCall records one call to a weather source
func (h *MetricsHandler) RecordWeatherServiceCall(_ context.Context, service string, success bool) {
	h.appMetrics.mutex.Lock()
	h.appMetrics.weatherSourceCalls[service]++
	if !success {
		h.appMetrics.weatherSourceErrors[service]++
	}
	h.appMetrics.mutex.Unlock()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func writeLabeled(b *strings.Builder, name, label string, values map[string]int64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

// ServeMetrics writes every metric in a stable order.
func (h *MetricsHandler) ServeMetrics(c *gin.Context) {
	var b strings.Builder

	if h.http != nil {
		snap := h.http.Snapshot()

		writeHeader(&b, "http_requests_total", "Total number of HTTP requests", "counter")
		for _, key := range snap.Keys {
			fmt.Fprintf(&b, "http_requests_total{route_status=%q} %d\n", key, snap.RequestsTotal[key])
		}

		b.WriteString("\n")
		writeHeader(&b, "http_request_duration_seconds_avg", "Average duration of HTTP requests", "gauge")
		fmt.Fprintf(&b, "http_request_duration_seconds_avg %.6f\n", snap.AvgDuration)

		b.WriteString("\n")
		writeHeader(&b, "http_active_requests", "Number of active HTTP requests", "gauge")
		fmt.Fprintf(&b, "http_active_requests %d\n", snap.ActiveRequests)
		b.WriteString("\n")
	}

	h.appMetrics.mutex.RLock()
	writeHeader(&b, "forecast_cache_hits_total", "Total cache hits", "counter")
	writeLabeled(&b, "forecast_cache_hits_total", "cache", h.appMetrics.cacheHits)

	b.WriteString("\n")
	writeHeader(&b, "forecast_cache_misses_total", "Total cache misses", "counter")
	writeLabeled(&b, "forecast_cache_misses_total", "cache", h.appMetrics.cacheMisses)

	b.WriteString("\n")
	writeHeader(&b, "weather_source_calls_total", "Total weather source calls", "counter")
	writeLabeled(&b, "weather_source_calls_total", "source", h.appMetrics.weatherSourceCalls)

	b.WriteString("\n")
	writeHeader(&b, "weather_source_errors_total", "Total weather source errors", "counter")
	writeLabeled(&b, "weather_source_errors_total", "source", h.appMetrics.weatherSourceErrors)
	h.appMetrics.mutex.RUnlock()

	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}
