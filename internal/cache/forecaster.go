package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const cacheType = "forecast"

// Engine produces a live forecast.
type Engine interface {
	Aggregate(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

// MetricsRecorder interface for recording metrics
type MetricsRecorder interface {
	RecordCacheHit(ctx context.Context, cacheType string)
	RecordCacheMiss(ctx context.Context, cacheType string)
}

type entry struct {
	forecast *weather.Forecast
	storedAt time.Time
}

// Forecaster serves forecasts from a TTL cache keyed by coordinates and falls
// back to the engine on a miss. A zero TTL disables caching.
type Forecaster struct {
	engine  Engine
	ttl     time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	tele    *telemetry.Telemetry
	metrics MetricsRecorder

	mutex   sync.RWMutex
	entries map[string]*entry
}

func NewForecaster(engine Engine, ttl time.Duration, logger *zap.Logger, tele *telemetry.Telemetry) *Forecaster {
	return &Forecaster{
		engine:  engine,
		ttl:     ttl,
		clock:   clock.NewClock(),
		logger:  logger,
		tele:    tele,
		entries: make(map[string]*entry),
	}
}

func (f *Forecaster) SetClock(c clock.Clock) {
	f.clock = c
}

// SetMetricsRecorder sets the metrics recorder for the cache
func (f *Forecaster) SetMetricsRecorder(metrics MetricsRecorder) {
	f.metrics = metrics
}

func Key(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

func (f *Forecaster) Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error) {
	tracer := f.tele.GetTracer()
	ctx, span := tracer.Start(ctx, "cache.Forecast")
	defer span.End()

	reqLogger := logger.ForContext(ctx, f.logger)
	key := Key(lat, lon)

	if f.ttl > 0 {
		if cached := f.get(key); cached != nil {
			reqLogger.Debug("Cache hit", zap.String("cache_key", key))
			span.SetAttributes(attribute.Bool("cache_hit", true))
			if f.metrics != nil {
				f.metrics.RecordCacheHit(ctx, cacheType)
			}
			return cached, nil
		}

		span.SetAttributes(attribute.Bool("cache_hit", false))
		if f.metrics != nil {
			f.metrics.RecordCacheMiss(ctx, cacheType)
		}
		reqLogger.Debug("Cache miss, fetching fresh data", zap.String("cache_key", key))
	}

	forecast, err := f.engine.Aggregate(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	f.set(key, forecast)
	return forecast, nil
}

// Save stores a forecast produced elsewhere, so scheduled refreshes warm the
// cache.
func (f *Forecaster) Save(_ context.Context, forecast *weather.Forecast) error {
	if forecast == nil {
		return nil
	}
	f.set(Key(forecast.Location.Lat, forecast.Location.Lon), forecast)
	return nil
}

func (f *Forecaster) get(key string) *weather.Forecast {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	e, ok := f.entries[key]
	if !ok {
		return nil
	}
	if f.clock.Since(e.storedAt) > f.ttl {
		delete(f.entries, key)
		return nil
	}
	return e.forecast
}

func (f *Forecaster) set(key string, forecast *weather.Forecast) {
	if f.ttl <= 0 {
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.entries[key] = &entry{
		forecast: forecast,
		storedAt: f.clock.Now(),
	}
}

func (f *Forecaster) Clear() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.entries = make(map[string]*entry)
}

// Stats reports the entry count including expired entries not yet evicted.
func (f *Forecaster) Stats() map[string]interface{} {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return map[string]interface{}{
		"cache_size": len(f.entries),
		"cache_ttl":  f.ttl.String(),
		"enabled":    f.ttl > 0,
	}
}
