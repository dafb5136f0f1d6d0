package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/provider"
	"github.com/vzahanych/smart-meteo/internal/registry"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrAllSourcesFailed = errors.New("all weather sources failed to return data")
	ErrNoConnector      = errors.New("no connector registered for source")
	ErrSourcePanic      = errors.New("source connector panicked")
	ErrEmptyReading     = errors.New("source returned no reading")
)

const defaultObserverTimeout = 5 * time.Second

// SourceRegistry is the part of the registry the engine depends on.
type SourceRegistry interface {
	Active() []registry.Source
	RecordOutcome(id string, latency time.Duration, err error)
}

// Connectors resolves registry ids to connectors.
type Connectors interface {
	Get(id string) (provider.Provider, bool)
}

// Observer receives every assembled forecast after Aggregate returns it.
// Observers must treat the forecast as read-only.
type Observer interface {
	Save(ctx context.Context, forecast *weather.Forecast) error
}

// MetricsRecorder interface for recording metrics
type MetricsRecorder interface {
	RecordWeatherServiceCall(ctx context.Context, service string, success bool)
}

type Aggregator struct {
	registry        SourceRegistry
	connectors      Connectors
	sourceTimeout   time.Duration
	observerTimeout time.Duration

	obsMu      sync.RWMutex
	observers  []Observer
	observerWg sync.WaitGroup

	clock   clock.Clock
	logger  *zap.Logger
	tele    *telemetry.Telemetry
	metrics MetricsRecorder

	workers    int
	queueSize  int
	poolMu     sync.Mutex
	running    bool
	taskQueue  chan *Task
	shutdownCh chan struct{}
	workerWg   sync.WaitGroup
}

func NewAggregator(cfg *config.WeatherConfig, reg SourceRegistry, connectors Connectors, logger *zap.Logger, tele *telemetry.Telemetry) *Aggregator {
	observerTimeout := time.Duration(cfg.ObserverTimeout) * time.Second
	if observerTimeout <= 0 {
		observerTimeout = defaultObserverTimeout
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workers * 8
	}

	return &Aggregator{
		registry:        reg,
		connectors:      connectors,
		sourceTimeout:   time.Duration(cfg.SourceTimeout) * time.Second,
		observerTimeout: observerTimeout,
		clock:           clock.NewClock(),
		logger:          logger,
		tele:            tele,
		workers:         workers,
		queueSize:       queueSize,
	}
}

// SetMetricsRecorder sets the metrics recorder for the aggregator
func (a *Aggregator) SetMetricsRecorder(metrics MetricsRecorder) {
	a.metrics = metrics
}

func (a *Aggregator) SetClock(c clock.Clock) {
	a.clock = c
}

func (a *Aggregator) AddObserver(o Observer) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observers = append(a.observers, o)
}

// WaitObservers blocks until every observer dispatched so far has returned.
// Dispatches that start while it waits are held until it returns.
func (a *Aggregator) WaitObservers() {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observerWg.Wait()
}

type sourceOutcome struct {
	source  registry.Source
	reading *weather.Reading
	err     error
}

// Aggregate fans out to every active source, waits for all of them and merges
// the successful readings. It fails only when no source succeeded.
func (a *Aggregator) Aggregate(ctx context.Context, lat, lon float64) (*weather.Forecast, error) {
	tracer := a.tele.GetTracer()
	ctx, span := tracer.Start(ctx, "aggregator.Aggregate")
	defer span.End()

	reqLogger := logger.ForContext(ctx, a.logger)

	sources := a.registry.Active()

	span.SetAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
		attribute.Int("sources_count", len(sources)),
	)

	reqLogger.Debug("Aggregation started",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("active_sources", len(sources)))

	outcomes := make([]sourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src registry.Source) {
			defer wg.Done()
			outcomes[i] = a.fetchSource(ctx, src, lat, lon, reqLogger)
		}(i, src)
	}
	wg.Wait()

	contributions := make([]contribution, 0, len(outcomes))
	failures := make([]string, 0)
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, o.source.ID+": "+o.err.Error())
			continue
		}
		contributions = append(contributions, contribution{
			id:      o.source.ID,
			weight:  o.source.Weight,
			reading: o.reading,
		})
	}

	if len(contributions) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		if len(failures) == 0 {
			return nil, fmt.Errorf("%w: no active sources", ErrAllSourcesFailed)
		}
		return nil, fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(failures, "; "))
	}

	forecast := buildForecast(weather.Coordinates{Lat: lat, Lon: lon}, contributions, a.clock.Now())

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("sources_used", len(forecast.SourcesUsed)),
		attribute.String("condition", string(forecast.Current.Condition)),
	)

	reqLogger.Info("Aggregation completed",
		zap.Strings("sources_used", forecast.SourcesUsed),
		zap.Int("sources_failed", len(failures)),
		zap.String("condition", string(forecast.Current.Condition)))

	a.notifyObservers(ctx, forecast)

	return forecast, nil
}

func (a *Aggregator) fetchSource(ctx context.Context, src registry.Source, lat, lon float64, reqLogger *zap.Logger) sourceOutcome {
	tracer := a.tele.GetTracer()
	ctx, span := tracer.Start(ctx, "aggregator.fetchSource")
	defer span.End()

	span.SetAttributes(attribute.String("source", src.ID))

	out := sourceOutcome{source: src}

	p, ok := a.connectors.Get(src.ID)
	if !ok {
		out.err = fmt.Errorf("%w: %s", ErrNoConnector, src.ID)
		a.registry.RecordOutcome(src.ID, 0, out.err)
		span.SetAttributes(attribute.Bool("success", false))
		reqLogger.Warn("Active source has no connector", zap.String("source", src.ID))
		return out
	}

	callCtx := ctx
	if a.sourceTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.sourceTimeout)
		defer cancel()
	}

	start := a.clock.Now()
	reading, err := callConnector(callCtx, p, lat, lon)
	latency := a.clock.Since(start)

	a.registry.RecordOutcome(src.ID, latency, err)
	if a.metrics != nil {
		a.metrics.RecordWeatherServiceCall(ctx, src.ID, err == nil)
	}

	if err != nil {
		out.err = err
		span.SetAttributes(attribute.Bool("success", false))
		a.tele.RecordError(ctx, err, map[string]interface{}{"source": src.ID})
		reqLogger.Warn("Weather source failed",
			zap.String("source", src.ID),
			zap.Duration("latency", latency),
			zap.Error(err))
		return out
	}

	reading.Source = src.ID
	reading.Coordinates = weather.Coordinates{Lat: lat, Lon: lon}
	out.reading = reading

	span.SetAttributes(attribute.Bool("success", true))
	reqLogger.Debug("Weather source succeeded",
		zap.String("source", src.ID),
		zap.Duration("latency", latency))

	return out
}

func callConnector(ctx context.Context, p provider.Provider, lat, lon float64) (reading *weather.Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			reading = nil
			err = fmt.Errorf("%w: %v", ErrSourcePanic, r)
		}
	}()

	reading, err = p.Fetch(ctx, lat, lon)
	if err == nil && reading == nil {
		err = ErrEmptyReading
	}
	return reading, err
}

// notifyObservers hands the forecast to every observer on its own goroutine
// with a context detached from the caller's cancellation.
func (a *Aggregator) notifyObservers(ctx context.Context, forecast *weather.Forecast) {
	// observerWg.Add runs under obsMu so it never races WaitObservers.
	a.obsMu.RLock()
	observers := make([]Observer, len(a.observers))
	copy(observers, a.observers)
	a.observerWg.Add(len(observers))
	a.obsMu.RUnlock()

	if len(observers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	reqLogger := logger.ForContext(ctx, a.logger)

	for _, o := range observers {
		go func(o Observer) {
			defer a.observerWg.Done()

			obsCtx, cancel := context.WithTimeout(detached, a.observerTimeout)
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					reqLogger.Error("Forecast observer panicked", zap.Any("recovered", r))
				}
			}()

			if err := o.Save(obsCtx, forecast); err != nil {
				reqLogger.Warn("Forecast observer failed",
					zap.String("observer", fmt.Sprintf("%T", o)),
					zap.Error(err))
			}
		}(o)
	}
}
