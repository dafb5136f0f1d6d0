package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vzahanych/smart-meteo/internal/aggregator"
	"github.com/vzahanych/smart-meteo/internal/cache"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/provider"
	"github.com/vzahanych/smart-meteo/internal/registry"
	"github.com/vzahanych/smart-meteo/internal/server/handlers"
	"github.com/vzahanych/smart-meteo/internal/store"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.uber.org/zap"
)

// engine is the aggregation core shared by the server and the CLI commands.
type engine struct {
	registry   *registry.Registry
	connectors *provider.Set
	aggregator *aggregator.Aggregator
	cache      *cache.Forecaster
	store      store.Store
	logger     *zap.Logger
}

func sourcesFromConfig(sources []config.SourceConfig) []registry.Source {
	out := make([]registry.Source, 0, len(sources))
	for _, src := range sources {
		name := src.Name
		if name == "" {
			name = src.ID
		}
		out = append(out, registry.Source{
			ID:          src.ID,
			Name:        name,
			Description: src.Description,
			Weight:      src.Weight,
			Active:      src.Active,
		})
	}
	return out
}

// newEngine builds the registry, connectors and aggregator, plus the cache and
// history store when withStorage is set. Both are registered as observers so
// every merged forecast warms the cache and lands in history.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, tele *telemetry.Telemetry, withStorage bool) (*engine, error) {
	reg, err := registry.New(sourcesFromConfig(cfg.Weather.Sources))
	if err != nil {
		return nil, fmt.Errorf("failed to build source registry: %w", err)
	}

	connectors := provider.NewSetFromConfig(cfg.Weather.Sources, http.DefaultClient, logger, tele)
	agg := aggregator.NewAggregator(&cfg.Weather, reg, connectors, logger, tele)

	e := &engine{
		registry:   reg,
		connectors: connectors,
		aggregator: agg,
		logger:     logger,
	}

	if !withStorage {
		return e, nil
	}

	e.cache = cache.NewForecaster(agg, time.Duration(cfg.Weather.CacheTTL)*time.Second, logger, tele)
	agg.AddObserver(e.cache)

	e.store, err = store.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if e.store != nil {
		agg.AddObserver(e.store)
	}

	return e, nil
}

// readiness reports the checks served on /health/ready.
func (e *engine) readiness() map[string]handlers.ReadinessCheck {
	checks := map[string]handlers.ReadinessCheck{
		"sources": func(context.Context) error {
			for _, id := range e.registry.ActiveIDs() {
				if _, ok := e.connectors.Get(id); ok {
					return nil
				}
			}
			return errors.New("no active source has a connector")
		},
	}

	if e.store != nil {
		checks["store"] = e.store.Ping
	}

	return checks
}

// history returns the store as a handlers.HistoryStore, or nil so that the
// route stays unregistered.
func (e *engine) history() handlers.HistoryStore {
	if e.store == nil {
		return nil
	}
	return e.store
}

func (e *engine) close(ctx context.Context) {
	e.aggregator.WaitObservers()

	if e.store != nil {
		if err := e.store.Close(ctx); err != nil {
			e.logger.Error("Failed to close history store", zap.Error(err))
		}
	}
}
