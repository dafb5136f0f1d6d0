package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.uber.org/zap"
)

// Provider is one weather data vendor. Fetch returns a normalized reading or an
// error meaning the source abstains from the current cycle.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error)
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnexpectedStatus   = errors.New("unexpected status code")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrMalformedPayload   = errors.New("malformed upstream payload")
	ErrNoData             = errors.New("upstream returned no data")
	ErrUnknownType        = errors.New("unknown provider type")
)

// Set maps registry ids to their connectors.
type Set struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewSet() *Set {
	return &Set{providers: make(map[string]Provider)}
}

func (s *Set) Register(id string, p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[id] = p
}

func (s *Set) Get(id string) (Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	return p, ok
}

func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds the connector selected by cfg.Type, falling back to cfg.ID.
func New(cfg config.SourceConfig, client *http.Client, logger *zap.Logger, tele *telemetry.Telemetry) (Provider, error) {
	kind := cfg.Type
	if kind == "" {
		kind = cfg.ID
	}

	core := newHTTPCore(cfg, client, logger, tele)

	switch kind {
	case "open-meteo":
		return NewOpenMeteo(cfg, core), nil
	case "openweathermap":
		return NewOpenWeatherMap(cfg, core), nil
	case "weatherapi":
		return NewWeatherAPI(cfg, core), nil
	case "tomorrow.io", "tomorrow":
		return NewTomorrow(cfg, core), nil
	case "meteomatics":
		return NewMeteomatics(cfg, core), nil
	case "accuweather":
		return NewAccuWeather(cfg, core), nil
	case "weatherstack":
		return NewWeatherstack(cfg, core), nil
	case "worldweatheronline":
		return NewWorldWeatherOnline(cfg, core), nil
	case "meteostat":
		return NewMeteostat(cfg, core), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// NewSetFromConfig builds a connector for every configured source, active or
// not, so sources can be toggled at runtime. Sources of unknown type are
// logged and left out of the set.
func NewSetFromConfig(sources []config.SourceConfig, client *http.Client, logger *zap.Logger, tele *telemetry.Telemetry) *Set {
	set := NewSet()

	for _, src := range sources {
		p, err := New(src, client, logger, tele)
		if err != nil {
			logger.Warn("Skipping weather source", zap.String("source", src.ID), zap.Error(err))
			continue
		}
		set.Register(src.ID, p)
		logger.Info("Registered weather source",
			zap.String("source", src.ID),
			zap.String("type", p.Name()),
			zap.Bool("active", src.Active))
	}

	return set
}
