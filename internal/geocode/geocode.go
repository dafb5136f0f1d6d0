package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("location not found")
	ErrNotConfigured = errors.New("geocoder is not configured")
)

// lookup is swapped out in tests. The geocoder package keeps its key in a
// package variable, so every call goes through lookupMu.
var (
	lookupMu sync.Mutex
	lookup   = func(apiKey string, addr geocoder.Address) (geocoder.Location, error) {
		geocoder.ApiKey = apiKey
		return geocoder.Geocoding(addr)
	}
)

// Resolver turns a city and country into coordinates. Results are memoized
// for the life of the process.
type Resolver struct {
	apiKey string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]weather.Coordinates
}

func NewResolver(apiKey string, logger *zap.Logger) *Resolver {
	return &Resolver{
		apiKey: apiKey,
		logger: logger,
		cache:  make(map[string]weather.Coordinates),
	}
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.apiKey != ""
}

func cacheKey(city, country string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(country))
}

func (r *Resolver) Resolve(ctx context.Context, city, country string) (weather.Coordinates, error) {
	if !r.Enabled() {
		return weather.Coordinates{}, ErrNotConfigured
	}
	if strings.TrimSpace(city) == "" {
		return weather.Coordinates{}, fmt.Errorf("%w: empty city", ErrNotFound)
	}

	key := cacheKey(city, country)

	r.mu.RLock()
	coords, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return coords, nil
	}

	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}

	lookupMu.Lock()
	loc, err := lookup(r.apiKey, geocoder.Address{City: city, Country: country})
	lookupMu.Unlock()
	if err != nil {
		r.logger.Warn("Geocoding failed",
			zap.String("city", city),
			zap.String("country", country),
			zap.Error(err))
		return weather.Coordinates{}, fmt.Errorf("%w: %s, %s: %v", ErrNotFound, city, country, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return weather.Coordinates{}, fmt.Errorf("%w: %s, %s", ErrNotFound, city, country)
	}

	coords = weather.Coordinates{Lat: loc.Latitude, Lon: loc.Longitude}

	r.mu.Lock()
	r.cache[key] = coords
	r.mu.Unlock()

	r.logger.Debug("Geocoded location",
		zap.String("city", city),
		zap.String("country", country),
		zap.Float64("lat", coords.Lat),
		zap.Float64("lon", coords.Lon))

	return coords, nil
}
