// Package store keeps an audit trail of assembled forecasts. Stores are
// attached to the aggregator as observers and never sit on the request path.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/umahmood/haversine"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("no stored forecast near location")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

const (
	defaultMatchRadiusKm = 1.0
	kmPerDegreeLat       = 111.32
)

// Snapshot is one stored forecast.
type Snapshot struct {
	ID         string              `json:"id" bson:"_id"`
	Location   weather.Coordinates `json:"location" bson:"location"`
	RecordedAt time.Time           `json:"recorded_at" bson:"recorded_at"`
	Forecast   *weather.Forecast   `json:"forecast" bson:"forecast"`
}

type Store interface {
	Save(ctx context.Context, forecast *weather.Forecast) error
	// Latest returns the newest snapshot within the match radius of lat/lon.
	Latest(ctx context.Context, lat, lon float64) (*Snapshot, error)
	// Range returns snapshots near lat/lon recorded in [from, to], oldest
	// first. A zero bound is open.
	Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Snapshot, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// New builds the store selected by cfg.Driver. It returns a nil Store for the
// "none" driver.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		logger.Info("Forecast history disabled")
		return nil, nil
	case "memory":
		return NewMemoryStore(cfg), nil
	case "mongo":
		return NewMongoStore(ctx, cfg, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func matchRadius(cfg config.StorageConfig) float64 {
	if cfg.MatchRadiusKm > 0 {
		return cfg.MatchRadiusKm
	}
	return defaultMatchRadiusKm
}

func distanceKm(a, b weather.Coordinates) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lon},
		haversine.Coord{Lat: b.Lat, Lon: b.Lon},
	)
	return km
}

// bounds is a lat/lon box enclosing a circle of the match radius. Database
// stores filter on it before the exact haversine check.
type bounds struct {
	minLat, maxLat, minLon, maxLon float64
}

func boxAround(center weather.Coordinates, radiusKm float64) bounds {
	dLat := radiusKm / kmPerDegreeLat
	cos := math.Cos(center.Lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(180, radiusKm/(kmPerDegreeLat*cos))
	}
	return bounds{
		minLat: center.Lat - dLat,
		maxLat: center.Lat + dLat,
		minLon: center.Lon - dLon,
		maxLon: center.Lon + dLon,
	}
}

func recordedAt(forecast *weather.Forecast, now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, forecast.GeneratedAt); err == nil {
		return t.UTC()
	}
	return now.UTC()
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
