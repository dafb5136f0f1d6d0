package provider

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	accuWeatherBaseURL = "https://dataservice.accuweather.com"
	// Decimals kept when caching location keys (~110 m).
	accuWeatherKeyPrecision = 3
)

// AccuWeather resolves coordinates to an AccuWeather location key before
// asking for current conditions. Resolved keys live for the process lifetime.
type AccuWeather struct {
	baseURL string
	apiKey  string
	core    *httpCore

	mu           sync.RWMutex
	locationKeys map[string]string
}

type accuMetric struct {
	Metric struct {
		Value *float64 `json:"Value"`
	} `json:"Metric"`
}

type accuCurrent struct {
	LocalObservationDateTime string     `json:"LocalObservationDateTime"`
	WeatherText              string     `json:"WeatherText"`
	Temperature              accuMetric `json:"Temperature"`
	RealFeelTemperature      accuMetric `json:"RealFeelTemperature"`
	RelativeHumidity         *float64   `json:"RelativeHumidity"`
	Pressure                 accuMetric `json:"Pressure"`
	Precip1hr                accuMetric `json:"Precip1hr"`
	Wind                     struct {
		Direction struct {
			Degrees *float64 `json:"Degrees"`
		} `json:"Direction"`
		Speed accuMetric `json:"Speed"`
	} `json:"Wind"`
	WindGust struct {
		Speed accuMetric `json:"Speed"`
	} `json:"WindGust"`
}

func NewAccuWeather(cfg config.SourceConfig, core *httpCore) *AccuWeather {
	return &AccuWeather{
		baseURL:      baseOr(cfg, accuWeatherBaseURL),
		apiKey:       cfg.APIKey,
		core:         core,
		locationKeys: make(map[string]string),
	}
}

func (s *AccuWeather) Name() string {
	return "accuweather"
}

func (s *AccuWeather) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: AccuWeather API key not configured", ErrMissingCredentials)
	}

	locationKey, err := s.locationKey(ctx, lat, lon)
	if err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("details", "true")

	u, err := s.core.buildURL(s.baseURL, "/currentconditions/v1/"+url.PathEscape(locationKey), q)
	if err != nil {
		return nil, err
	}

	var payload []accuCurrent
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if len(payload) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: empty current conditions", ErrNoData)
	}

	cur := payload[0]
	reading := &weather.Reading{
		Source:                 s.Name(),
		Coordinates:            weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:             cur.LocalObservationDateTime,
		Temperature:            cur.Temperature.Metric.Value,
		FeelsLike:              cur.RealFeelTemperature.Metric.Value,
		Humidity:               cur.RelativeHumidity,
		WindSpeed:              kmhToMs(cur.Wind.Speed.Metric.Value),
		WindDirection:          cur.Wind.Direction.Degrees,
		WindGust:               kmhToMs(cur.WindGust.Speed.Metric.Value),
		Pressure:               cur.Pressure.Metric.Value,
		PrecipitationIntensity: cur.Precip1hr.Metric.Value,
		ConditionText:          weather.String(cur.WeatherText),
	}

	reading.Finalize()
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.String("location_key", locationKey),
	)

	return reading, nil
}

func (s *AccuWeather) locationKey(ctx context.Context, lat, lon float64) (string, error) {
	cacheKey := weather.Coordinates{Lat: lat, Lon: lon}.Key(accuWeatherKeyPrecision)

	s.mu.RLock()
	key, ok := s.locationKeys[cacheKey]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("q", coordQuery(lat, lon))

	u, err := s.core.buildURL(s.baseURL, "/locations/v1/cities/geoposition/search", q)
	if err != nil {
		return "", err
	}

	var payload struct {
		Key string `json:"Key"`
	}
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		return "", fmt.Errorf("resolve location key: %w", err)
	}
	if payload.Key == "" {
		return "", fmt.Errorf("%w: no location key for %s", ErrNoData, cacheKey)
	}

	s.mu.Lock()
	s.locationKeys[cacheKey] = payload.Key
	s.mu.Unlock()

	s.core.logger.Debug("Resolved AccuWeather location key",
		zap.String("coordinates", cacheKey),
		zap.String("location_key", payload.Key))

	return payload.Key, nil
}
