package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const openWeatherMapBaseURL = "https://api.openweathermap.org/data/2.5"

type OpenWeatherMap struct {
	baseURL string
	apiKey  string
	core    *httpCore
	clock   clock.Clock
}

type openWeatherMapResponse struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain struct {
		OneHour *float64 `json:"1h"`
	} `json:"rain"`
}

func NewOpenWeatherMap(cfg config.SourceConfig, core *httpCore) *OpenWeatherMap {
	return &OpenWeatherMap{
		baseURL: baseOr(cfg, openWeatherMapBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
		clock:   clock.NewClock(),
	}
}

func (s *OpenWeatherMap) Name() string {
	return "openweathermap"
}

func (s *OpenWeatherMap) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: OpenWeatherMap API key not configured", ErrMissingCredentials)
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("appid", s.apiKey)
	q.Set("units", "metric")

	u, err := s.core.buildURL(s.baseURL, "/weather", q)
	if err != nil {
		return nil, err
	}

	var payload openWeatherMapResponse
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if payload.Main == nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: missing main block", ErrMalformedPayload)
	}

	observed := s.clock.Now().UTC()
	if payload.Dt > 0 {
		observed = time.Unix(payload.Dt, 0).UTC()
	}

	reading := &weather.Reading{
		Source:                 s.Name(),
		Coordinates:            weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:             observed.Format(time.RFC3339),
		Temperature:            payload.Main.Temp,
		FeelsLike:              payload.Main.FeelsLike,
		Humidity:               payload.Main.Humidity,
		Pressure:               payload.Main.Pressure,
		WindSpeed:              payload.Wind.Speed,
		WindDirection:          payload.Wind.Deg,
		WindGust:               payload.Wind.Gust,
		PrecipitationIntensity: payload.Rain.OneHour,
	}
	if len(payload.Weather) > 0 {
		reading.ConditionText = weather.String(payload.Weather[0].Main)
	}

	reading.Finalize()
	span.SetAttributes(attribute.Bool("success", true))

	return reading, nil
}
