package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const tomorrowBaseURL = "https://api.tomorrow.io/v4"

type Tomorrow struct {
	baseURL string
	apiKey  string
	core    *httpCore
}

type tomorrowResponse struct {
	Data *struct {
		Time   string `json:"time"`
		Values struct {
			Temperature              *float64 `json:"temperature"`
			TemperatureApparent      *float64 `json:"temperatureApparent"`
			Humidity                 *float64 `json:"humidity"`
			WindSpeed                *float64 `json:"windSpeed"`
			WindDirection            *float64 `json:"windDirection"`
			WindGust                 *float64 `json:"windGust"`
			PressureSurfaceLevel     *float64 `json:"pressureSurfaceLevel"`
			WeatherCode              *int     `json:"weatherCode"`
			PrecipitationProbability *float64 `json:"precipitationProbability"`
			PrecipitationIntensity   *float64 `json:"precipitationIntensity"`
		} `json:"values"`
	} `json:"data"`
}

func NewTomorrow(cfg config.SourceConfig, core *httpCore) *Tomorrow {
	return &Tomorrow{
		baseURL: baseOr(cfg, tomorrowBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
	}
}

func (s *Tomorrow) Name() string {
	return "tomorrow.io"
}

func (s *Tomorrow) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: Tomorrow.io API key not configured", ErrMissingCredentials)
	}

	q := url.Values{}
	q.Set("location", coordQuery(lat, lon))
	q.Set("apikey", s.apiKey)
	q.Set("units", "metric")

	u, err := s.core.buildURL(s.baseURL, "/weather/realtime", q)
	if err != nil {
		return nil, err
	}

	var payload tomorrowResponse
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if payload.Data == nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: missing data block", ErrMalformedPayload)
	}

	v := payload.Data.Values
	reading := &weather.Reading{
		Source:                   s.Name(),
		Coordinates:              weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:               payload.Data.Time,
		Temperature:              v.Temperature,
		FeelsLike:                v.TemperatureApparent,
		Humidity:                 v.Humidity,
		WindSpeed:                v.WindSpeed,
		WindDirection:            v.WindDirection,
		WindGust:                 v.WindGust,
		Pressure:                 v.PressureSurfaceLevel,
		PrecipitationProbability: v.PrecipitationProbability,
		PrecipitationIntensity:   v.PrecipitationIntensity,
	}
	if v.WeatherCode != nil {
		reading.ConditionText = weather.String(weather.TomorrowText(*v.WeatherCode))
	}

	reading.Finalize()
	span.SetAttributes(attribute.Bool("success", true))

	return reading, nil
}
