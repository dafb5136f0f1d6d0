package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const weatherstackBaseURL = "http://api.weatherstack.com"

type Weatherstack struct {
	baseURL string
	apiKey  string
	core    *httpCore
}

// Weatherstack reports failures with a 200 status and an error object.
type weatherstackResponse struct {
	Error *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
	Location struct {
		LocaltimeEpoch int64 `json:"localtime_epoch"`
	} `json:"location"`
	Current *struct {
		Temperature         *float64 `json:"temperature"`
		FeelsLike           *float64 `json:"feelslike"`
		Humidity            *float64 `json:"humidity"`
		WindSpeed           *float64 `json:"wind_speed"`
		WindDegree          *float64 `json:"wind_degree"`
		Pressure            *float64 `json:"pressure"`
		Precip              *float64 `json:"precip"`
		WeatherDescriptions []string `json:"weather_descriptions"`
	} `json:"current"`
}

func NewWeatherstack(cfg config.SourceConfig, core *httpCore) *Weatherstack {
	return &Weatherstack{
		baseURL: baseOr(cfg, weatherstackBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
	}
}

func (s *Weatherstack) Name() string {
	return "weatherstack"
}

func (s *Weatherstack) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: Weatherstack access key not configured", ErrMissingCredentials)
	}

	q := url.Values{}
	q.Set("access_key", s.apiKey)
	q.Set("query", coordQuery(lat, lon))
	q.Set("units", "m")

	u, err := s.core.buildURL(s.baseURL, "/current", q)
	if err != nil {
		return nil, err
	}

	var payload weatherstackResponse
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if payload.Error != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, payload.Error.Code, payload.Error.Type)
	}
	if payload.Current == nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: missing current block", ErrMalformedPayload)
	}

	cur := payload.Current
	reading := &weather.Reading{
		Source:                 s.Name(),
		Coordinates:            weather.Coordinates{Lat: lat, Lon: lon},
		Temperature:            cur.Temperature,
		FeelsLike:              cur.FeelsLike,
		Humidity:               cur.Humidity,
		WindSpeed:              kmhToMs(cur.WindSpeed),
		WindDirection:          cur.WindDegree,
		Pressure:               cur.Pressure,
		PrecipitationIntensity: cur.Precip,
	}
	if payload.Location.LocaltimeEpoch > 0 {
		reading.ObservedAt = time.Unix(payload.Location.LocaltimeEpoch, 0).UTC().Format(time.RFC3339)
	}
	if len(cur.WeatherDescriptions) > 0 {
		reading.ConditionText = weather.String(cur.WeatherDescriptions[0])
	}

	reading.Finalize()
	span.SetAttributes(attribute.Bool("success", true))

	return reading, nil
}
