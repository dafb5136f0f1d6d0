package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	openMeteoBaseURL = "https://api.open-meteo.com/v1"
	openMeteoDays    = 7
	openMeteoHours   = 24
)

type OpenMeteo struct {
	baseURL string
	core    *httpCore
}

type openMeteoResponse struct {
	Current *struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		RelativeHumidity    *float64 `json:"relative_humidity_2m"`
		Precipitation       *float64 `json:"precipitation"`
		WeatherCode         *int     `json:"weather_code"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
		WindDirection       *float64 `json:"wind_direction_10m"`
		WindGusts           *float64 `json:"wind_gusts_10m"`
		SurfacePressure     *float64 `json:"surface_pressure"`
	} `json:"current"`
	Daily *struct {
		Time                        []string   `json:"time"`
		WeatherCode                 []*int     `json:"weather_code"`
		TemperatureMax              []*float64 `json:"temperature_2m_max"`
		TemperatureMin              []*float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		Sunrise                     []string   `json:"sunrise"`
		Sunset                      []string   `json:"sunset"`
	} `json:"daily"`
	Hourly *struct {
		Time                     []string   `json:"time"`
		Temperature              []*float64 `json:"temperature_2m"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WeatherCode              []*int     `json:"weather_code"`
	} `json:"hourly"`
}

func NewOpenMeteo(cfg config.SourceConfig, core *httpCore) *OpenMeteo {
	return &OpenMeteo{
		baseURL: baseOr(cfg, openMeteoBaseURL),
		core:    core,
	}
}

func (s *OpenMeteo) Name() string {
	return "open-meteo"
}

func (s *OpenMeteo) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.6f", lat))
	q.Set("longitude", fmt.Sprintf("%.6f", lon))
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m,wind_direction_10m,wind_gusts_10m,surface_pressure")
	q.Set("hourly", "temperature_2m,precipitation_probability,weather_code")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max,sunrise,sunset")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "auto")
	q.Set("forecast_days", fmt.Sprint(openMeteoDays))
	q.Set("forecast_hours", fmt.Sprint(openMeteoHours))

	u, err := s.core.buildURL(s.baseURL, "/forecast", q)
	if err != nil {
		return nil, err
	}

	var payload openMeteoResponse
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if payload.Current == nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: missing current block", ErrMalformedPayload)
	}

	cur := payload.Current
	reading := &weather.Reading{
		Source:                 s.Name(),
		Coordinates:            weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:             cur.Time,
		Temperature:            cur.Temperature,
		FeelsLike:              cur.ApparentTemperature,
		Humidity:               cur.RelativeHumidity,
		WindSpeed:              cur.WindSpeed,
		WindDirection:          cur.WindDirection,
		WindGust:               cur.WindGusts,
		Pressure:               cur.SurfacePressure,
		PrecipitationIntensity: cur.Precipitation,
	}
	if cur.WeatherCode != nil {
		reading.ConditionText = weather.String(weather.WMOText(*cur.WeatherCode))
	}

	if d := payload.Daily; d != nil {
		for i, date := range d.Time {
			if i >= openMeteoDays {
				break
			}
			day := weather.DailySummary{
				Date:                     date,
				TempMax:                  floatAt(d.TemperatureMax, i),
				TempMin:                  floatAt(d.TemperatureMin, i),
				PrecipitationProbability: floatAt(d.PrecipitationProbabilityMax, i),
			}
			if code := intAt(d.WeatherCode, i); code != nil {
				day.ConditionText = weather.String(weather.WMOText(*code))
			}
			reading.Daily = append(reading.Daily, day)
		}

		if len(d.Sunrise) > 0 && len(d.Sunset) > 0 {
			astro := &weather.Astronomy{Sunrise: d.Sunrise[0], Sunset: d.Sunset[0]}
			day := time.Now()
			if len(d.Time) > 0 {
				if parsed, err := time.Parse("2006-01-02", d.Time[0]); err == nil {
					day = parsed
				}
			}
			astro.MoonPhase = weather.MoonPhase(day)
			reading.Astronomy = astro
		}
	}

	if h := payload.Hourly; h != nil {
		for i, ts := range h.Time {
			if i >= openMeteoHours {
				break
			}
			hour := weather.HourlySummary{
				Time:                     ts,
				Temperature:              floatAt(h.Temperature, i),
				PrecipitationProbability: floatAt(h.PrecipitationProbability, i),
			}
			if code := intAt(h.WeatherCode, i); code != nil {
				hour.ConditionText = weather.String(weather.WMOText(*code))
			}
			reading.Hourly = append(reading.Hourly, hour)
		}
	}

	reading.Finalize()

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("daily_count", len(reading.Daily)),
		attribute.Int("hourly_count", len(reading.Hourly)),
	)
	s.core.logger.Debug("Open-Meteo reading fetched",
		zap.Int("daily_count", len(reading.Daily)),
		zap.Int("hourly_count", len(reading.Hourly)))

	return reading, nil
}

func floatAt(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func intAt(values []*int, i int) *int {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}
