package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	weatherAPIBaseURL = "https://api.weatherapi.com/v1"
	weatherAPIDays    = 3
)

type WeatherAPI struct {
	baseURL string
	apiKey  string
	core    *httpCore
}

type weatherAPICondition struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

type weatherAPIResponse struct {
	Location struct {
		Localtime string `json:"localtime"`
	} `json:"location"`
	Current *struct {
		TempC      *float64            `json:"temp_c"`
		FeelsLikeC *float64            `json:"feelslike_c"`
		Humidity   *float64            `json:"humidity"`
		WindKph    *float64            `json:"wind_kph"`
		WindDegree *float64            `json:"wind_degree"`
		GustKph    *float64            `json:"gust_kph"`
		PressureMb *float64            `json:"pressure_mb"`
		PrecipMm   *float64            `json:"precip_mm"`
		Condition  weatherAPICondition `json:"condition"`
		AirQuality *struct {
			USEPAIndex *float64 `json:"us-epa-index"`
		} `json:"air_quality"`
	} `json:"current"`
	Forecast struct {
		Forecastday []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC          *float64            `json:"maxtemp_c"`
				MinTempC          *float64            `json:"mintemp_c"`
				DailyChanceOfRain *float64            `json:"daily_chance_of_rain"`
				Condition         weatherAPICondition `json:"condition"`
			} `json:"day"`
			Astro struct {
				Sunrise   string `json:"sunrise"`
				Sunset    string `json:"sunset"`
				MoonPhase string `json:"moon_phase"`
			} `json:"astro"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func NewWeatherAPI(cfg config.SourceConfig, core *httpCore) *WeatherAPI {
	return &WeatherAPI{
		baseURL: baseOr(cfg, weatherAPIBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
	}
}

func (s *WeatherAPI) Name() string {
	return "weatherapi"
}

func (s *WeatherAPI) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		s.core.logger.Warn("WeatherAPI service called without API key",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon))
		span.SetAttributes(
			attribute.Bool("success", false),
			attribute.String("error", "API key not configured"),
		)
		return nil, fmt.Errorf("%w: WeatherAPI key not configured", ErrMissingCredentials)
	}

	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("q", coordQuery(lat, lon))
	q.Set("days", fmt.Sprint(weatherAPIDays))
	q.Set("aqi", "yes")
	q.Set("alerts", "no")

	u, err := s.core.buildURL(s.baseURL, "/forecast.json", q)
	if err != nil {
		return nil, err
	}

	var payload weatherAPIResponse
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
		ObservedAt:             payload.Location.Localtime,
		Temperature:            cur.TempC,
		FeelsLike:              cur.FeelsLikeC,
		Humidity:               cur.Humidity,
		WindSpeed:              kmhToMs(cur.WindKph),
		WindDirection:          cur.WindDegree,
		WindGust:               kmhToMs(cur.GustKph),
		Pressure:               cur.PressureMb,
		PrecipitationIntensity: cur.PrecipMm,
		ConditionText:          weather.String(cur.Condition.Text),
	}
	if cur.AirQuality != nil {
		reading.AirQualityIndex = cur.AirQuality.USEPAIndex
	}

	for _, fd := range payload.Forecast.Forecastday {
		reading.Daily = append(reading.Daily, weather.DailySummary{
			Date:                     fd.Date,
			TempMax:                  fd.Day.MaxTempC,
			TempMin:                  fd.Day.MinTempC,
			PrecipitationProbability: fd.Day.DailyChanceOfRain,
			ConditionText:            weather.String(fd.Day.Condition.Text),
		})
	}

	if days := payload.Forecast.Forecastday; len(days) > 0 && days[0].Astro.Sunrise != "" {
		reading.Astronomy = astronomyFor(days[0].Date, days[0].Astro.Sunrise, days[0].Astro.Sunset, days[0].Astro.MoonPhase)
	}

	reading.Finalize()

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("daily_count", len(reading.Daily)),
	)

	return reading, nil
}

func kmhToMs(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return weather.Float(*v / 3.6)
}
