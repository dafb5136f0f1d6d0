package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const meteostatBaseURL = "https://meteostat.p.rapidapi.com"

// Meteostat serves observed station data through RapidAPI; the latest hourly
// record of the current UTC day is used as the reading.
type Meteostat struct {
	baseURL string
	apiKey  string
	core    *httpCore
	clock   clock.Clock
}

type meteostatResponse struct {
	Data []struct {
		Time string   `json:"time"`
		Temp *float64 `json:"temp"`
		Rhum *float64 `json:"rhum"`
		Prcp *float64 `json:"prcp"`
		Wdir *float64 `json:"wdir"`
		Wspd *float64 `json:"wspd"`
		Wpgt *float64 `json:"wpgt"`
		Pres *float64 `json:"pres"`
		Coco *float64 `json:"coco"`
	} `json:"data"`
}

func NewMeteostat(cfg config.SourceConfig, core *httpCore) *Meteostat {
	return &Meteostat{
		baseURL: baseOr(cfg, meteostatBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
		clock:   clock.NewClock(),
	}
}

func (s *Meteostat) Name() string {
	return "meteostat"
}

func (s *Meteostat) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: Meteostat RapidAPI key not configured", ErrMissingCredentials)
	}

	today := s.clock.Now().UTC().Format("2006-01-02")

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("start", today)
	q.Set("end", today)
	q.Set("tz", "UTC")

	u, err := s.core.buildURL(s.baseURL, "/point/hourly", q)
	if err != nil {
		return nil, err
	}

	host := "meteostat.p.rapidapi.com"
	if parsed, err := url.Parse(s.baseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	header := http.Header{}
	header.Set("x-rapidapi-host", host)
	header.Set("x-rapidapi-key", s.apiKey)

	var payload meteostatResponse
	if err := s.core.getJSON(ctx, u, header, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if len(payload.Data) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: no hourly records for %s", ErrNoData, today)
	}

	latest := payload.Data[len(payload.Data)-1]
	reading := &weather.Reading{
		Source:                 s.Name(),
		Coordinates:            weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:             latest.Time,
		Temperature:            latest.Temp,
		Humidity:               latest.Rhum,
		WindSpeed:              kmhToMs(latest.Wspd),
		WindDirection:          latest.Wdir,
		WindGust:               kmhToMs(latest.Wpgt),
		Pressure:               latest.Pres,
		PrecipitationIntensity: latest.Prcp,
	}
	if latest.Coco != nil {
		reading.ConditionText = weather.String(weather.MeteostatText(int(*latest.Coco)))
	}

	reading.Finalize()
	span.SetAttributes(attribute.Bool("success", true))

	return reading, nil
}
