package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const meteomaticsBaseURL = "https://api.meteomatics.com"

const (
	mmTemperature = "t_2m:C"
	mmApparent    = "t_apparent:C"
	mmHumidity    = "relative_humidity_2m:p"
	mmWindSpeed   = "wind_speed_10m:ms"
	mmWindDir     = "wind_dir_10m:d"
	mmWindGust    = "wind_gusts_10m_1h:ms"
	mmPressure    = "msl_pressure:hPa"
	mmPrecipProb  = "prob_precip_1h:p"
	mmPrecip      = "precip_1h:mm"
	mmSymbol      = "weather_symbol_1h:idx"
)

var meteomaticsParameters = []string{
	mmTemperature, mmApparent, mmHumidity, mmWindSpeed, mmWindDir,
	mmWindGust, mmPressure, mmPrecipProb, mmPrecip, mmSymbol,
}

type Meteomatics struct {
	baseURL  string
	username string
	password string
	core     *httpCore
	clock    clock.Clock
}

type meteomaticsResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Parameter   string `json:"parameter"`
		Coordinates []struct {
			Dates []struct {
				Date  string   `json:"date"`
				Value *float64 `json:"value"`
			} `json:"dates"`
		} `json:"coordinates"`
	} `json:"data"`
}

func (r *meteomaticsResponse) value(parameter string) *float64 {
	for _, d := range r.Data {
		if d.Parameter != parameter {
			continue
		}
		if len(d.Coordinates) == 0 || len(d.Coordinates[0].Dates) == 0 {
			return nil
		}
		v := d.Coordinates[0].Dates[0].Value
		// Meteomatics flags unavailable values with -666 / -999.
		if v != nil && *v <= -666 {
			return nil
		}
		return v
	}
	return nil
}

func NewMeteomatics(cfg config.SourceConfig, core *httpCore) *Meteomatics {
	return &Meteomatics{
		baseURL:  baseOr(cfg, meteomaticsBaseURL),
		username: cfg.Username,
		password: cfg.Password,
		core:     core,
		clock:    clock.NewClock(),
	}
}

func (s *Meteomatics) Name() string {
	return "meteomatics"
}

func (s *Meteomatics) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.username == "" || s.password == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: Meteomatics username or password not configured", ErrMissingCredentials)
	}

	at := s.clock.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
	path := fmt.Sprintf("/%s/%s/%.6f,%.6f/json", at, strings.Join(meteomaticsParameters, ","), lat, lon)

	u, err := s.core.buildURL(s.baseURL, path, url.Values{})
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.username+":"+s.password)))

	var payload meteomaticsResponse
	if err := s.core.getJSON(ctx, u, header, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if payload.Status != "OK" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: status %q", ErrMalformedPayload, payload.Status)
	}

	reading := &weather.Reading{
		Source:                   s.Name(),
		Coordinates:              weather.Coordinates{Lat: lat, Lon: lon},
		ObservedAt:               at,
		Temperature:              payload.value(mmTemperature),
		FeelsLike:                payload.value(mmApparent),
		Humidity:                 payload.value(mmHumidity),
		WindSpeed:                payload.value(mmWindSpeed),
		WindDirection:            payload.value(mmWindDir),
		WindGust:                 payload.value(mmWindGust),
		Pressure:                 payload.value(mmPressure),
		PrecipitationProbability: payload.value(mmPrecipProb),
		PrecipitationIntensity:   payload.value(mmPrecip),
	}
	if symbol := payload.value(mmSymbol); symbol != nil {
		reading.ConditionText = weather.String(weather.MeteomaticsText(int(*symbol)))
	}

	reading.Finalize()
	span.SetAttributes(attribute.Bool("success", true))

	return reading, nil
}
