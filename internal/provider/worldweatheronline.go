package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.opentelemetry.io/otel/attribute"
)

const (
	worldWeatherOnlineBaseURL = "https://api.worldweatheronline.com/premium/v1"
	worldWeatherOnlineDays    = 3
)

type WorldWeatherOnline struct {
	baseURL string
	apiKey  string
	core    *httpCore
	clock   clock.Clock
}

type wwoValue struct {
	Value string `json:"value"`
}

type wwoResponse struct {
	Data *struct {
		Error []struct {
			Msg string `json:"msg"`
		} `json:"error"`
		CurrentCondition []struct {
			ObservationTime string     `json:"observation_time"`
			TempC           string     `json:"temp_C"`
			FeelsLikeC      string     `json:"FeelsLikeC"`
			Humidity        string     `json:"humidity"`
			WindspeedKmph   string     `json:"windspeedKmph"`
			WinddirDegree   string     `json:"winddirDegree"`
			PrecipMM        string     `json:"precipMM"`
			Pressure        string     `json:"pressure"`
			WeatherDesc     []wwoValue `json:"weatherDesc"`
		} `json:"current_condition"`
		Weather []struct {
			Date      string `json:"date"`
			MaxTempC  string `json:"maxtempC"`
			MinTempC  string `json:"mintempC"`
			Astronomy []struct {
				Sunrise   string `json:"sunrise"`
				Sunset    string `json:"sunset"`
				MoonPhase string `json:"moon_phase"`
			} `json:"astronomy"`
			Hourly []struct {
				Time         string     `json:"time"`
				TempC        string     `json:"tempC"`
				ChanceOfRain string     `json:"chanceofrain"`
				WeatherDesc  []wwoValue `json:"weatherDesc"`
			} `json:"hourly"`
		} `json:"weather"`
	} `json:"data"`
}

func NewWorldWeatherOnline(cfg config.SourceConfig, core *httpCore) *WorldWeatherOnline {
	return &WorldWeatherOnline{
		baseURL: baseOr(cfg, worldWeatherOnlineBaseURL),
		apiKey:  cfg.APIKey,
		core:    core,
		clock:   clock.NewClock(),
	}
}

func (s *WorldWeatherOnline) Name() string {
	return "worldweatheronline"
}

func (s *WorldWeatherOnline) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	ctx, span := s.core.startSpan(ctx, lat, lon)
	defer span.End()

	if s.apiKey == "" {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: World Weather Online key not configured", ErrMissingCredentials)
	}

	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("q", coordQuery(lat, lon))
	q.Set("format", "json")
	q.Set("num_of_days", strconv.Itoa(worldWeatherOnlineDays))
	q.Set("fx", "yes")
	q.Set("cc", "yes")
	q.Set("mca", "no")
	q.Set("tp", "1")

	u, err := s.core.buildURL(s.baseURL, "/weather.ashx", q)
	if err != nil {
		return nil, err
	}

	var payload wwoResponse
	if err := s.core.getJSON(ctx, u, nil, &payload); err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	data := payload.Data
	if data == nil {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: missing data block", ErrMalformedPayload)
	}
	if len(data.Error) > 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, data.Error[0].Msg)
	}
	if len(data.CurrentCondition) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("%w: no current condition", ErrNoData)
	}

	cur := data.CurrentCondition[0]
	reading := &weather.Reading{
		Source:      s.Name(),
		Coordinates: weather.Coordinates{Lat: lat, Lon: lon},
		// The current block carries only a clock time, not a date.
		ObservedAt:             s.clock.Now().UTC().Format(time.RFC3339),
		Temperature:            parseNumber(cur.TempC),
		FeelsLike:              parseNumber(cur.FeelsLikeC),
		Humidity:               parseNumber(cur.Humidity),
		WindSpeed:              kmhToMs(parseNumber(cur.WindspeedKmph)),
		WindDirection:          parseNumber(cur.WinddirDegree),
		Pressure:               parseNumber(cur.Pressure),
		PrecipitationIntensity: parseNumber(cur.PrecipMM),
		ConditionText:          firstValue(cur.WeatherDesc),
	}

	for _, day := range data.Weather {
		summary := weather.DailySummary{
			Date:    day.Date,
			TempMax: parseNumber(day.MaxTempC),
			TempMin: parseNumber(day.MinTempC),
		}
		if len(day.Hourly) > 0 {
			summary.ConditionText = firstValue(day.Hourly[0].WeatherDesc)
		}
		reading.Daily = append(reading.Daily, summary)
	}

	if len(data.Weather) > 0 {
		first := data.Weather[0]
		for _, h := range first.Hourly {
			reading.Hourly = append(reading.Hourly, weather.HourlySummary{
				Time:                     hhmmToISO(first.Date, h.Time),
				Temperature:              parseNumber(h.TempC),
				PrecipitationProbability: parseNumber(h.ChanceOfRain),
				ConditionText:            firstValue(h.WeatherDesc),
			})
		}
		if len(first.Astronomy) > 0 {
			a := first.Astronomy[0]
			reading.Astronomy = astronomyFor(first.Date, a.Sunrise, a.Sunset, a.MoonPhase)
		}
	}

	reading.Finalize()
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("daily_count", len(reading.Daily)),
		attribute.Int("hourly_count", len(reading.Hourly)),
	)

	return reading, nil
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return weather.Float(v)
}

func firstValue(values []wwoValue) *string {
	if len(values) == 0 {
		return nil
	}
	return weather.String(strings.TrimSpace(values[0].Value))
}

// hhmmToISO turns the hourly "0", "100" ... "2300" notation into a local ISO
// timestamp on date.
func hhmmToISO(date, hhmm string) string {
	if len(hhmm) < 4 {
		hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm
	}
	return fmt.Sprintf("%sT%s:%s:00", date, hhmm[:2], hhmm[2:4])
}

// clock12ToISO converts "07:12 AM" into "<date>T07:12:00". Unparseable input
// is returned unchanged.
func clock12ToISO(date, clock12 string) string {
	t, err := time.Parse("03:04 PM", strings.TrimSpace(clock12))
	if err != nil {
		return clock12
	}
	return fmt.Sprintf("%sT%02d:%02d:00", date, t.Hour(), t.Minute())
}

func astronomyFor(date, sunrise, sunset, moonPhase string) *weather.Astronomy {
	astro := &weather.Astronomy{
		Sunrise:   clock12ToISO(date, sunrise),
		Sunset:    clock12ToISO(date, sunset),
		MoonPhase: moonPhase,
	}
	if astro.MoonPhase == "" {
		if d, err := time.Parse("2006-01-02", date); err == nil {
			astro.MoonPhase = weather.MoonPhase(d)
		}
	}
	return astro
}
