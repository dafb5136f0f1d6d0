package weather

import (
	"fmt"
	"math"
)

// Condition is the closed taxonomy every provider vocabulary is mapped into.
type Condition string

const (
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionFog     Condition = "fog"
	ConditionUnknown Condition = "unknown"
)

type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// Key formats the coordinates with the given number of decimals, suitable as a
// map key for location-scoped caches.
func (c Coordinates) Key(precision int) string {
	return fmt.Sprintf("%.*f,%.*f", precision, c.Lat, precision, c.Lon)
}

// Reading is the normalized snapshot a connector produces. Nil numeric fields
// mean the provider did not supply the value.
type Reading struct {
	Source      string      `json:"source"`
	Coordinates Coordinates `json:"coordinates"`
	ObservedAt  string      `json:"observed_at,omitempty"`

	Temperature     *float64 `json:"temperature"`
	FeelsLike       *float64 `json:"feels_like"`
	Humidity        *float64 `json:"humidity"`
	WindSpeed       *float64 `json:"wind_speed"`
	WindDirection   *float64 `json:"wind_direction"`
	WindGust        *float64 `json:"wind_gust"`
	Pressure        *float64 `json:"pressure"`
	AirQualityIndex *float64 `json:"air_quality_index"`

	ConditionText *string   `json:"condition_text"`
	ConditionCode Condition `json:"condition_code"`

	PrecipitationProbability *float64 `json:"precipitation_probability"`
	PrecipitationIntensity   *float64 `json:"precipitation_intensity"`

	Daily     []DailySummary  `json:"daily,omitempty"`
	Hourly    []HourlySummary `json:"hourly,omitempty"`
	Astronomy *Astronomy      `json:"astronomy,omitempty"`
}

type DailySummary struct {
	Date                     string    `json:"date" bson:"date"`
	TempMax                  *float64  `json:"temp_max" bson:"temp_max"`
	TempMin                  *float64  `json:"temp_min" bson:"temp_min"`
	PrecipitationProbability *float64  `json:"precipitation_probability" bson:"precipitation_probability"`
	ConditionCode            Condition `json:"condition_code" bson:"condition_code"`
	ConditionText            *string   `json:"condition_text,omitempty" bson:"condition_text,omitempty"`
}

type HourlySummary struct {
	Time                     string    `json:"time" bson:"time"`
	Temperature              *float64  `json:"temperature" bson:"temperature"`
	PrecipitationProbability *float64  `json:"precipitation_probability" bson:"precipitation_probability"`
	ConditionCode            Condition `json:"condition_code" bson:"condition_code"`
	ConditionText            *string   `json:"condition_text,omitempty" bson:"condition_text,omitempty"`
}

type Astronomy struct {
	Sunrise   string `json:"sunrise,omitempty" bson:"sunrise,omitempty"`
	Sunset    string `json:"sunset,omitempty" bson:"sunset,omitempty"`
	MoonPhase string `json:"moon_phase,omitempty" bson:"moon_phase,omitempty"`
}

// Current is the weighted consensus block of a Forecast.
type Current struct {
	Temperature              *float64  `json:"temperature" bson:"temperature"`
	FeelsLike                *float64  `json:"feels_like" bson:"feels_like"`
	Humidity                 *float64  `json:"humidity" bson:"humidity"`
	WindSpeed                *float64  `json:"wind_speed" bson:"wind_speed"`
	WindDirection            *float64  `json:"wind_direction" bson:"wind_direction"`
	WindGust                 *float64  `json:"wind_gust" bson:"wind_gust"`
	PrecipitationProbability float64   `json:"precipitation_probability" bson:"precipitation_probability"`
	AirQualityIndex          *float64  `json:"air_quality_index" bson:"air_quality_index"`
	DewPoint                 *float64  `json:"dew_point" bson:"dew_point"`
	WindCompass              *string   `json:"wind_compass" bson:"wind_compass"`
	Condition                Condition `json:"condition" bson:"condition"`
	ConditionText            string    `json:"condition_text" bson:"condition_text"`
}

// Forecast is the aggregated response of one aggregation cycle.
type Forecast struct {
	Location    Coordinates     `json:"location" bson:"location"`
	GeneratedAt string          `json:"generated_at" bson:"generated_at"`
	SourcesUsed []string        `json:"sources_used" bson:"sources_used"`
	Current     Current         `json:"current" bson:"current"`
	Daily       []DailySummary  `json:"daily,omitempty" bson:"daily,omitempty"`
	Hourly      []HourlySummary `json:"hourly,omitempty" bson:"hourly,omitempty"`
	Astronomy   *Astronomy      `json:"astronomy,omitempty" bson:"astronomy,omitempty"`
}

// Float returns a pointer to v, or nil when v is not a finite number.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// String returns nil for empty strings.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round1Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	r := Round1(*v)
	return &r
}

// Finalize rounds every numeric field to one decimal, drops non-finite values
// and derives condition codes from text where the connector left them unset.
func (r *Reading) Finalize() {
	r.Temperature = round1Ptr(r.Temperature)
	r.FeelsLike = round1Ptr(r.FeelsLike)
	r.Humidity = round1Ptr(r.Humidity)
	r.WindSpeed = round1Ptr(r.WindSpeed)
	r.WindDirection = round1Ptr(r.WindDirection)
	r.WindGust = round1Ptr(r.WindGust)
	r.Pressure = round1Ptr(r.Pressure)
	r.AirQualityIndex = round1Ptr(r.AirQualityIndex)
	r.PrecipitationProbability = round1Ptr(r.PrecipitationProbability)
	r.PrecipitationIntensity = round1Ptr(r.PrecipitationIntensity)

	if r.ConditionCode == "" {
		r.ConditionCode = normalizePtr(r.ConditionText)
	}

	for i := range r.Daily {
		d := &r.Daily[i]
		d.TempMax = round1Ptr(d.TempMax)
		d.TempMin = round1Ptr(d.TempMin)
		d.PrecipitationProbability = round1Ptr(d.PrecipitationProbability)
		if d.ConditionCode == "" {
			d.ConditionCode = normalizePtr(d.ConditionText)
		}
	}

	for i := range r.Hourly {
		h := &r.Hourly[i]
		h.Temperature = round1Ptr(h.Temperature)
		h.PrecipitationProbability = round1Ptr(h.PrecipitationProbability)
		if h.ConditionCode == "" {
			h.ConditionCode = normalizePtr(h.ConditionText)
		}
	}
}

func normalizePtr(text *string) Condition {
	if text == nil {
		return ConditionUnknown
	}
	return NormalizeCondition(*text)
}
