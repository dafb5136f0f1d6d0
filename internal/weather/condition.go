package weather

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type conditionBucket struct {
	condition Condition
	keywords  []string
}

// Buckets are checked in order and the first hit wins, so a text mentioning
// both rain and thunder resolves to rain.
var conditionBuckets = []conditionBucket{
	{ConditionClear, []string{"clear", "sunny"}},
	{ConditionCloudy, []string{"cloud", "overcast"}},
	{ConditionRain, []string{"rain", "drizzle", "shower"}},
	{ConditionSnow, []string{"snow", "blizzard"}},
	{ConditionStorm, []string{"thunder", "storm"}},
	{ConditionFog, []string{"fog", "mist"}},
}

// NormalizeCondition maps a provider description to the condition taxonomy.
// Empty or unrecognised text yields ConditionUnknown.
func NormalizeCondition(text string) Condition {
	if text == "" {
		return ConditionUnknown
	}

	// Casers are stateful, one per call.
	folded := cases.Fold().String(text)

	for _, bucket := range conditionBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(folded, kw) {
				return bucket.condition
			}
		}
	}

	return ConditionUnknown
}

// Label renders a condition as an upper-case display label.
func (c Condition) Label() string {
	if c == "" {
		c = ConditionUnknown
	}
	return cases.Upper(language.Und).String(string(c))
}

func (c Condition) Valid() bool {
	switch c {
	case ConditionClear, ConditionCloudy, ConditionRain, ConditionSnow,
		ConditionStorm, ConditionFog, ConditionUnknown:
		return true
	}
	return false
}

// WMO weather interpretation codes, used by Open-Meteo.
var wmoText = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow fall",
	86: "Heavy snow fall",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Tomorrow.io weatherCode values.
var tomorrowText = map[int]string{
	1000: "Clear, Sunny",
	1100: "Mostly Clear",
	1101: "Partly Cloudy",
	1102: "Mostly Cloudy",
	1001: "Cloudy",
	2000: "Fog",
	2100: "Light Fog",
	4000: "Drizzle",
	4001: "Rain",
	4200: "Light Rain",
	4201: "Heavy Rain",
	5000: "Snow",
	5001: "Snow Flurries",
	5100: "Light Snow",
	5101: "Heavy Snow",
	6000: "Freezing Drizzle",
	6001: "Freezing Rain",
	6200: "Light Freezing Rain",
	6201: "Heavy Freezing Rain",
	7000: "Ice Pellets",
	7101: "Heavy Ice Pellets",
	7102: "Light Ice Pellets",
	8000: "Thunderstorm",
}

// Meteomatics weather_symbol_1h:idx values. Night symbols are offset by 100.
var meteomaticsText = map[int]string{
	1:  "Clear sky",
	2:  "Light clouds",
	3:  "Partly cloudy",
	4:  "Cloudy",
	5:  "Rain",
	6:  "Rain and snow / sleet",
	7:  "Snow",
	8:  "Rain shower",
	9:  "Snow fall, intermittent",
	10: "Sleet shower",
	11: "Light fog",
	12: "Dense fog",
	13: "Freezing rain",
	14: "Thunderstorms",
	15: "Drizzle",
	16: "Sandstorm",
}

// Meteostat hourly weather condition (coco) codes.
var meteostatText = map[int]string{
	1:  "Clear",
	2:  "Fair, mostly clear",
	3:  "Cloudy",
	4:  "Overcast",
	5:  "Fog",
	6:  "Freezing fog",
	7:  "Light rain",
	8:  "Rain",
	9:  "Heavy rain",
	10: "Freezing rain",
	11: "Heavy freezing rain",
	12: "Sleet, rain",
	13: "Heavy sleet, rain",
	14: "Light snowfall",
	15: "Snowfall",
	16: "Heavy snowfall",
	17: "Rain shower",
	18: "Heavy rain shower",
	19: "Sleet shower",
	20: "Heavy sleet shower",
	21: "Snow fall, intermittent",
	22: "Heavy snow fall, intermittent",
	23: "Lightning, thunder",
	24: "Hail, thunder",
	25: "Thunderstorm",
	26: "Heavy thunderstorm",
	27: "Storm",
}

func lookup(table map[int]string, prefix string, code int) string {
	if text, ok := table[code]; ok {
		return text
	}
	return fmt.Sprintf("%s %d", prefix, code)
}

func WMOText(code int) string {
	return lookup(wmoText, "WMO code", code)
}

func TomorrowText(code int) string {
	return lookup(tomorrowText, "Tomorrow code", code)
}

func MeteomaticsText(symbol int) string {
	return lookup(meteomaticsText, "Symbol", symbol%100)
}

func MeteostatText(code int) string {
	return lookup(meteostatText, "Code", code)
}
