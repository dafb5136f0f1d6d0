package weather

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCondition(t *testing.T) {
	cases := map[string]Condition{
		"Heavy Thunderstorm":      ConditionStorm,
		"Light Drizzle":           ConditionRain,
		"":                        ConditionUnknown,
		"Partly Cloudy":           ConditionCloudy,
		"SUNNY":                   ConditionClear,
		"Overcast":                ConditionCloudy,
		"Patchy light snow":       ConditionSnow,
		"Blizzard":                ConditionSnow,
		"Mist":                    ConditionFog,
		"Freezing fog":            ConditionFog,
		"Moderate rain showers":   ConditionRain,
		"Sandstorm":               ConditionStorm,
		"Thunderstorm with rain":  ConditionRain,
		"Clear skies, some cloud": ConditionClear,
		"Ice Pellets":             ConditionUnknown,
		"Haze":                    ConditionUnknown,
	}

	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, NormalizeCondition(text))
			assert.Equal(t, want, NormalizeCondition(text), "normalization must be stable")
		})
	}
}

func TestCodeTables(t *testing.T) {
	assert.Equal(t, ConditionClear, NormalizeCondition(WMOText(0)))
	assert.Equal(t, ConditionCloudy, NormalizeCondition(WMOText(3)))
	assert.Equal(t, ConditionFog, NormalizeCondition(WMOText(45)))
	assert.Equal(t, ConditionRain, NormalizeCondition(WMOText(61)))
	assert.Equal(t, ConditionSnow, NormalizeCondition(WMOText(86)))
	assert.Equal(t, ConditionStorm, NormalizeCondition(WMOText(95)))
	assert.Equal(t, "WMO code 42", WMOText(42))

	assert.Equal(t, ConditionClear, NormalizeCondition(TomorrowText(1000)))
	assert.Equal(t, ConditionSnow, NormalizeCondition(TomorrowText(5001)))
	assert.Equal(t, ConditionStorm, NormalizeCondition(TomorrowText(8000)))

	assert.Equal(t, ConditionClear, NormalizeCondition(MeteomaticsText(101)), "night symbols share the day table")
	assert.Equal(t, ConditionStorm, NormalizeCondition(MeteomaticsText(14)))
	assert.Equal(t, ConditionSnow, NormalizeCondition(MeteomaticsText(9)))

	assert.Equal(t, ConditionStorm, NormalizeCondition(MeteostatText(25)))
	assert.Equal(t, ConditionFog, NormalizeCondition(MeteostatText(6)))
	assert.Equal(t, ConditionUnknown, NormalizeCondition(MeteostatText(99)))
}

func TestConditionLabel(t *testing.T) {
	assert.Equal(t, "RAIN", ConditionRain.Label())
	assert.Equal(t, "UNKNOWN", Condition("").Label())
	assert.True(t, ConditionFog.Valid())
	assert.False(t, Condition("hail").Valid())
}

func TestDewPoint(t *testing.T) {
	dp, ok := DewPoint(20, 50)
	require.True(t, ok)

	alpha := math.Log(0.5) + (17.625*20)/(243.04+20)
	want := Round1(243.04 * alpha / (17.625 - alpha))
	assert.Equal(t, want, dp)
	assert.Equal(t, 9.3, dp)

	_, ok = DewPoint(20, 0)
	assert.False(t, ok)
}

func TestCompass16(t *testing.T) {
	cases := map[float64]string{
		0:      "N",
		22.5:   "NNE",
		45:     "NE",
		90:     "E",
		180:    "S",
		270:    "W",
		348.75: "N",
		359:    "N",
		360:    "N",
		-22.5:  "NNW",
		200:    "SSW",
	}
	for deg, want := range cases {
		assert.Equal(t, want, Compass16(deg), "degrees %v", deg)
	}
}

func TestMoonPhase(t *testing.T) {
	assert.Equal(t, "Full Moon", MoonPhase(time.Date(2024, 1, 25, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "New Moon", MoonPhase(time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC)))
}

func TestReadingFinalize(t *testing.T) {
	r := &Reading{
		Temperature:   Float(12.34),
		Humidity:      func() *float64 { v := math.NaN(); return &v }(),
		WindSpeed:     func() *float64 { v := math.Inf(1); return &v }(),
		ConditionText: String("Light rain"),
		Daily: []DailySummary{
			{Date: "2024-05-01", TempMax: Float(20.06), ConditionText: String("Sunny")},
		},
		Hourly: []HourlySummary{
			{Time: "2024-05-01T10:00", Temperature: Float(15.44)},
		},
	}

	r.Finalize()

	require.NotNil(t, r.Temperature)
	assert.Equal(t, 12.3, *r.Temperature)
	assert.Nil(t, r.Humidity)
	assert.Nil(t, r.WindSpeed)
	assert.Equal(t, ConditionRain, r.ConditionCode)
	assert.Equal(t, 20.1, *r.Daily[0].TempMax)
	assert.Equal(t, ConditionClear, r.Daily[0].ConditionCode)
	assert.Equal(t, 15.4, *r.Hourly[0].Temperature)
	assert.Equal(t, ConditionUnknown, r.Hourly[0].ConditionCode)
}

func TestFinalizeKeepsExplicitCode(t *testing.T) {
	r := &Reading{ConditionText: String("Code 95"), ConditionCode: ConditionStorm}
	r.Finalize()
	assert.Equal(t, ConditionStorm, r.ConditionCode)
}

func TestHelpers(t *testing.T) {
	assert.Nil(t, Float(math.NaN()))
	assert.Nil(t, String(""))
	assert.Equal(t, "45.46,9.19", Coordinates{Lat: 45.4642, Lon: 9.19}.Key(2))
}
