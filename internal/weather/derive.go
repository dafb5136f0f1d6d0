package weather

import (
	"math"
	"time"
)

// Magnus coefficients over water.
const (
	magnusA = 17.625
	magnusB = 243.04
)

// DewPoint approximates the dew point in °C from temperature (°C) and relative
// humidity (%), rounded to one decimal. ok is false when humidity is not
// positive, where the logarithm is undefined.
func DewPoint(temp, humidity float64) (float64, bool) {
	if humidity <= 0 {
		return 0, false
	}
	alpha := math.Log(humidity/100) + (magnusA*temp)/(magnusB+temp)
	dp := magnusB * alpha / (magnusA - alpha)
	if math.IsNaN(dp) || math.IsInf(dp, 0) {
		return 0, false
	}
	return Round1(dp), true
}

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Compass16 buckets a bearing in degrees into a 16-point compass label.
func Compass16(deg float64) string {
	idx := int(math.Round(deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

var moonPhases = [8]string{
	"New Moon",
	"Waxing Crescent",
	"First Quarter",
	"Waxing Gibbous",
	"Full Moon",
	"Waning Gibbous",
	"Last Quarter",
	"Waning Crescent",
}

// MoonPhase returns the approximate lunar phase name for the calendar date of t.
func MoonPhase(t time.Time) string {
	year := float64(t.Year())
	month := float64(t.Month())
	day := float64(t.Day())

	if month < 3 {
		year--
		month += 12
	}
	month++

	elapsed := 365.25*year + 30.6*month + day - 694039.09
	cycles := elapsed / 29.5305882
	frac := cycles - math.Trunc(cycles)

	phase := int(math.Round(frac * 8))
	if phase >= 8 || phase < 0 {
		phase = 0
	}
	return moonPhases[phase]
}
