package aggregator

import (
	"sort"
	"time"

	"github.com/vzahanych/smart-meteo/internal/weather"
)

const maxDailyDays = 7

// contribution is one successful reading with the weight of its source.
// Slices of contributions are kept in registry order so that every tie-break
// below is deterministic.
type contribution struct {
	id      string
	weight  float64
	reading *weather.Reading
}

type fieldFunc func(r *weather.Reading) *float64

// weightedAverage returns Σ(v·w)/Σ(w) over the contributions that supplied
// the field, rounded to one decimal, or nil when none did.
func weightedAverage(cs []contribution, field fieldFunc) *float64 {
	var sum, weights float64
	for _, c := range cs {
		v := field(c.reading)
		if v == nil {
			continue
		}
		sum += *v * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return nil
	}
	return weather.Float(weather.Round1(sum / weights))
}

// dominantCondition picks the condition with the highest summed weight. On a
// tie the condition seen first wins.
func dominantCondition(cs []contribution) weather.Condition {
	totals := make(map[weather.Condition]float64)
	order := make([]weather.Condition, 0, len(cs))

	for _, c := range cs {
		code := c.reading.ConditionCode
		if code == "" {
			code = weather.ConditionUnknown
		}
		if _, seen := totals[code]; !seen {
			order = append(order, code)
		}
		totals[code] += c.weight
	}

	best := weather.ConditionUnknown
	bestWeight := -1.0
	for _, code := range order {
		if totals[code] > bestWeight {
			best = code
			bestWeight = totals[code]
		}
	}
	return best
}

type dayAccumulator struct {
	maxSum, minSum, probSum float64
	maxN, minN, probN       int
	codeOrder               []weather.Condition
	codeCounts              map[weather.Condition]int
	// First provider text seen for each code.
	codeTexts map[weather.Condition]string
}

func (d *dayAccumulator) add(day weather.DailySummary) {
	if day.TempMax != nil {
		d.maxSum += *day.TempMax
		d.maxN++
	}
	if day.TempMin != nil {
		d.minSum += *day.TempMin
		d.minN++
	}
	if day.PrecipitationProbability != nil {
		d.probSum += *day.PrecipitationProbability
		d.probN++
	}

	code := day.ConditionCode
	if code == "" {
		code = weather.ConditionUnknown
	}
	if _, seen := d.codeCounts[code]; !seen {
		d.codeOrder = append(d.codeOrder, code)
	}
	d.codeCounts[code]++

	if _, ok := d.codeTexts[code]; !ok && day.ConditionText != nil && *day.ConditionText != "" {
		d.codeTexts[code] = *day.ConditionText
	}
}

// text returns the provider wording for code, or its label when no entry
// carried one.
func (d *dayAccumulator) text(code weather.Condition) *string {
	if t, ok := d.codeTexts[code]; ok {
		return weather.String(t)
	}
	return weather.String(code.Label())
}

func (d *dayAccumulator) mode() weather.Condition {
	best := weather.ConditionUnknown
	bestCount := 0
	for _, code := range d.codeOrder {
		if d.codeCounts[code] > bestCount {
			best = code
			bestCount = d.codeCounts[code]
		}
	}
	return best
}

func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	return weather.Float(weather.Round1(sum / float64(n)))
}

// mergeDaily groups daily entries by date, averages them without weights and
// keeps the first maxDailyDays dates in ascending order.
func mergeDaily(cs []contribution) []weather.DailySummary {
	days := make(map[string]*dayAccumulator)

	for _, c := range cs {
		for _, day := range c.reading.Daily {
			if day.Date == "" {
				continue
			}
			acc, ok := days[day.Date]
			if !ok {
				acc = &dayAccumulator{
					codeCounts: make(map[weather.Condition]int),
					codeTexts:  make(map[weather.Condition]string),
				}
				days[day.Date] = acc
			}
			acc.add(day)
		}
	}

	if len(days) == 0 {
		return nil
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if len(dates) > maxDailyDays {
		dates = dates[:maxDailyDays]
	}

	merged := make([]weather.DailySummary, 0, len(dates))
	for _, date := range dates {
		acc := days[date]
		code := acc.mode()
		merged = append(merged, weather.DailySummary{
			Date:                     date,
			TempMax:                  mean(acc.maxSum, acc.maxN),
			TempMin:                  mean(acc.minSum, acc.minN),
			PrecipitationProbability: mean(acc.probSum, acc.probN),
			ConditionCode:            code,
			ConditionText:            acc.text(code),
		})
	}
	return merged
}

func firstHourly(cs []contribution) []weather.HourlySummary {
	for _, c := range cs {
		if len(c.reading.Hourly) > 0 {
			return c.reading.Hourly
		}
	}
	return nil
}

func firstAstronomy(cs []contribution) *weather.Astronomy {
	for _, c := range cs {
		if c.reading.Astronomy != nil {
			return c.reading.Astronomy
		}
	}
	return nil
}

func buildForecast(location weather.Coordinates, cs []contribution, now time.Time) *weather.Forecast {
	sourcesUsed := make([]string, 0, len(cs))
	for _, c := range cs {
		sourcesUsed = append(sourcesUsed, c.id)
	}

	current := weather.Current{
		Temperature:     weightedAverage(cs, func(r *weather.Reading) *float64 { return r.Temperature }),
		FeelsLike:       weightedAverage(cs, func(r *weather.Reading) *float64 { return r.FeelsLike }),
		Humidity:        weightedAverage(cs, func(r *weather.Reading) *float64 { return r.Humidity }),
		WindSpeed:       weightedAverage(cs, func(r *weather.Reading) *float64 { return r.WindSpeed }),
		WindDirection:   weightedAverage(cs, func(r *weather.Reading) *float64 { return r.WindDirection }),
		WindGust:        weightedAverage(cs, func(r *weather.Reading) *float64 { return r.WindGust }),
		AirQualityIndex: weightedAverage(cs, func(r *weather.Reading) *float64 { return r.AirQualityIndex }),
	}

	if p := weightedAverage(cs, func(r *weather.Reading) *float64 { return r.PrecipitationProbability }); p != nil {
		current.PrecipitationProbability = *p
	}

	current.Condition = dominantCondition(cs)
	current.ConditionText = current.Condition.Label()

	if current.Temperature != nil && current.Humidity != nil {
		if dp, ok := weather.DewPoint(*current.Temperature, *current.Humidity); ok {
			current.DewPoint = &dp
		}
	}
	if current.WindDirection != nil {
		compass := weather.Compass16(*current.WindDirection)
		current.WindCompass = &compass
	}

	return &weather.Forecast{
		Location:    location,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		SourcesUsed: sourcesUsed,
		Current:     current,
		Daily:       mergeDaily(cs),
		Hourly:      firstHourly(cs),
		Astronomy:   firstAstronomy(cs),
	}
}
