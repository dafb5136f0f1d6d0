package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/provider"
	"github.com/vzahanych/smart-meteo/internal/registry"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	name  string
	fetch func(ctx context.Context, lat, lon float64) (*weather.Reading, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, lat, lon float64) (*weather.Reading, error) {
	return f.fetch(ctx, lat, lon)
}

func staticReading(r weather.Reading) *fakeProvider {
	return &fakeProvider{name: "static", fetch: func(context.Context, float64, float64) (*weather.Reading, error) {
		out := r
		return &out, nil
	}}
}

func failing(err error) *fakeProvider {
	return &fakeProvider{name: "failing", fetch: func(context.Context, float64, float64) (*weather.Reading, error) {
		return nil, err
	}}
}

type testSource struct {
	id       string
	weight   float64
	provider provider.Provider
}

type fixture struct {
	agg      *Aggregator
	registry *registry.Registry
	clock    *fakeclock.FakeClock
}

func newFixture(t *testing.T, sources ...testSource) *fixture {
	t.Helper()

	regSources := make([]registry.Source, 0, len(sources))
	set := provider.NewSet()
	for _, s := range sources {
		regSources = append(regSources, registry.Source{ID: s.id, Name: s.id, Weight: s.weight, Active: true})
		if s.provider != nil {
			set.Register(s.id, s.provider)
		}
	}

	reg, err := registry.New(regSources)
	require.NoError(t, err)

	cfg := &config.WeatherConfig{Workers: 1, QueueSize: 4}
	agg := NewAggregator(cfg, reg, set, zaptest.NewLogger(t), nil)

	fc := fakeclock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	agg.SetClock(fc)

	return &fixture{agg: agg, registry: reg, clock: fc}
}

func TestAggregate_WeightedTemperature(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(10.0), ConditionCode: weather.ConditionClear})},
		testSource{"b", 1.2, staticReading(weather.Reading{Temperature: weather.Float(12.0), ConditionCode: weather.ConditionClear})},
		testSource{"c", 1.0, staticReading(weather.Reading{Temperature: weather.Float(14.0), ConditionCode: weather.ConditionClear})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 45.46, 9.19)
	require.NoError(t, err)

	require.NotNil(t, forecast.Current.Temperature)
	assert.Equal(t, 12.0, *forecast.Current.Temperature)
	assert.Equal(t, []string{"a", "b", "c"}, forecast.SourcesUsed)
	assert.Equal(t, weather.Coordinates{Lat: 45.46, Lon: 9.19}, forecast.Location)
	assert.Equal(t, "2024-03-10T12:00:00Z", forecast.GeneratedAt)
	assert.Equal(t, weather.ConditionClear, forecast.Current.Condition)
	assert.Equal(t, "CLEAR", forecast.Current.ConditionText)
}

func TestAggregate_DerivedFields(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{
			Temperature:   weather.Float(20.0),
			Humidity:      weather.Float(50.0),
			WindDirection: weather.Float(350.0),
		})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NotNil(t, forecast.Current.DewPoint)
	want, ok := weather.DewPoint(20.0, 50.0)
	require.True(t, ok)
	assert.Equal(t, want, *forecast.Current.DewPoint)
	assert.InDelta(t, 9.3, *forecast.Current.DewPoint, 0.05)

	require.NotNil(t, forecast.Current.WindCompass)
	assert.Equal(t, "N", *forecast.Current.WindCompass)

	assert.Equal(t, 0.0, forecast.Current.PrecipitationProbability)
	assert.Nil(t, forecast.Current.WindSpeed)
	assert.Equal(t, weather.ConditionUnknown, forecast.Current.Condition)
	assert.Equal(t, "UNKNOWN", forecast.Current.ConditionText)
}

func TestAggregate_NoDewPointWithoutHumidity(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(20.0)})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, forecast.Current.DewPoint)
	assert.Nil(t, forecast.Current.WindCompass)
}

func TestAggregate_PartialFailure(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(10.0)})},
		testSource{"b", 1.0, failing(errors.New("boom"))},
		testSource{"c", 1.0, staticReading(weather.Reading{Temperature: weather.Float(20.0)})},
		testSource{"d", 1.0, failing(provider.ErrMissingCredentials)},
		testSource{"e", 2.0, staticReading(weather.Reading{Temperature: weather.Float(30.0)})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "e"}, forecast.SourcesUsed)
	require.NotNil(t, forecast.Current.Temperature)
	assert.Equal(t, 22.5, *forecast.Current.Temperature)

	b, err := f.registry.Get("b")
	require.NoError(t, err)
	require.NotNil(t, b.LastError)
	assert.Equal(t, "boom", *b.LastError)

	a, err := f.registry.Get("a")
	require.NoError(t, err)
	assert.Nil(t, a.LastError)
	assert.NotNil(t, a.LastLatencyMs)
}

func TestAggregate_AllSourcesFailed(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, failing(errors.New("down"))},
		testSource{"b", 1.0, failing(errors.New("also down"))},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	assert.Nil(t, forecast)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: also down")
}

func TestAggregate_TieBreakFollowsRegistryOrder(t *testing.T) {
	rain := staticReading(weather.Reading{ConditionCode: weather.ConditionRain})
	sunny := staticReading(weather.Reading{ConditionCode: weather.ConditionClear})

	f := newFixture(t, testSource{"rain", 1.0, rain}, testSource{"clear", 1.0, sunny})
	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, weather.ConditionRain, forecast.Current.Condition)

	f = newFixture(t, testSource{"clear", 1.0, sunny}, testSource{"rain", 1.0, rain})
	forecast, err = f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, weather.ConditionClear, forecast.Current.Condition)
}

func TestAggregate_DominantConditionUsesWeight(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{ConditionCode: weather.ConditionClear})},
		testSource{"b", 0.8, staticReading(weather.Reading{ConditionCode: weather.ConditionRain})},
		testSource{"c", 0.8, staticReading(weather.Reading{ConditionCode: weather.ConditionRain})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, weather.ConditionRain, forecast.Current.Condition)
	assert.Equal(t, "RAIN", forecast.Current.ConditionText)
}

func TestAggregate_DailyMerge(t *testing.T) {
	day := func(date string, hi, lo float64, code weather.Condition) weather.DailySummary {
		return weather.DailySummary{Date: date, TempMax: weather.Float(hi), TempMin: weather.Float(lo), ConditionCode: code}
	}

	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Daily: []weather.DailySummary{
			day("2024-03-11", 10, 2, weather.ConditionRain),
			day("2024-03-10", 12, 4, weather.ConditionClear),
		}})},
		testSource{"b", 2.0, staticReading(weather.Reading{Daily: []weather.DailySummary{
			day("2024-03-10", 14, 6, weather.ConditionCloudy),
		}})},
		testSource{"c", 1.0, staticReading(weather.Reading{Daily: []weather.DailySummary{
			day("2024-03-10", 16, 8, weather.ConditionCloudy),
			day("2024-03-12", 9, 1, weather.ConditionSnow),
		}})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	require.Len(t, forecast.Daily, 3)
	assert.Equal(t, "2024-03-10", forecast.Daily[0].Date)
	assert.Equal(t, "2024-03-11", forecast.Daily[1].Date)
	assert.Equal(t, "2024-03-12", forecast.Daily[2].Date)

	// Daily values are not weighted.
	assert.Equal(t, 14.0, *forecast.Daily[0].TempMax)
	assert.Equal(t, 6.0, *forecast.Daily[0].TempMin)
	assert.Equal(t, weather.ConditionCloudy, forecast.Daily[0].ConditionCode)
	assert.Nil(t, forecast.Daily[0].PrecipitationProbability)

	// A date reported by a single source keeps its own values.
	assert.Equal(t, 9.0, *forecast.Daily[2].TempMax)
	assert.Equal(t, weather.ConditionSnow, forecast.Daily[2].ConditionCode)
}

func TestAggregate_DailyCappedAtSevenDays(t *testing.T) {
	var days []weather.DailySummary
	for i := 9; i >= 1; i-- {
		days = append(days, weather.DailySummary{Date: fmt.Sprintf("2024-03-%02d", i), TempMax: weather.Float(float64(i))})
	}

	f := newFixture(t, testSource{"a", 1.0, staticReading(weather.Reading{Daily: days})})

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	require.Len(t, forecast.Daily, 7)
	assert.Equal(t, "2024-03-01", forecast.Daily[0].Date)
	assert.Equal(t, "2024-03-07", forecast.Daily[6].Date)
	assert.Equal(t, weather.ConditionUnknown, forecast.Daily[0].ConditionCode)
}

func TestAggregate_HourlyAndAstronomyFromFirstSource(t *testing.T) {
	astro := &weather.Astronomy{Sunrise: "06:30", Sunset: "18:10", MoonPhase: "Full Moon"}
	hourly := []weather.HourlySummary{{Time: "2024-03-10T13:00", Temperature: weather.Float(11)}}

	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(10)})},
		testSource{"b", 1.0, staticReading(weather.Reading{Hourly: hourly})},
		testSource{"c", 1.0, staticReading(weather.Reading{Astronomy: astro, Hourly: []weather.HourlySummary{{Time: "ignored"}}})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, hourly, forecast.Hourly)
	assert.Equal(t, astro, forecast.Astronomy)
}

func TestAggregate_PanicIsolated(t *testing.T) {
	panicky := &fakeProvider{name: "panicky", fetch: func(context.Context, float64, float64) (*weather.Reading, error) {
		panic("unexpected nil map")
	}}

	f := newFixture(t,
		testSource{"ok", 1.0, staticReading(weather.Reading{Temperature: weather.Float(5)})},
		testSource{"panicky", 1.0, panicky},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, forecast.SourcesUsed)

	src, err := f.registry.Get("panicky")
	require.NoError(t, err)
	require.NotNil(t, src.LastError)
	assert.Contains(t, *src.LastError, "panicked")
}

func TestAggregate_NilReadingIsFailure(t *testing.T) {
	empty := &fakeProvider{name: "empty", fetch: func(context.Context, float64, float64) (*weather.Reading, error) {
		return nil, nil
	}}

	f := newFixture(t, testSource{"empty", 1.0, empty})

	_, err := f.agg.Aggregate(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Contains(t, err.Error(), ErrEmptyReading.Error())
}

func TestAggregate_ActiveSourceWithoutConnector(t *testing.T) {
	f := newFixture(t,
		testSource{"ghost", 1.0, nil},
		testSource{"real", 1.0, staticReading(weather.Reading{Temperature: weather.Float(7)})},
	)

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, forecast.SourcesUsed)

	ghost, err := f.registry.Get("ghost")
	require.NoError(t, err)
	require.NotNil(t, ghost.LastError)
	assert.Contains(t, *ghost.LastError, "no connector")
	require.NotNil(t, ghost.LastLatencyMs)
	assert.Equal(t, int64(0), *ghost.LastLatencyMs)
}

func TestAggregate_OverwritesSourceAndCoordinates(t *testing.T) {
	var seen *weather.Reading
	p := &fakeProvider{name: "p", fetch: func(_ context.Context, lat, lon float64) (*weather.Reading, error) {
		seen = &weather.Reading{Source: "vendor-name", Coordinates: weather.Coordinates{Lat: 0, Lon: 0}}
		return seen, nil
	}}

	f := newFixture(t, testSource{"registry-id", 1.0, p})

	_, err := f.agg.Aggregate(context.Background(), 3.5, 4.5)
	require.NoError(t, err)
	assert.Equal(t, "registry-id", seen.Source)
	assert.Equal(t, weather.Coordinates{Lat: 3.5, Lon: 4.5}, seen.Coordinates)
}

func TestAggregate_SourceTimeout(t *testing.T) {
	slow := &fakeProvider{name: "slow", fetch: func(ctx context.Context, _, _ float64) (*weather.Reading, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	f := newFixture(t,
		testSource{"slow", 1.0, slow},
		testSource{"fast", 1.0, staticReading(weather.Reading{Temperature: weather.Float(1)})},
	)
	f.agg.sourceTimeout = 20 * time.Millisecond

	forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fast"}, forecast.SourcesUsed)

	src, err := f.registry.Get("slow")
	require.NoError(t, err)
	require.NotNil(t, src.LastError)
	assert.Contains(t, *src.LastError, context.DeadlineExceeded.Error())
}

type recordingObserver struct {
	mu        sync.Mutex
	forecasts []*weather.Forecast
	ctxErrs   []error
	err       error
}

func (o *recordingObserver) Save(ctx context.Context, forecast *weather.Forecast) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forecasts = append(o.forecasts, forecast)
	o.ctxErrs = append(o.ctxErrs, ctx.Err())
	return o.err
}

type panickingObserver struct{}

func (panickingObserver) Save(context.Context, *weather.Forecast) error {
	panic("observer exploded")
}

func TestAggregate_NotifiesObservers(t *testing.T) {
	f := newFixture(t, testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(3)})})

	obs := &recordingObserver{}
	failingObs := &recordingObserver{err: errors.New("store down")}
	f.agg.AddObserver(panickingObserver{})
	f.agg.AddObserver(obs)
	f.agg.AddObserver(failingObs)

	ctx, cancel := context.WithCancel(context.Background())
	forecast, err := f.agg.Aggregate(ctx, 1, 2)
	cancel()
	require.NoError(t, err)

	f.agg.WaitObservers()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.forecasts, 1)
	assert.Same(t, forecast, obs.forecasts[0])
	assert.Len(t, failingObs.forecasts, 1)
}

func TestAggregate_ObserversNotCalledOnFailure(t *testing.T) {
	f := newFixture(t, testSource{"a", 1.0, failing(errors.New("down"))})

	obs := &recordingObserver{}
	f.agg.AddObserver(obs)

	_, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.Error(t, err)

	f.agg.WaitObservers()
	assert.Empty(t, obs.forecasts)
}

type countingMetrics struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (m *countingMetrics) RecordWeatherServiceCall(_ context.Context, service string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string][]bool)
	}
	m.calls[service] = append(m.calls[service], success)
}

func TestAggregate_RecordsServiceMetrics(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(3)})},
		testSource{"b", 1.0, failing(errors.New("down"))},
	)

	m := &countingMetrics{}
	f.agg.SetMetricsRecorder(m)

	_, err := f.agg.Aggregate(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, []bool{true}, m.calls["a"])
	assert.Equal(t, []bool{false}, m.calls["b"])
}

func TestAggregate_ConcurrentCalls(t *testing.T) {
	f := newFixture(t,
		testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(10)})},
		testSource{"b", 1.0, staticReading(weather.Reading{Temperature: weather.Float(20)})},
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecast, err := f.agg.Aggregate(context.Background(), 1, 2)
			if assert.NoError(t, err) {
				assert.Equal(t, 15.0, *forecast.Current.Temperature)
			}
		}()
	}
	wg.Wait()
}

func TestAggregate_WaitObserversDuringDispatch(t *testing.T) {
	f := newFixture(t, testSource{"a", 1.0, staticReading(weather.Reading{Temperature: weather.Float(3)})})

	obs := &recordingObserver{}
	f.agg.AddObserver(obs)

	const calls = 20
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.agg.Aggregate(context.Background(), 1, 2)
			assert.NoError(t, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < calls; i++ {
			f.agg.WaitObservers()
		}
	}()

	wg.Wait()
	<-done
	f.agg.WaitObservers()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.forecasts, calls)
}
