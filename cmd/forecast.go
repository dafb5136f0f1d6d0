package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/geocode"
	"github.com/vzahanych/smart-meteo/internal/server/utils"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.uber.org/zap"
)

var forecastOpts struct {
	lat     float64
	lon     float64
	city    string
	country string
	pretty  bool
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Fetch one merged forecast and print it as JSON",
	Example: `  smart-meteo forecast --lat 45.46 --lon 9.19 --pretty
  smart-meteo forecast --city Milan --country IT`,
	RunE: runForecast,
}

func init() {
	f := forecastCmd.Flags()
	f.Float64Var(&forecastOpts.lat, "lat", 0, "latitude in decimal degrees")
	f.Float64Var(&forecastOpts.lon, "lon", 0, "longitude in decimal degrees")
	f.StringVar(&forecastOpts.city, "city", "", "city name, resolved with the configured geocoder")
	f.StringVar(&forecastOpts.country, "country", "", "country used to disambiguate --city")
	f.BoolVar(&forecastOpts.pretty, "pretty", false, "indent the JSON output")
}

type coordinateFlags struct {
	Lat float64 `validate:"latitude"`
	Lon float64 `validate:"longitude"`
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	coords, err := forecastLocation(cmd, cfg)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, cfg, log.Logger, tele, false)
	if err != nil {
		return err
	}

	forecast, err := eng.aggregator.Aggregate(ctx, coords.Lat, coords.Lon)
	if err != nil {
		log.Error("Forecast failed", zap.Error(err))
		return err
	}

	return writeJSON(cmd.OutOrStdout(), forecast, forecastOpts.pretty)
}

func forecastLocation(cmd *cobra.Command, cfg *config.Config) (weather.Coordinates, error) {
	flags := cmd.Flags()

	if flags.Changed("lat") || flags.Changed("lon") {
		if !flags.Changed("lat") || !flags.Changed("lon") {
			return weather.Coordinates{}, errors.New("both --lat and --lon are required")
		}
		in := coordinateFlags{Lat: forecastOpts.lat, Lon: forecastOpts.lon}
		if verrs := utils.ValidateStruct(in); len(verrs) > 0 {
			return weather.Coordinates{}, fmt.Errorf("invalid coordinates: %s", utils.JoinMessages(verrs))
		}
		return weather.Coordinates{Lat: in.Lat, Lon: in.Lon}, nil
	}

	if forecastOpts.city == "" {
		return weather.Coordinates{}, errors.New("pass --lat and --lon, or --city")
	}

	resolver := geocode.NewResolver(cfg.Geocoder.APIKey, log.Logger)
	return resolver.Resolve(cmd.Context(), forecastOpts.city, forecastOpts.country)
}

func writeJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
