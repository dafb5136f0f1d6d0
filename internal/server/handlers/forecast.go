package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/internal/aggregator"
	"github.com/vzahanych/smart-meteo/internal/geocode"
	"github.com/vzahanych/smart-meteo/internal/server/utils"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"go.uber.org/zap"
)

const forecastCacheControl = "public, max-age=300, s-maxage=600"

type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

type Geocoder interface {
	Enabled() bool
	Resolve(ctx context.Context, city, country string) (weather.Coordinates, error)
}

type ForecastHandler struct {
	forecaster Forecaster
	geocoder   Geocoder
	logger     *zap.Logger
}

// NewForecastHandler builds the handler. geocoder may be nil.
func NewForecastHandler(forecaster Forecaster, geocoder Geocoder, logger *zap.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecaster: forecaster,
		geocoder:   geocoder,
		logger:     logger,
	}
}

func (h *ForecastHandler) GetForecast(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := logger.ForContext(ctx, h.logger)

	var req ForecastRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		reqLogger.Warn("Invalid request parameters", zap.Error(err))
		respondError(c, http.StatusBadRequest, "Invalid request parameters", "INVALID_PARAMS", err.Error())
		return
	}
	if verrs := utils.ValidateStruct(req); len(verrs) > 0 {
		respondError(c, http.StatusBadRequest, "Invalid request parameters", "INVALID_PARAMS", utils.JoinMessages(verrs))
		return
	}

	coords, ok := h.resolveLocation(ctx, c, req)
	if !ok {
		return
	}

	reqLogger.Info("Processing forecast request",
		zap.Float64("lat", coords.Lat),
		zap.Float64("lon", coords.Lon))

	forecast, err := h.forecaster.Forecast(ctx, coords.Lat, coords.Lon)
	if err != nil {
		reqLogger.Error("Failed to build forecast", zap.Error(err))
		code := "AGGREGATION_ERROR"
		if !errors.Is(err, aggregator.ErrAllSourcesFailed) {
			code = "INTERNAL_ERROR"
		}
		respondError(c, http.StatusInternalServerError, "Failed to fetch weather data", code, err.Error())
		return
	}

	reqLogger.Info("Forecast request completed successfully",
		zap.Strings("sources_used", forecast.SourcesUsed))

	c.Header("Cache-Control", forecastCacheControl)
	c.JSON(http.StatusOK, forecast)
}

func (h *ForecastHandler) resolveLocation(ctx context.Context, c *gin.Context, req ForecastRequest) (weather.Coordinates, bool) {
	if req.Lat != nil && req.Lon != nil {
		return weather.Coordinates{Lat: *req.Lat, Lon: *req.Lon}, true
	}

	if strings.TrimSpace(req.City) == "" {
		respondError(c, http.StatusBadRequest, "Missing lat/lon parameters", "INVALID_PARAMS",
			"provide both lat and lon, or a city")
		return weather.Coordinates{}, false
	}

	if h.geocoder == nil || !h.geocoder.Enabled() {
		respondError(c, http.StatusBadRequest, "City lookup is not available", "GEOCODER_DISABLED",
			"configure a geocoder api key or pass lat and lon")
		return weather.Coordinates{}, false
	}

	coords, err := h.geocoder.Resolve(ctx, req.City, req.Country)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Location not found", "LOCATION_NOT_FOUND", err.Error())
		} else {
			respondError(c, http.StatusBadGateway, "Geocoding failed", "GEOCODER_ERROR", err.Error())
		}
		return weather.Coordinates{}, false
	}

	return coords, true
}
