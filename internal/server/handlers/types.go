package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/internal/registry"
	"github.com/vzahanych/smart-meteo/internal/server/utils"
	"github.com/vzahanych/smart-meteo/internal/store"
	"github.com/vzahanych/smart-meteo/internal/weather"
)

// ForecastRequest selects a location either by coordinates or by city.
type ForecastRequest struct {
	Lat     *float64 `form:"lat" json:"lat" validate:"omitempty,latitude"`
	Lon     *float64 `form:"lon" json:"lon" validate:"omitempty,longitude"`
	City    string   `form:"city" json:"city" validate:"omitempty,max=100"`
	Country string   `form:"country" json:"country" validate:"omitempty,max=100"`
}

type HistoryRequest struct {
	Lat  *float64  `form:"lat" json:"lat" validate:"omitempty,latitude"`
	Lon  *float64  `form:"lon" json:"lon" validate:"omitempty,longitude"`
	From time.Time `form:"from" json:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" json:"to" time_format:"2006-01-02T15:04:05Z07:00" validate:"omitempty,gtefield=From"`
}

type UpdateSourceRequest struct {
	Active *bool `json:"active"`
}

type SourcesResponse struct {
	Sources []registry.Source `json:"sources"`
}

type SourceResponse struct {
	Source registry.Source `json:"source"`
}

type HistoryResponse struct {
	Location  weather.Coordinates `json:"location"`
	Snapshots []store.Snapshot    `json:"snapshots"`
}

// ErrorResponse represents an error response with validation
type ErrorResponse struct {
	Error     string `json:"error" validate:"required,min=1,max=500"`
	Code      string `json:"code,omitempty" validate:"omitempty,min=1,max=50"`
	Details   string `json:"details,omitempty" validate:"omitempty,max=1000"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse represents health check response with validation
type HealthResponse struct {
	Status    string                 `json:"status" validate:"required,oneof=ok degraded unavailable"`
	Uptime    string                 `json:"uptime" validate:"required"`
	Timestamp string                 `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Cache     map[string]interface{} `json:"cache,omitempty"`
}

func respondError(c *gin.Context, status int, message, code, details string) {
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: utils.GetRequestIDFromGinContext(c),
	})
}
