package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/internal/server/utils"
	"github.com/vzahanych/smart-meteo/internal/store"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"go.uber.org/zap"
)

type HistoryStore interface {
	Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]store.Snapshot, error)
}

type HistoryHandler struct {
	store  HistoryStore
	logger *zap.Logger
}

func NewHistoryHandler(s HistoryStore, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  s,
		logger: logger,
	}
}

func (h *HistoryHandler) GetHistory(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := logger.ForContext(ctx, h.logger)

	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request parameters", "INVALID_PARAMS", err.Error())
		return
	}
	if verrs := utils.ValidateStruct(req); len(verrs) > 0 {
		respondError(c, http.StatusBadRequest, "Invalid request parameters", "INVALID_PARAMS", utils.JoinMessages(verrs))
		return
	}
	if req.Lat == nil || req.Lon == nil {
		respondError(c, http.StatusBadRequest, "Missing lat/lon parameters", "INVALID_PARAMS", "lat and lon are required")
		return
	}

	snaps, err := h.store.Range(ctx, *req.Lat, *req.Lon, req.From, req.To)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "No history for location", "HISTORY_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		reqLogger.Error("Failed to read forecast history", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to read history", "STORAGE_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Location:  weather.Coordinates{Lat: *req.Lat, Lon: *req.Lon},
		Snapshots: snaps,
	})
}
