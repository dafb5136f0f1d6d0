package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/smart-meteo/internal/registry"
	"github.com/vzahanych/smart-meteo/internal/server/utils"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"go.uber.org/zap"
)

type SourceRegistry interface {
	List() []registry.Source
	SetActive(id string, active bool) (registry.Source, error)
}

// ForecastCache is the cached forecast layer. Toggling a source clears it so
// the next forecast reflects the new active set.
type ForecastCache interface {
	Clear()
	Stats() map[string]interface{}
}

type SourcesHandler struct {
	registry SourceRegistry
	cache    ForecastCache
	logger   *zap.Logger
}

// NewSourcesHandler builds the handler. cache may be nil.
func NewSourcesHandler(reg SourceRegistry, cache ForecastCache, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{
		registry: reg,
		cache:    cache,
		logger:   logger,
	}
}

func (h *SourcesHandler) ListSources(c *gin.Context) {
	c.JSON(http.StatusOK, SourcesResponse{Sources: h.registry.List()})
}

func (h *SourcesHandler) UpdateSource(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := logger.ForContext(ctx, h.logger)

	id := c.Param("id")

	var req UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		details := `field "active" must be a boolean`
		if err != nil {
			details += ": " + err.Error()
		}
		respondError(c, http.StatusBadRequest, "Invalid request body", "INVALID_PARAMS", details)
		return
	}

	src, err := h.registry.SetActive(id, *req.Active)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(c, http.StatusNotFound, "Source not found", "SOURCE_NOT_FOUND", err.Error())
		return
	case errors.Is(err, registry.ErrValidation):
		respondError(c, http.StatusBadRequest, "Source update rejected", "SOURCE_VALIDATION", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "Source update failed", "INTERNAL_ERROR", err.Error())
		return
	}

	if h.cache != nil {
		h.cache.Clear()
	}

	reqLogger.Info("Source updated",
		zap.String("source", src.ID),
		zap.Bool("active", src.Active))

	c.JSON(http.StatusOK, SourceResponse{Source: src})
}
