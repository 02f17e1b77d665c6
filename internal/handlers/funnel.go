package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/commercetrack/attribution/internal/analytics"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/store"
)

// defaultFunnelWindow applies when the caller omits the window parameter.
const defaultFunnelWindow = 24 * time.Hour

type FunnelHandler struct {
	aggregator *analytics.Aggregator
	logger     logger.Logger
}

func NewFunnelHandler(aggregator *analytics.Aggregator, log logger.Logger) *FunnelHandler {
	return &FunnelHandler{
		aggregator: aggregator,
		logger:     log,
	}
}

// Compute returns the funnel snapshot for a page over a trailing window,
// e.g. ?page_id=home&window=168h.
func (h *FunnelHandler) Compute(c *gin.Context) {
	pageID := c.Query("page_id")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_id is required"})
		return
	}

	window := defaultFunnelWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration, e.g. 168h"})
			return
		}
		window = parsed
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	snapshot, err := h.aggregator.ComputeFunnel(c.Request.Context(), pageID, start, end)
	if err != nil {
		h.logger.Error("Funnel computation failed",
			logger.String("page_id", pageID),
			logger.Error(err),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to compute funnel"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
