package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/services"
)

// AnalyticsHandler serves the aggregation endpoints
type AnalyticsHandler struct {
	analytics services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
	}
}

// Summary handles GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	summary, err := h.analytics.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Monthly handles GET /api/analytics/monthly
func (h *AnalyticsHandler) Monthly(c *gin.Context) {
	totals, err := h.analytics.Monthly(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// Categories handles GET /api/analytics/categories
func (h *AnalyticsHandler) Categories(c *gin.Context) {
	totals, err := h.analytics.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// Vendors handles GET /api/analytics/vendors
func (h *AnalyticsHandler) Vendors(c *gin.Context) {
	totals, err := h.analytics.Vendors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}
