package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/services"
	"bookkeeper-api/internal/vector"
)

// StorePinger reports liveness of the relational store
type StorePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /api/health
type HealthHandler struct {
	store     StorePinger
	index     vector.Index
	completer services.Completer
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store StorePinger, index vector.Index, completer services.Completer, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		index:     index,
		completer: completer,
		version:   version,
	}
}

// Health reports liveness of the store, the vector index and the completion
// service. The response is 200 even when the completion service is offline;
// its state is in the body.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	check := models.HealthCheck{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Services:  map[string]string{},
	}

	if err := h.store.Ping(ctx); err != nil {
		check.Services["store"] = "unhealthy: " + err.Error()
		check.Status = "degraded"
	} else {
		check.Services["store"] = "healthy"
	}

	if _, err := h.index.Count(ctx); err != nil {
		check.Services["vectorIndex"] = "unhealthy: " + err.Error()
		check.Status = "degraded"
	} else {
		check.Services["vectorIndex"] = "healthy"
	}

	if h.completer.Healthy(ctx) {
		check.Services["completionService"] = "healthy"
	} else {
		check.Services["completionService"] = "offline"
	}

	c.JSON(http.StatusOK, check)
}
