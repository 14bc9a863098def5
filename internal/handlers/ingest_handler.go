package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/services"
)

// IngestHandler serves structured receipt ingestion requests
type IngestHandler struct {
	ingest services.IngestService
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingest services.IngestService) *IngestHandler {
	return &IngestHandler{
		ingest: ingest,
	}
}

// Ingest handles POST /api/ingest and its compatibility alias
// POST /api/ingest/db
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}

	response, err := h.ingest.Ingest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
