package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/services"
)

// AuditHandler serves the audit report endpoints
type AuditHandler struct {
	audit services.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit services.AuditService) *AuditHandler {
	return &AuditHandler{
		audit: audit,
	}
}

// Report handles GET /api/audit: flagged receipts grouped by flag kind
func (h *AuditHandler) Report(c *gin.Context) {
	report, err := h.audit.Report(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Recompute handles POST /api/audit/recompute: re-runs every audit check
// over the whole store
func (h *AuditHandler) Recompute(c *gin.Context) {
	changed, err := h.audit.RecomputeAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}
