package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/services"
	"bookkeeper-api/internal/storage"
)

// ReceiptHandler serves receipt listing and maintenance requests
type ReceiptHandler struct {
	store    repositories.ReceiptRepository
	ingest   services.IngestService
	images   storage.ImageStore
	currency string
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(store repositories.ReceiptRepository, ingest services.IngestService, images storage.ImageStore, currency string) *ReceiptHandler {
	return &ReceiptHandler{
		store:    store,
		ingest:   ingest,
		images:   images,
		currency: currency,
	}
}

// ListReceipts handles GET /api/receipts with the filters vendor, category,
// startDate, endDate and receiptId. A receiptId returns that single receipt.
func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	if rawID := c.Query("receiptId"); rawID != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			respondErrorKind(c, models.ErrKindValidation, fmt.Sprintf("invalid receiptId %q", rawID))
			return
		}
		receipt, err := h.store.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, []models.Receipt{*receipt})
		return
	}

	filters := &models.ReceiptFilters{
		Vendor:   c.Query("vendor"),
		Category: c.Query("category"),
	}

	if raw := c.Query("startDate"); raw != "" {
		t, err := models.ParseReceiptDate(raw)
		if err != nil {
			respondErrorKind(c, models.ErrKindValidation, fmt.Sprintf("invalid startDate %q", raw))
			return
		}
		filters.StartDate = &t
	}
	if raw := c.Query("endDate"); raw != "" {
		t, err := models.ParseReceiptDate(raw)
		if err != nil {
			respondErrorKind(c, models.ErrKindValidation, fmt.Sprintf("invalid endDate %q", raw))
			return
		}
		filters.EndDate = &t
	}

	receipts, err := h.store.List(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	c.JSON(http.StatusOK, receipts)
}

// GetReceipt handles GET /api/receipts/:id
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	receipt, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// GetReceiptImage handles GET /api/receipts/:id/image, serving the archived
// original the receipt was extracted from
func (h *ReceiptHandler) GetReceiptImage(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	receipt, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.images == nil || receipt.ImageURL == nil {
		respondErrorKind(c, models.ErrKindNotFound, fmt.Sprintf("receipt %d has no archived image", id))
		return
	}

	data, mime, err := h.images.Load(c.Request.Context(), *receipt.ImageURL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondErrorKind(c, models.ErrKindNotFound, fmt.Sprintf("image for receipt %d is gone", id))
			return
		}
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, mime, data)
}

// UpdateReceipt handles PUT /api/receipts/:id as a full replacement with
// re-audit and re-index
func (h *ReceiptHandler) UpdateReceipt(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}

	receipt, err := req.ToReceipt(h.currency)
	if err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}
	receipt.ID = id

	updated, err := h.ingest.UpdateReceipt(c.Request.Context(), receipt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteReceipt handles DELETE /api/receipts/:id
func (h *ReceiptHandler) DeleteReceipt(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	receipt, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.ingest.DeleteReceipt(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	// Best effort; the receipt is gone either way
	if h.images != nil && receipt.ImageURL != nil {
		if err := h.images.Delete(c.Request.Context(), *receipt.ImageURL); err != nil {
			logrus.WithError(err).WithField("key", *receipt.ImageURL).Warn("Failed to delete archived image")
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// parseIDParam reads the :id path parameter, writing the error response itself
func parseIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondErrorKind(c, models.ErrKindValidation, fmt.Sprintf("invalid receipt ID %q", raw))
		return 0, false
	}
	return id, true
}
