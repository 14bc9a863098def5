package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/services"
	"bookkeeper-api/internal/storage"
)

// Uploaded images larger than this are rejected
const maxImageBytes = 20 * 1024 * 1024

// ReceiptExtractor turns receipt images into structured records
type ReceiptExtractor interface {
	Extract(ctx context.Context, image []byte, mime string) (*models.Receipt, models.ExtractionConfidence, []string, error)
}

// extractRequest is the payload for POST /api/extract
type extractRequest struct {
	Image string `json:"image" binding:"required"`
	Mime  string `json:"mime" binding:"required"`
}

// ExtractHandler serves image extraction requests
type ExtractHandler struct {
	extractor ReceiptExtractor
	ingest    services.IngestService
	images    storage.ImageStore
}

// NewExtractHandler creates a new extract handler. A nil image store
// disables archiving of uploaded originals.
func NewExtractHandler(extractor ReceiptExtractor, ingest services.IngestService, images storage.ImageStore) *ExtractHandler {
	return &ExtractHandler{
		extractor: extractor,
		ingest:    ingest,
		images:    images,
	}
}

// Extract handles POST /api/extract: extraction without persistence
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		respondErrorKind(c, models.ErrKindValidation, "image is not valid base64")
		return
	}
	if len(image) == 0 || len(image) > maxImageBytes {
		respondErrorKind(c, models.ErrKindValidation, "image is empty or exceeds the size limit")
		return
	}

	receipt, confidence, warnings, err := h.extractor.Extract(c.Request.Context(), image, req.Mime)
	if err != nil {
		h.respondExtractError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ExtractResponse{
		Receipt:    receipt,
		Confidence: confidence,
		Warnings:   warnings,
	})
}

// ExtractUpload handles POST /api/extract/upload: multipart extraction that
// also writes the result to the store
func (h *ExtractHandler) ExtractUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondErrorKind(c, models.ErrKindValidation, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		respondErrorKind(c, models.ErrKindValidation, "failed to read upload")
		return
	}
	if len(image) == 0 || len(image) > maxImageBytes {
		respondErrorKind(c, models.ErrKindValidation, "upload is empty or exceeds the size limit")
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}

	receipt, confidence, warnings, err := h.extractor.Extract(c.Request.Context(), image, mime)
	if err != nil {
		h.respondExtractError(c, err)
		return
	}

	h.archiveImage(c, receipt, image, mime)

	result, err := h.ingest.IngestReceipt(c.Request.Context(), receipt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"receipt":    result.Receipt,
		"confidence": confidence,
		"warnings":   warnings,
		"indexed":    result.Indexed,
	})
}

// archiveImage stores the original upload and records the key on the
// receipt. Archiving is best effort; a failing store never blocks ingest.
func (h *ExtractHandler) archiveImage(c *gin.Context, receipt *models.Receipt, image []byte, mime string) {
	if h.images == nil {
		return
	}

	ext := ".jpg"
	if mime == "image/png" {
		ext = ".png"
	}
	key := fmt.Sprintf("%s/%x%s", time.Now().UTC().Format("2006/01"), sha256.Sum256(image), ext)

	if err := h.images.Save(c.Request.Context(), key, image); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to archive receipt image")
		return
	}

	receipt.ImageURL = &key
}

// respondExtractError maps extraction failures to 422 with the debugging
// payload (image checksum and raw model output); upstream failures keep
// their own kinds.
func (h *ExtractHandler) respondExtractError(c *gin.Context, err error) {
	var extractionErr *ai.ExtractionError
	if errors.As(err, &extractionErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": models.APIError{
				Kind:    models.ErrKindExtractionFailed,
				Message: extractionErr.Reason,
			},
			"checksum":  extractionErr.Checksum,
			"rawOutput": extractionErr.RawOutput,
		})
		return
	}
	respondError(c, err)
}
