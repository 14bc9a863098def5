package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
)

// statusForKind maps an error kind to its HTTP status.
// DUPLICATE / 409 is reserved for a strict-insert mode no endpoint enables yet.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindDuplicate:
		return http.StatusConflict
	case models.ErrKindExtractionFailed:
		return http.StatusUnprocessableEntity
	case models.ErrKindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// classifyError resolves an error from the service layer into an error kind
func classifyError(err error) models.ErrorKind {
	switch {
	case err == nil:
		return models.ErrKindInternal
	case repositories.IsValidation(err):
		return models.ErrKindValidation
	case repositories.IsNotFound(err):
		return models.ErrKindNotFound
	case repositories.IsDuplicate(err):
		return models.ErrKindDuplicate
	case errors.Is(err, ai.ErrTimeout):
		return models.ErrKindUpstreamTimeout
	case errors.Is(err, ai.ErrUnavailable):
		return models.ErrKindUpstreamUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrKindUpstreamTimeout
	default:
		var extractionErr *ai.ExtractionError
		if errors.As(err, &extractionErr) {
			return models.ErrKindExtractionFailed
		}
		var repoErr *repositories.RepositoryError
		if errors.As(err, &repoErr) {
			return models.ErrKindStoreFailure
		}
		return models.ErrKindInternal
	}
}

// respondError writes the error envelope with the mapped status
func respondError(c *gin.Context, err error) {
	kind := classifyError(err)
	c.JSON(statusForKind(kind), models.NewErrorEnvelope(kind, err.Error()))
}

// respondErrorKind writes the envelope for an explicit kind and message
func respondErrorKind(c *gin.Context, kind models.ErrorKind, message string) {
	c.JSON(statusForKind(kind), models.NewErrorEnvelope(kind, message))
}
