package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/api/response"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/storage"
)

// handleServiceError maps service errors to HTTP responses and reports
// whether a response was written.
func handleServiceError(c *gin.Context, logger logging.Logger, err error, operation string) bool {
	if err == nil {
		return false
	}

	var validationErr models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(c, "validation failed", validationErr.Error())
	case errors.Is(err, storage.ErrScheduleNotFound):
		response.NotFound(c, "schedule not found")
	case errors.Is(err, storage.ErrEventNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, models.ErrInvalidTransition):
		response.Conflict(c, "invalid status transition", err.Error())
	default:
		logger.Error(operation+" failed",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.InternalServerError(c, "internal server error")
	}
	return true
}
