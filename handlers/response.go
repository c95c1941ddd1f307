package handlers

import (
	"errors"
	"net/http"

	"lifedash-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service errors onto the error envelope
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyValues),
		errors.Is(err, service.ErrEmptyJournalEntry),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidRole):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrOnboardingRequired):
		respondError(c, http.StatusConflict, "ONBOARDING_REQUIRED", "Complete onboarding before using your dashboard.")
	case errors.Is(err, service.ErrActionNotFound):
		respondError(c, http.StatusNotFound, "ACTION_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrExportNotFound):
		respondError(c, http.StatusNotFound, "EXPORT_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrNothingToExport):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrFlowFailed):
		respondError(c, http.StatusBadGateway, "FLOW_FAILED", "The AI service could not complete the request. Please try again.")
	case errors.Is(err, service.ErrPersistenceFailed):
		respondError(c, http.StatusServiceUnavailable, "PERSISTENCE_FAILED", "Your changes could not be saved. Please try again.")
	case errors.Is(err, service.ErrServiceClosed):
		respondError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// userIDParam parses :userId, writing the error response when it is invalid
func userIDParam(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}
