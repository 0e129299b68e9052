// Package httpapi is the HTTP surface of the lead intake service: vendor
// webhooks, the claim endpoint, notification reads, and operational endpoints.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
}

// respondError maps application errors onto HTTP status codes and writes the
// uniform error body. Unrecognized errors become 500 without leaking detail.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case apperrors.IsBadRequestError(err) || apperrors.IsValidationError(err):
		status = http.StatusBadRequest
		message = err.Error()
	case apperrors.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
		message = "unauthorized"
	case apperrors.IsNotFoundError(err):
		status = http.StatusNotFound
		message = "resource not found"
	case apperrors.IsAlreadyClaimedError(err):
		status = http.StatusConflict
		message = "lead already claimed by another firm"
	case apperrors.IsQuotaExceededError(err):
		status = http.StatusForbidden
		message = "monthly lead quota exceeded"
	case errors.Is(err, apperrors.ErrSubscriptionInactive):
		status = http.StatusForbidden
		message = "subscription is not active"
	case apperrors.IsDuplicateError(err):
		status = http.StatusConflict
		message = "duplicate resource"
	case apperrors.IsTranscriptNotReadyError(err):
		status = http.StatusConflict
		message = "transcript is not available yet"
	case errors.Is(err, apperrors.ErrUpstream):
		status = http.StatusBadGateway
		message = "upstream vendor error"
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody{Error: message})
}
