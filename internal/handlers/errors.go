package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/internal/apperror"
)

// respondError maps the domain error taxonomy onto HTTP status codes in one
// place, so handlers never branch on error types themselves.
func respondError(c *gin.Context, err error) {
	var conflict *apperror.ConflictError
	var gatewayErr *apperror.GatewayError

	switch {
	case errors.Is(err, apperror.ErrEmptyReason),
		errors.Is(err, apperror.ErrNotEligible),
		errors.Is(err, apperror.ErrInvalidRefundAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, apperror.ErrOrderNotFound),
		errors.Is(err, apperror.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, apperror.ErrOpenRequestExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":         conflict.Error(),
			"currentStatus": conflict.CurrentStatus,
		})

	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     gatewayErr.Error(),
			"retryable": gatewayErr.Timeout,
		})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
