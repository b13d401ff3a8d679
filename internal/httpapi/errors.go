package httpapi

import (
	"errors"
	"net/http"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/payments"
	"audit-portal/internal/quoting"
	"audit-portal/internal/reporting"
	"audit-portal/internal/storage"
	"audit-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "internal error, try again"

// writeError maps domain errors onto HTTP responses. Unknown errors are logged
// and reported as a generic 500 so store details never leak.
func writeError(c *gin.Context, err error) {
	if ih, ok := consultation.IsInsufficientHours(err); ok {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient_hours",
			"required":  ih.Required,
			"available": ih.Available,
		})
		return
	}

	switch {
	case errors.Is(err, consultation.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, consultation.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "invalid transition"})
	case errors.Is(err, consultation.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, quoting.ErrInvalidQuoteInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid quote input"})
	case errors.Is(err, storage.ErrTooLarge):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmpty):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported file"})
	case errors.Is(err, consultation.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidCheckout),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	case errors.Is(err, payments.ErrGatewayNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payments unavailable"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
