package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/core"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{core.ErrMalformedMessage, http.StatusBadRequest, "Malformed message"},
	{core.ErrInvalidInput, http.StatusBadRequest, "Invalid request"},
	{core.ErrNonceInvalidOrExpired, http.StatusUnauthorized, "Invalid or expired nonce"},
	{core.ErrDomainMismatch, http.StatusUnauthorized, "Domain mismatch"},
	{core.ErrInvalidSignature, http.StatusUnauthorized, "Invalid signature"},
	{core.ErrMessageExpired, http.StatusUnauthorized, "Message expired"},
	{core.ErrUnauthenticated, http.StatusUnauthorized, "Not authenticated"},
	{core.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{core.ErrNotFound, http.StatusNotFound, "Coupon not found"},
	{core.ErrConflict, http.StatusConflict, "Coupon already sold"},
	{core.ErrCouponSold, http.StatusGone, "Coupon already sold"},
	{core.ErrUpstreamVerification, http.StatusBadGateway, "Signature verifier unavailable"},
}

// statusFor maps a service error to an HTTP status and a client-safe message
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
