package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/service"
)

const (
	cookieNonce   = "siwe_nonce"
	cookieSession = "auth_token"

	headerAuthSignature = "x-auth-sig"
	headerAuthMessage   = "x-auth-msg"
	headerAuthAddress   = "x-auth-address"

	ctxUserAddress = "userAddress"
)

// credentialsFrom collects the session cookie and signed headers of a request
func credentialsFrom(c *gin.Context) service.Credentials {
	creds := service.Credentials{
		Signature: c.GetHeader(headerAuthSignature),
		Address:   c.GetHeader(headerAuthAddress),
	}

	if token, err := c.Cookie(cookieSession); err == nil {
		creds.SessionToken = token
	}

	// Clients send the message through encodeURIComponent
	if raw := c.GetHeader(headerAuthMessage); raw != "" {
		if msg, err := url.PathUnescape(raw); err == nil {
			creds.Message = msg
		}
	}

	return creds
}

// AuthMiddleware rejects requests without a valid session or signed headers.
// The authenticated address is stored under "userAddress".
func AuthMiddleware(authenticator service.Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address, err := authenticator.Authenticate(c.Request.Context(), credentialsFrom(c))
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.Set(ctxUserAddress, address)
		c.Next()
	}
}

func userAddress(c *gin.Context) string {
	return c.GetString(ctxUserAddress)
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
