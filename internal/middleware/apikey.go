package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// APIKeyHeader carries the worker credential on internal callbacks.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator verifies raw worker keys.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) error
}

// APIKey guards worker-only routes. Every failure renders the same 401 body so
// callers cannot tell a revoked key from an unknown one.
func APIKey(auth APIKeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(APIKeyHeader))
		if raw == "" || auth == nil {
			response.Error(c, errors.ErrInvalidAPIKey)
			c.Abort()
			return
		}

		if err := auth.Authenticate(c.Request.Context(), raw); err != nil {
			response.Error(c, errors.ErrInvalidAPIKey.WithInternal(err))
			c.Abort()
			return
		}

		c.Next()
	}
}
