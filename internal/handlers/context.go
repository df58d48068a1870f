package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/middleware"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// requestContext returns the request context, or a background context when
// the handler is driven without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// ownerID returns the authenticated user behind an owner API call. It renders
// a 401 and returns false when the auth middleware did not run.
func ownerID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// requestMeta captures the caller details recorded on unsubscribe events.
func requestMeta(c *gin.Context) services.RequestMeta {
	if c == nil || c.Request == nil {
		return services.RequestMeta{}
	}
	return services.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
