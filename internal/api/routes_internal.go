package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerInternalRoutes(internal *gin.RouterGroup, handler *handlers.InternalNotificationHandler) {
	group := internal.Group("/notifications")
	{
		group.POST("", handler.Create)
		group.GET("/:id", handler.Detail)
		group.PUT("/:id/mark-email-sent", handler.MarkEmailSent)
	}
}
