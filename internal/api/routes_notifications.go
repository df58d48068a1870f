package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, notifications *handlers.NotificationHandler, prefs *handlers.PreferenceHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", notifications.List)
		group.GET("/unread-count", notifications.UnreadCount)
		group.POST("/read-all", notifications.MarkAllRead)
		group.POST("/:id/read", notifications.MarkRead)
		group.POST("/:id/unread", notifications.MarkUnread)
		group.DELETE("/:id", notifications.Delete)

		group.GET("/preferences", prefs.List)
		group.PUT("/preferences/:category", prefs.Update)
		group.PUT("/opt-out", prefs.OptOut)
	}
}
