package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerUnsubscribeRoutes(group *gin.RouterGroup, handler *handlers.UnsubscribeHandler) {
	group.GET("", handler.UnsubscribeCategory)
	group.GET("/all", handler.UnsubscribeAll)
	group.POST("/resubscribe", handler.Resubscribe)
	group.GET("/confirm", handler.Confirm)
}
