package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerMonitoringRoutes(internal *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if internal == nil || handler == nil {
		return
	}

	group := internal.Group("/monitoring")
	group.GET("/summary", handler.Summary)
}
