package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/handlers"
)

func registerHealthRoutes(r gin.IRouter, handler *handlers.HealthHandler) {
	r.GET("/health", handler.Status)
	r.GET("/health/live", handler.Live)
	r.GET("/health/ready", handler.Ready)
}
