package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/monitoring"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler constructs a health handler. A nil manager disables the probes.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Status returns the overall readiness without per-check details.
func (h *HealthHandler) Status(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(report.HTTPStatus(), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": report.CheckedAt,
	})
}

// Live reports whether the process is running.
func (h *HealthHandler) Live(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	writeHealthReport(c, h.manager.EvaluateLiveness(requestContext(c)))
}

// Ready probes the database and the queue.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	writeHealthReport(c, h.manager.EvaluateReadiness(requestContext(c)))
}

func disabledHealth(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(report.HTTPStatus(), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": report.CheckedAt,
	})
}
