package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// MonitoringHandler surfaces delivery and maintenance counters for operators.
type MonitoringHandler struct {
	module             *monitoring.Module
	prometheusEnabled  bool
	prometheusEndpoint string
}

// NewMonitoringHandler constructs a monitoring handler. Returns nil when no module is configured.
func NewMonitoringHandler(module *monitoring.Module, prometheusEnabled bool, endpoint string) *MonitoringHandler {
	if module == nil {
		return nil
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	return &MonitoringHandler{
		module:             module,
		prometheusEnabled:  prometheusEnabled,
		prometheusEndpoint: endpoint,
	}
}

// Summary returns aggregated monitoring statistics and configuration hints.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	if h == nil || h.module == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"summary": h.module.Summary(),
		"prometheus": gin.H{
			"enabled":  h.prometheusEnabled,
			"endpoint": h.prometheusEndpoint,
		},
	})
}
