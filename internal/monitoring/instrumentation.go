package monitoring

import (
	"strings"
	"time"

	"github.com/charlesng35/notifyd/pkg/metrics"
)

// RecordEmailDelivery counts one delivery decision. The Prometheus counter is
// always updated; the summary only when a module is installed.
func RecordEmailDelivery(audience, outcome string) {
	audience = normalizeLabel(audience)
	outcome = normalizeLabel(outcome)
	metrics.EmailDeliveries.WithLabelValues(audience, outcome).Inc()

	module := CurrentModule()
	if module == nil {
		return
	}
	module.stats.recordDelivery(audience, outcome)
	module.metrics.deliveryRate.Set(module.stats.deliveryRate())
}

// ObserveQueueSubmit records the latency of one queue submission.
func ObserveQueueSubmit(result string, duration time.Duration) {
	observeDuration(metrics.QueueSubmitLatency.WithLabelValues(normalizeLabel(result)), duration)
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	metrics.MaintenanceRuns.WithLabelValues(jobID, result).Inc()

	module := CurrentModule()
	if module == nil {
		return
	}
	now := time.Now()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastSuccess.WithLabelValues(jobID).Set(float64(now.Unix()))
	}
	module.stats.maintenanceEntry(jobID).record(result, strings.TrimSpace(message), duration, now)
}

// Snapshot returns the summary of the process-wide module.
func Snapshot() Summary {
	return CurrentModule().Summary()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
