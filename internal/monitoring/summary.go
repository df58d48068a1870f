package monitoring

import "time"

// Summary surfaces aggregated delivery and maintenance data for operators.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Deliveries  DeliverySummary    `json:"deliveries"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

// DeliverySummary counts delivery outcomes for user-preference categories.
// Admin alerts are tallied apart and never enter Rate.
type DeliverySummary struct {
	Queued      uint64  `json:"queued"`
	Direct      uint64  `json:"direct"`
	Fallback    uint64  `json:"fallback"`
	Failed      uint64  `json:"failed"`
	Suppressed  uint64  `json:"suppressed"`
	Rate        float64 `json:"rate"`
	AdminAlerts uint64  `json:"admin_alerts"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}
