package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	queued     atomic.Uint64
	direct     atomic.Uint64
	fallback   atomic.Uint64
	failed     atomic.Uint64
	suppressed atomic.Uint64
	admin      atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) recordDelivery(audience, outcome string) {
	if audience == "admin" {
		s.admin.Add(1)
		return
	}
	switch outcome {
	case "queued":
		s.queued.Add(1)
	case "direct":
		s.direct.Add(1)
	case "fallback":
		s.fallback.Add(1)
	case "failed":
		s.failed.Add(1)
	case "suppressed":
		s.suppressed.Add(1)
	}
}

// deliveryRate is handed-off over attempted. Suppressed emails were never
// attempted.
func (s *statStore) deliveryRate() float64 {
	delivered := s.queued.Load() + s.direct.Load() + s.fallback.Load()
	attempted := delivered + s.failed.Load()
	if attempted == 0 {
		return 0
	}
	return float64(delivered) / float64(attempted)
}

func (s *statStore) summary() Summary {
	return Summary{
		GeneratedAt: time.Now().UTC(),
		Deliveries: DeliverySummary{
			Queued:      s.queued.Load(),
			Direct:      s.direct.Load(),
			Fallback:    s.fallback.Load(),
			Failed:      s.failed.Load(),
			Suppressed:  s.suppressed.Load(),
			Rate:        s.deliveryRate(),
			AdminAlerts: s.admin.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		summaries = append(summaries, value.(*maintenanceStats).snapshot(key.(string)))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	if value, ok := s.maintenance.Load(job); ok {
		return value.(*maintenanceStats)
	}
	actual, _ := s.maintenance.LoadOrStore(job, &maintenanceStats{})
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus          atomic.Value // string
	lastError           atomic.Value // string
	lastRun             atomic.Int64 // unix nano
	lastDuration        atomic.Int64 // nanoseconds
	consecutiveFailures atomic.Uint64
	totalRuns           atomic.Uint64
	lastSuccessfulRun   atomic.Int64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	summary := MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		TotalRuns:           m.totalRuns.Load(),
	}
	if ts := m.lastRun.Load(); ts > 0 {
		summary.LastRunAt = time.Unix(0, ts).UTC()
	}
	if ts := m.lastSuccessfulRun.Load(); ts > 0 {
		summary.LastSuccessAt = time.Unix(0, ts).UTC()
	}
	return summary
}

func (m *maintenanceStats) record(result, message string, duration time.Duration, now time.Time) {
	if duration < 0 {
		duration = 0
	}
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	if result == "success" {
		m.consecutiveFailures.Store(0)
		m.lastSuccessfulRun.Store(now.UnixNano())
		return
	}
	m.consecutiveFailures.Add(1)
}
