package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// severity orders statuses so the worst result wins when aggregating.
func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HTTPStatus maps the report to the status code served by the health routes.
// Degraded dependencies keep the instance in rotation.
func (r HealthReport) HTTPStatus() int {
	if r.Status == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Check encapsulates a single dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a health check with the provided name and function.
// A nil function yields a probe that always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager coordinates liveness and readiness probes. Checks may be
// registered while requests are being served.
type HealthManager struct {
	mu        sync.RWMutex
	liveness  []Check
	readiness []Check
	now       func() time.Time
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{now: time.Now}
}

// RegisterLiveness appends a liveness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.liveness = append(m.liveness, check)
	m.mu.Unlock()
}

// RegisterReadiness appends a readiness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.readiness = append(m.readiness, check)
	m.mu.Unlock()
}

// EvaluateLiveness executes all configured liveness checks.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.liveness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// EvaluateReadiness executes all configured readiness checks.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readiness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// evaluate runs the checks concurrently and reports them in registration order.
func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	status := StatusUp
	for _, result := range results {
		if result.Status.severity() > status.severity() {
			status = result.Status
		}
	}

	return HealthReport{
		Success:   status == StatusUp,
		Status:    status,
		Checks:    results,
		CheckedAt: m.now().UTC(),
	}
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

func panicDetails(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("panic recovered: %v", v)
	}
}

// ResultFromError converts a probe error into a result. Timeouts and
// cancellations degrade rather than fail the component.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}

	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
