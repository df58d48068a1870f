package checks

import (
	"context"
	"time"

	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/queue"
)

const defaultQueueTimeout = 2 * time.Second

// Queue returns a readiness probe for the email task queue. A disabled queue
// reports up because delivery falls back to direct SMTP, while an unreachable
// one degrades the instance for the same reason.
func Queue(client queue.Client, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("queue", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil || queue.IsDisabled(client) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "queue disabled; direct email delivery",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultQueueTimeout))
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
