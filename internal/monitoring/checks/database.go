package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe for the notification store. The
// connection must answer a ping and the notifications table must exist; an
// unmigrated schema fails readiness because every API call would error.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		if !db.WithContext(probeCtx).Migrator().HasTable(&models.Notification{}) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "notifications table missing; migrations not applied",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
