package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultSchedule      = "@daily"
	defaultCacheSchedule = "@hourly"
)

// Job names reported to monitoring.
const (
	JobTokenCleanup = "token_cleanup"
	JobEventPrune   = "event_prune"
	JobAPIKeyExpiry = "api_key_expiry"
	JobCachePurge   = "cache_purge"
)

// TokenStore removes stale unsubscribe tokens and audit events.
type TokenStore interface {
	CleanupExpired(ctx context.Context, olderThanDays int) (int64, error)
	PruneEvents(ctx context.Context, retentionDays int) (int64, error)
}

// KeyStore deactivates worker API keys past their expiry.
type KeyStore interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// CacheStore drops expired rate-limit counters.
type CacheStore interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: expired unsubscribe tokens,
// aged unsubscribe events, expired worker keys and stale cache rows.
type Cleaner struct {
	tokens TokenStore
	keys   KeyStore
	cache  CacheStore
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	tokenRetention int
	auditRetention int
	schedule       string
	cacheSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetentionDays keeps expired tokens this many days before deletion.
func WithTokenRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.tokenRetention = days
		}
	}
}

// WithAuditRetentionDays adjusts how long unsubscribe events are retained.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.auditRetention = days
		}
	}
}

// WithSchedule overrides the cron specification for token, event and key jobs.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding cleanup job being skipped.
func NewCleaner(tokens TokenStore, keys KeyStore, cache CacheStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:         tokens,
		keys:           keys,
		cache:          cache,
		now:            time.Now,
		tokenRetention: defaultRetentionDays,
		auditRetention: defaultRetentionDays,
		schedule:       defaultSchedule,
		cacheSchedule:  defaultCacheSchedule,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.tokens != nil {
		jobs = append(jobs,
			job{name: JobTokenCleanup, spec: c.schedule, run: func(ctx context.Context) (int64, error) {
				return c.tokens.CleanupExpired(ctx, c.tokenRetention)
			}},
			job{name: JobEventPrune, spec: c.schedule, run: func(ctx context.Context) (int64, error) {
				return c.tokens.PruneEvents(ctx, c.auditRetention)
			}},
		)
	}
	if c.keys != nil {
		jobs = append(jobs, job{name: JobAPIKeyExpiry, spec: c.schedule, run: c.keys.DeactivateExpired})
	}
	if c.cache != nil {
		jobs = append(jobs, job{name: JobCachePurge, spec: c.cacheSchedule, run: func(ctx context.Context) (int64, error) {
			return c.cache.PurgeExpired(ctx, c.now())
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		if _, err := c.cron.AddFunc(j.spec, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used at
// startup, during graceful shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		monitoring.RecordMaintenanceRun(j.name, "failure", err.Error(), duration)
		return fmt.Errorf("%s: %w", j.name, err)
	}

	if removed > 0 {
		c.log.Info("maintenance job completed",
			zap.String("job", j.name),
			zap.Int64("affected", removed),
			zap.Duration("duration", duration),
		)
	}
	monitoring.RecordMaintenanceRun(j.name, "success", "", duration)
	return nil
}
