package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/cache"
	testutil "github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/services"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	tokens, err := services.NewUnsubscribeTokenService(db, services.WithTokenClock(clock.Now))
	require.NoError(t, err)
	keys, err := services.NewAPIKeyService(db, services.WithAPIKeyClock(clock.Now))
	require.NoError(t, err)
	store := cache.NewDatabaseStore(db)

	stale := testutil.MustCreateUser(t, db, "stale")
	fresh := testutil.MustCreateUser(t, db, "fresh")

	// Expired 40 days ago: beyond the 30 day retention.
	require.NoError(t, db.Create(&models.UnsubscribeToken{
		UserID:    stale.ID,
		Token:     "stale-token",
		ExpiresAt: clock.Now().AddDate(0, 0, -40),
	}).Error)
	// Expired yesterday: retained.
	require.NoError(t, db.Create(&models.UnsubscribeToken{
		UserID:    fresh.ID,
		Token:     "fresh-token",
		ExpiresAt: clock.Now().AddDate(0, 0, -1),
	}).Error)

	oldEvent := models.UnsubscribeEvent{UserID: stale.ID, Action: models.UnsubscribeActionUnsubscribe}
	require.NoError(t, db.Create(&oldEvent).Error)
	require.NoError(t, db.Model(&oldEvent).Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)
	recentEvent := models.UnsubscribeEvent{UserID: fresh.ID, Action: models.UnsubscribeActionResubscribe}
	require.NoError(t, db.Create(&recentEvent).Error)
	require.NoError(t, db.Model(&recentEvent).Update("created_at", clock.Now().AddDate(0, 0, -1)).Error)

	expiredAt := clock.Now().Add(-time.Hour)
	created, err := keys.Create(context.Background(), "old-worker", &expiredAt)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "ratelimit:1.2.3.4|/unsubscribe",
		Value:     []byte("3"),
		ExpiresAt: clock.Now().Add(-time.Minute),
	}).Error)

	c := NewCleaner(tokens, keys, store,
		WithNow(clock.Now),
		WithAuditRetentionDays(7),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var remainingTokens []models.UnsubscribeToken
	require.NoError(t, db.Find(&remainingTokens).Error)
	require.Len(t, remainingTokens, 1)
	require.Equal(t, fresh.ID, remainingTokens[0].UserID)

	var remainingEvents []models.UnsubscribeEvent
	require.NoError(t, db.Find(&remainingEvents).Error)
	require.Len(t, remainingEvents, 1)
	require.Equal(t, recentEvent.ID, remainingEvents[0].ID)

	var key models.APIKey
	require.NoError(t, db.First(&key, "id = ?", created.ID).Error)
	require.False(t, key.IsActive)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.Zero(t, cacheCount)
}

type failingTokens struct{}

func (failingTokens) CleanupExpired(context.Context, int) (int64, error) {
	return 0, errors.New("tokens table locked")
}

func (failingTokens) PruneEvents(context.Context, int) (int64, error) {
	return 0, errors.New("events table locked")
}

type countingKeys struct{ calls int }

func (k *countingKeys) DeactivateExpired(context.Context) (int64, error) {
	k.calls++
	return 0, nil
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{ExcludeDefaultGatherer: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	keys := &countingKeys{}
	c := NewCleaner(failingTokens{}, keys, nil)

	err = c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "token_cleanup: tokens table locked")
	require.Contains(t, err.Error(), "event_prune: events table locked")
	// A failing job does not stop the rest.
	require.Equal(t, 1, keys.calls)

	jobs := mod.Summary().Maintenance.Jobs
	byName := make(map[string]monitoring.MaintenanceJobSummary, len(jobs))
	for _, job := range jobs {
		byName[job.Job] = job
	}
	require.Equal(t, "failure", byName[JobTokenCleanup].LastStatus)
	require.Equal(t, uint64(1), byName[JobEventPrune].ConsecutiveFailures)
	require.Equal(t, "success", byName[JobAPIKeyExpiry].LastStatus)
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(failingTokens{}, nil, nil, WithSchedule("not a cron spec"))
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobsIsNoop(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
