package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/models"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
)

type unsubscribeFixture struct {
	db     *gorm.DB
	clock  *testClock
	tokens *UnsubscribeTokenService
	svc    *UnsubscribeService
	user   *models.User
	token  *models.UnsubscribeToken
}

func newUnsubscribeFixture(t *testing.T, opts ...UnsubscribeTokenOption) *unsubscribeFixture {
	t.Helper()

	db := openServiceDB(t)
	clock := newTestClock()
	opts = append([]UnsubscribeTokenOption{WithTokenClock(clock.Now)}, opts...)
	tokens, err := NewUnsubscribeTokenService(db, opts...)
	require.NoError(t, err)
	svc, err := NewUnsubscribeService(db, tokens)
	require.NoError(t, err)

	user := testutil.MustCreateUser(t, db, "mia")
	token, err := tokens.GetOrCreate(context.Background(), user.ID)
	require.NoError(t, err)

	return &unsubscribeFixture{db: db, clock: clock, tokens: tokens, svc: svc, user: user, token: token}
}

var testMeta = RequestMeta{IPAddress: "203.0.113.9", UserAgent: "mail-client"}

func TestUnsubscribeCategoryCreatesPreferenceLazily(t *testing.T) {
	f := newUnsubscribeFixture(t)
	ctx := context.Background()

	result, err := f.svc.UnsubscribeCategory(ctx, f.token.Token, models.CategoryNewDiveSites, testMeta)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, result.UserID)
	require.Equal(t, models.UnsubscribeActionUnsubscribe, result.Action)

	pref := loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDiveSites)
	require.False(t, pref.EnableEmail)
	require.True(t, pref.EnableWebsite)

	var stored models.UnsubscribeToken
	require.NoError(t, f.db.Take(&stored, "id = ?", f.token.ID).Error)
	require.NotNil(t, stored.LastUsedAt)

	var events []models.UnsubscribeEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Category)
	require.Equal(t, models.CategoryNewDiveSites, *events[0].Category)
	require.Equal(t, "203.0.113.9", events[0].IPAddress)
	require.Equal(t, f.token.ID, events[0].TokenID)
}

func TestUnsubscribeCategoryKeepsWebsiteSetting(t *testing.T) {
	f := newUnsubscribeFixture(t)
	setPreference(t, f.db, f.user.ID, models.CategoryNewDives, true, false, models.FrequencyDailyDigest)

	_, err := f.svc.UnsubscribeCategory(context.Background(), f.token.Token, models.CategoryNewDives, testMeta)
	require.NoError(t, err)

	pref := loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDives)
	require.False(t, pref.EnableEmail)
	require.False(t, pref.EnableWebsite)
	require.Equal(t, models.FrequencyDailyDigest, pref.Frequency)
}

func TestUnsubscribeRejectsInvalidTokensGenerically(t *testing.T) {
	f := newUnsubscribeFixture(t, WithTokenTTL(time.Hour))
	ctx := context.Background()

	_, err := f.svc.UnsubscribeCategory(ctx, "bogus", models.CategoryNewDives, testMeta)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	f.clock.Advance(2 * time.Hour)
	_, expiredErr := f.svc.UnsubscribeAll(ctx, f.token.Token, testMeta)
	require.ErrorIs(t, expiredErr, apperrors.ErrInvalidToken)
	require.Equal(t, err.Error(), expiredErr.Error())

	_, err = f.svc.Confirm(ctx, f.token.Token)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	var count int64
	require.NoError(t, f.db.Model(&models.UnsubscribeEvent{}).Count(&count).Error)
	require.Zero(t, count)
	require.False(t, reloadUser(t, f.db, f.user.ID).EmailNotificationsOptedOut)
}

func TestUnsubscribeRejectsUnknownCategory(t *testing.T) {
	f := newUnsubscribeFixture(t)

	_, err := f.svc.UnsubscribeCategory(context.Background(), f.token.Token, models.Category("bogus"), testMeta)
	require.ErrorIs(t, err, apperrors.ErrUnknownCategory)

	_, err = f.svc.UnsubscribeCategory(context.Background(), f.token.Token, models.CategoryAdminAlerts, testMeta)
	require.ErrorIs(t, err, apperrors.ErrUnknownCategory)
	_, err = f.svc.ResubscribeCategory(context.Background(), f.token.Token, models.CategoryAdminAlerts, testMeta)
	require.ErrorIs(t, err, apperrors.ErrUnknownCategory)

	var count int64
	require.NoError(t, f.db.Model(&models.NotificationPreference{}).Where("user_id = ?", f.user.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestGlobalUnsubscribeAndResubscribeRestoresSnapshot(t *testing.T) {
	f := newUnsubscribeFixture(t)
	ctx := context.Background()

	setPreference(t, f.db, f.user.ID, models.CategoryNewDives, true, true, models.FrequencyImmediate)
	setPreference(t, f.db, f.user.ID, models.CategoryNewDiveSites, false, true, models.FrequencyWeeklyDigest)
	setPreference(t, f.db, f.user.ID, models.CategoryOwnershipUpdates, true, false, models.FrequencyDailyDigest)

	before := map[models.Category]models.NotificationPreference{}
	for _, category := range []models.Category{models.CategoryNewDives, models.CategoryNewDiveSites, models.CategoryOwnershipUpdates} {
		before[category] = loadPreferenceRow(t, f.db, f.user.ID, category)
	}

	_, err := f.svc.UnsubscribeAll(ctx, f.token.Token, testMeta)
	require.NoError(t, err)

	user := reloadUser(t, f.db, f.user.ID)
	require.True(t, user.EmailNotificationsOptedOut)
	require.NotNil(t, user.EmailOptOutAt)
	for category := range before {
		require.False(t, loadPreferenceRow(t, f.db, f.user.ID, category).EnableEmail)
	}

	snapshot, ok, err := f.tokens.GetPreviousPreferences(ctx, f.token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snapshot, 3)

	// A second global unsubscribe must not overwrite the snapshot with the
	// all-disabled state.
	_, err = f.svc.UnsubscribeAll(ctx, f.token.Token, testMeta)
	require.NoError(t, err)

	result, err := f.svc.ResubscribeAll(ctx, f.token.Token, testMeta)
	require.NoError(t, err)
	require.True(t, result.Restored)

	user = reloadUser(t, f.db, f.user.ID)
	require.False(t, user.EmailNotificationsOptedOut)
	require.Nil(t, user.EmailOptOutAt)

	for category, want := range before {
		got := loadPreferenceRow(t, f.db, f.user.ID, category)
		require.Equal(t, want.EnableEmail, got.EnableEmail, "enable_email for %s", category)
		require.Equal(t, want.EnableWebsite, got.EnableWebsite, "enable_website for %s", category)
		require.Equal(t, want.Frequency, got.Frequency, "frequency for %s", category)
	}

	_, ok, err = f.tokens.GetPreviousPreferences(ctx, f.token)
	require.NoError(t, err)
	require.False(t, ok)

	var events []models.UnsubscribeEvent
	require.NoError(t, f.db.Order("id").Find(&events).Error)
	require.Len(t, events, 3)
	require.Nil(t, events[0].Category)
	require.Equal(t, models.UnsubscribeActionResubscribe, events[2].Action)
}

func TestGlobalResubscribeWithoutSnapshotEnablesAll(t *testing.T) {
	f := newUnsubscribeFixture(t)
	ctx := context.Background()

	setPreference(t, f.db, f.user.ID, models.CategoryNewDives, false, true, models.FrequencyImmediate)
	setPreference(t, f.db, f.user.ID, models.CategoryNewDiveTrips, false, true, models.FrequencyImmediate)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.user.ID).Update("email_notifications_opted_out", true).Error)

	result, err := f.svc.ResubscribeAll(ctx, f.token.Token, testMeta)
	require.NoError(t, err)
	require.False(t, result.Restored)

	require.True(t, loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDives).EnableEmail)
	require.True(t, loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDiveTrips).EnableEmail)
	require.False(t, reloadUser(t, f.db, f.user.ID).EmailNotificationsOptedOut)
}

func TestResubscribeCategoryIgnoresGlobalOptOut(t *testing.T) {
	f := newUnsubscribeFixture(t)
	ctx := context.Background()

	_, err := f.svc.UnsubscribeAll(ctx, f.token.Token, testMeta)
	require.NoError(t, err)

	_, err = f.svc.ResubscribeCategory(ctx, f.token.Token, models.CategoryNewDivingCenters, testMeta)
	require.NoError(t, err)

	pref := loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDivingCenters)
	require.True(t, pref.EnableEmail)
	require.True(t, pref.EnableWebsite)
	require.True(t, reloadUser(t, f.db, f.user.ID).EmailNotificationsOptedOut)
}

func TestConfirmReturnsUserEmailWithoutSideEffects(t *testing.T) {
	f := newUnsubscribeFixture(t)

	result, err := f.svc.Confirm(context.Background(), f.token.Token)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, f.user.Email, result.UserEmail)
	require.Equal(t, f.token.Token, result.Token)

	var stored models.UnsubscribeToken
	require.NoError(t, f.db.Take(&stored, "id = ?", f.token.ID).Error)
	require.Nil(t, stored.LastUsedAt)
}

func TestAuditFailureDoesNotFailUnsubscribe(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newUnsubscribeFixture(t, WithTokenLogger(zap.New(core)))

	require.NoError(t, f.db.Migrator().DropTable(&models.UnsubscribeEvent{}))

	_, err := f.svc.UnsubscribeCategory(context.Background(), f.token.Token, models.CategoryNewDives, testMeta)
	require.NoError(t, err)
	require.False(t, loadPreferenceRow(t, f.db, f.user.ID, models.CategoryNewDives).EnableEmail)
	require.Equal(t, 1, logs.FilterMessage("failed to record unsubscribe event").Len())
}
