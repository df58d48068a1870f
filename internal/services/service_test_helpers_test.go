package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/queue"
	"github.com/charlesng35/notifyd/pkg/mail"
)

type fakeQueue struct {
	mu    sync.Mutex
	err   error
	block bool
	// acceptLate stores the task only after the submit deadline has expired.
	acceptLate bool
	tasks      []queue.EmailTask
}

func (f *fakeQueue) Enqueue(ctx context.Context, task queue.EmailTask) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.acceptLate {
		<-ctx.Done()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeQueue) Ping(context.Context) error { return f.err }

func (f *fakeQueue) Tasks() []queue.EmailTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.EmailTask(nil), f.tasks...)
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []EmailContext
}

func (f *fakeSender) Send(_ context.Context, email EmailContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeSender) Sent() []EmailContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EmailContext(nil), f.sent...)
}

type recordingMailer struct {
	err      error
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setPreference(t *testing.T, db *gorm.DB, userID string, category models.Category, enableEmail, enableWebsite bool, frequency models.Frequency) {
	t.Helper()
	pref := models.NotificationPreference{
		UserID:        userID,
		Category:      category,
		EnableEmail:   enableEmail,
		EnableWebsite: enableWebsite,
		Frequency:     frequency,
	}
	require.NoError(t, db.Create(&pref).Error)
}

func loadPreferenceRow(t *testing.T, db *gorm.DB, userID string, category models.Category) models.NotificationPreference {
	t.Helper()
	var pref models.NotificationPreference
	require.NoError(t, db.Where("user_id = ? AND category = ?", userID, category).Take(&pref).Error)
	return pref
}

func reloadUser(t *testing.T, db *gorm.DB, userID string) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, db.Take(&user, "id = ?", userID).Error)
	return user
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}
