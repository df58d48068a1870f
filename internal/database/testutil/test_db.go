package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/database"
	"github.com/charlesng35/notifyd/internal/models"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// MustOpenTestDB opens a private in-memory SQLite database for tests, applying
// optional migrations. The returned connection is automatically closed via
// t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// SQLite allows a single writer; one connection serialises concurrent
	// callers instead of surfacing "database is locked".
	db, err := database.Open(database.Config{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// MustCreateUser inserts a user with the supplied username.
func MustCreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(user).Error)
	return user
}
