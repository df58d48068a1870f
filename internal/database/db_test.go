package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
	require.NoError(t, Ping(db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateCreatesNotificationSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	for _, model := range []any{
		&models.User{},
		&models.Notification{},
		&models.NotificationPreference{},
		&models.UnsubscribeToken{},
		&models.UnsubscribeEvent{},
		&models.APIKey{},
	} {
		require.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}

func TestPreferenceUniquePerUserAndCategory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Username: "diver", Email: "diver@example.com"}
	require.NoError(t, db.WithContext(context.Background()).Create(&user).Error)

	first := models.DefaultPreference(user.ID, models.CategoryNewDives)
	require.NoError(t, db.Create(&first).Error)

	dup := models.DefaultPreference(user.ID, models.CategoryNewDives)
	require.ErrorIs(t, db.Create(&dup).Error, gorm.ErrDuplicatedKey)
}

func TestKeyedTablesAvoidReservedColumnNames(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.True(t, db.Migrator().HasColumn(&models.CacheEntry{}, "cache_key"))
	require.True(t, db.Migrator().HasColumn(&models.SystemSetting{}, "setting_key"))
	require.False(t, db.Migrator().HasColumn(&models.CacheEntry{}, "key"))
	require.False(t, db.Migrator().HasColumn(&models.SystemSetting{}, "key"))
}

func TestNilHandleIsRejected(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
	require.Error(t, Ping(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
