package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
)

// JWTSecretSetting stores the signing secret generated on first start.
const JWTSecretSetting = "auth.jwt.secret"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "setting_key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("setting_key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// ResolveJWTSecret returns the persisted signing secret. When none is stored
// yet, candidate is saved and returned, so tokens survive restarts even when
// the secret was generated at runtime.
func ResolveJWTSecret(ctx context.Context, db *gorm.DB, candidate string) (string, error) {
	current, err := GetSystemSetting(ctx, db, JWTSecretSetting)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(current) != "" {
		return current, nil
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", fmt.Errorf("system settings: jwt secret is empty")
	}
	if err := UpsertSystemSetting(ctx, db, JWTSecretSetting, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
