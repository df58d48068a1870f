package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/pkg/crypto"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/metrics"
)

const (
	apiKeyBytes     = 32
	apiKeyPrefixLen = 8
	apiKeyPrefix    = "nfd_"
)

// ErrLegacyKeyMismatch is returned by the legacy shared-secret check when the
// presented key does not match.
var ErrLegacyKeyMismatch = errors.New("api key: legacy secret mismatch")

// CreatedAPIKey is returned once at creation time; the raw key is never
// retrievable afterwards.
type CreatedAPIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	Prefix    string     `json:"prefix"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// APIKeyOption customises the APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithLegacyAPIKey enables the deprecated shared-secret fallback.
func WithLegacyAPIKey(secret string) APIKeyOption {
	return func(s *APIKeyService) {
		s.legacyKey = strings.TrimSpace(secret)
	}
}

// WithAPIKeyClock injects a custom time source.
func WithAPIKeyClock(clock func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithAPIKeyLogger overrides the service logger.
func WithAPIKeyLogger(log *zap.Logger) APIKeyOption {
	return func(s *APIKeyService) {
		if log != nil {
			s.log = log
		}
	}
}

// APIKeyService authenticates the email worker against stored key hashes.
type APIKeyService struct {
	db        *gorm.DB
	legacyKey string
	now       func() time.Time
	log       *zap.Logger
}

// NewAPIKeyService constructs the service.
func NewAPIKeyService(db *gorm.DB, opts ...APIKeyOption) (*APIKeyService, error) {
	if db == nil {
		return nil, errors.New("api key service: db is required")
	}
	svc := &APIKeyService{db: db, now: time.Now, log: logger.WithModule("auth")}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Authenticate accepts an active, unexpired stored key. When that fails and a
// legacy shared secret is configured, it is compared as a deprecated fallback.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) error {
	ctx = ensureContext(ctx)
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		metrics.APIKeyAuth.WithLabelValues("key", "missing").Inc()
		return apperrors.ErrInvalidAPIKey
	}

	now := s.now().UTC()
	var key models.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", crypto.HashToken(rawKey), true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Take(&key).Error
	switch {
	case err == nil:
		if touchErr := s.db.WithContext(ctx).
			Model(&models.APIKey{}).
			Where("id = ?", key.ID).
			Update("last_used_at", now).Error; touchErr != nil {
			s.log.Warn("failed to record api key usage", zap.String("key_id", key.ID), zap.Error(touchErr))
		}
		metrics.APIKeyAuth.WithLabelValues("key", "success").Inc()
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("api key service: lookup key: %w", err)
	}

	if legacyErr := s.checkLegacy(rawKey); legacyErr != nil {
		metrics.APIKeyAuth.WithLabelValues("key", "failure").Inc()
		return apperrors.ErrInvalidAPIKey
	}
	s.log.Warn("worker authenticated with deprecated legacy API key; issue a stored key instead")
	metrics.APIKeyAuth.WithLabelValues("legacy", "success").Inc()
	return nil
}

func (s *APIKeyService) checkLegacy(rawKey string) error {
	if s.legacyKey == "" {
		return ErrLegacyKeyMismatch
	}
	if !crypto.ConstantTimeEqual(rawKey, s.legacyKey) {
		return ErrLegacyKeyMismatch
	}
	return nil
}

// Create issues a new key. The returned raw key must be shown to the operator
// immediately.
func (s *APIKeyService) Create(ctx context.Context, name string, expiresAt *time.Time) (*CreatedAPIKey, error) {
	ctx = ensureContext(ctx)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("api key name is required")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, apperrors.NewBadRequest("api key expiry must be in the future")
	}
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}

	secret, err := crypto.GenerateToken(apiKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("api key service: generate key: %w", err)
	}
	raw := apiKeyPrefix + secret

	record := models.APIKey{
		Name:      name,
		KeyHash:   crypto.HashToken(raw),
		Prefix:    raw[:len(apiKeyPrefix)+apiKeyPrefixLen],
		IsActive:  true,
		ExpiresAt: expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("api key service: create key: %w", err)
	}

	return &CreatedAPIKey{
		ID:        record.ID,
		Name:      record.Name,
		Key:       raw,
		Prefix:    record.Prefix,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Revoke deactivates a key.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("api key service: revoke key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeactivateExpired flips is_active off for keys past their expiry.
func (s *APIKeyService) DeactivateExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, s.now().UTC()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("api key service: deactivate expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
