package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/pkg/crypto"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/logger"
)

const (
	defaultUnsubscribeTokenTTL   = 30 * 24 * time.Hour
	defaultUnsubscribeTokenBytes = 32
)

// LogEventInput describes one audit record of a token-driven change.
type LogEventInput struct {
	UserID    string
	Category  *models.Category
	Action    string
	TokenID   string
	IPAddress string
	UserAgent string
}

// UnsubscribeTokenOption customises the UnsubscribeTokenService.
type UnsubscribeTokenOption func(*UnsubscribeTokenService)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) UnsubscribeTokenOption {
	return func(s *UnsubscribeTokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenSize adjusts the number of random bytes in generated tokens.
func WithTokenSize(size int) UnsubscribeTokenOption {
	return func(s *UnsubscribeTokenService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithTokenClock injects a custom time source.
func WithTokenClock(clock func() time.Time) UnsubscribeTokenOption {
	return func(s *UnsubscribeTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenLogger overrides the logger used for swallowed audit failures.
func WithTokenLogger(log *zap.Logger) UnsubscribeTokenOption {
	return func(s *UnsubscribeTokenService) {
		if log != nil {
			s.log = log
		}
	}
}

// UnsubscribeTokenService manages the single reusable unsubscribe token of
// each user.
//
// States per user move none -> valid -> expired -> valid. Only GetOrCreate
// moves between them; Validate is a pure lookup so unauthenticated callers can
// never mint credentials.
type UnsubscribeTokenService struct {
	db          *gorm.DB
	ttl         time.Duration
	tokenLength int
	now         func() time.Time
	log         *zap.Logger
}

// NewUnsubscribeTokenService constructs the token service.
func NewUnsubscribeTokenService(db *gorm.DB, opts ...UnsubscribeTokenOption) (*UnsubscribeTokenService, error) {
	if db == nil {
		return nil, errors.New("unsubscribe token: db is required")
	}
	svc := &UnsubscribeTokenService{
		db:          db,
		ttl:         defaultUnsubscribeTokenTTL,
		tokenLength: defaultUnsubscribeTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("unsubscribe"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// GetOrCreate returns the user's unexpired token, replacing an expired one.
// The delete and insert share a transaction so concurrent validation never
// observes the gap. Losing an insert race to another caller returns the
// winner's token.
func (s *UnsubscribeTokenService) GetOrCreate(ctx context.Context, userID string) (*models.UnsubscribeToken, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("unsubscribe token: user id is required")
	}

	now := s.now().UTC()
	var result *models.UnsubscribeToken

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UnsubscribeToken
		err := tx.Where("user_id = ?", userID).Take(&existing).Error
		switch {
		case err == nil:
			if !existing.IsExpired(now) {
				result = &existing
				return nil
			}
			if err := tx.Delete(&models.UnsubscribeToken{}, "id = ?", existing.ID).Error; err != nil {
				return fmt.Errorf("delete expired token: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("load token: %w", err)
		}

		value, err := crypto.GenerateToken(s.tokenLength)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		token := models.UnsubscribeToken{
			UserID:    userID,
			Token:     value,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := tx.Create(&token).Error; err != nil {
			return err
		}
		result = &token
		return nil
	})
	if err == nil {
		return result, nil
	}

	if isUniqueConstraintError(err) {
		return s.takeRaceWinner(ctx, userID, now, err)
	}
	return nil, fmt.Errorf("unsubscribe token: get or create: %w", err)
}

// takeRaceWinner re-reads the token committed by the caller that won the
// insert race. insertErr is reported when no unexpired winner is visible.
func (s *UnsubscribeTokenService) takeRaceWinner(ctx context.Context, userID string, now time.Time, insertErr error) (*models.UnsubscribeToken, error) {
	var winner models.UnsubscribeToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Take(&winner).Error
	if err != nil {
		return nil, fmt.Errorf("unsubscribe token: get or create: %w", insertErr)
	}
	s.log.Debug("lost unsubscribe token insert race; using winner", zap.String("user_id", userID))
	return &winner, nil
}

// Validate returns the token row only when it exists and has not expired.
// Unknown, expired and empty values all yield ErrInvalidToken.
func (s *UnsubscribeTokenService) Validate(ctx context.Context, value string) (*models.UnsubscribeToken, error) {
	return s.validate(s.db.WithContext(ensureContext(ctx)), value)
}

func (s *UnsubscribeTokenService) validate(db *gorm.DB, value string) (*models.UnsubscribeToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, apperrors.ErrInvalidToken
	}

	var token models.UnsubscribeToken
	err := db.Where("token = ? AND expires_at > ?", value, s.now().UTC()).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("unsubscribe token: validate: %w", err)
	}
	return &token, nil
}

// UpdateUsage stamps last_used_at on the token.
func (s *UnsubscribeTokenService) UpdateUsage(ctx context.Context, token *models.UnsubscribeToken) error {
	return s.updateUsage(s.db.WithContext(ensureContext(ctx)), token)
}

func (s *UnsubscribeTokenService) updateUsage(db *gorm.DB, token *models.UnsubscribeToken) error {
	if token == nil {
		return errors.New("unsubscribe token: token is required")
	}
	now := s.now().UTC()
	if err := db.Model(&models.UnsubscribeToken{}).
		Where("id = ?", token.ID).
		Update("last_used_at", now).Error; err != nil {
		return fmt.Errorf("unsubscribe token: update usage: %w", err)
	}
	token.LastUsedAt = &now
	return nil
}

// StorePreviousPreferences writes the snapshot taken before a global opt-out.
// A nil snapshot clears the field.
func (s *UnsubscribeTokenService) StorePreviousPreferences(ctx context.Context, token *models.UnsubscribeToken, snapshot models.PreferenceSnapshot) error {
	return s.storePreviousPreferences(s.db.WithContext(ensureContext(ctx)), token, snapshot)
}

func (s *UnsubscribeTokenService) storePreviousPreferences(db *gorm.DB, token *models.UnsubscribeToken, snapshot models.PreferenceSnapshot) error {
	if token == nil {
		return errors.New("unsubscribe token: token is required")
	}

	var payload datatypes.JSON
	if snapshot != nil {
		encoded, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("unsubscribe token: encode snapshot: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	if err := db.Model(&models.UnsubscribeToken{}).
		Where("id = ?", token.ID).
		Update("previous_preferences", payload).Error; err != nil {
		return fmt.Errorf("unsubscribe token: store snapshot: %w", err)
	}
	token.PreviousPreferences = payload
	return nil
}

// GetPreviousPreferences reads the stored snapshot. The boolean is false when
// none has been stored.
func (s *UnsubscribeTokenService) GetPreviousPreferences(ctx context.Context, token *models.UnsubscribeToken) (models.PreferenceSnapshot, bool, error) {
	ctx = ensureContext(ctx)
	if token == nil {
		return nil, false, errors.New("unsubscribe token: token is required")
	}

	var stored models.UnsubscribeToken
	if err := s.db.WithContext(ctx).Select("id", "previous_preferences").Take(&stored, "id = ?", token.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.ErrInvalidToken
		}
		return nil, false, fmt.Errorf("unsubscribe token: load snapshot: %w", err)
	}
	return stored.Snapshot()
}

// LogEvent appends an audit record. Callers that must not fail on audit
// problems discard the returned error explicitly.
func (s *UnsubscribeTokenService) LogEvent(ctx context.Context, input LogEventInput) error {
	ctx = ensureContext(ctx)

	action := strings.TrimSpace(input.Action)
	if action == "" {
		action = models.UnsubscribeActionUnsubscribe
	}
	event := models.UnsubscribeEvent{
		UserID:    strings.TrimSpace(input.UserID),
		Category:  input.Category,
		Action:    action,
		TokenID:   input.TokenID,
		IPAddress: strings.TrimSpace(input.IPAddress),
		UserAgent: strings.TrimSpace(input.UserAgent),
		CreatedAt: s.now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		scope := "global"
		if input.Category != nil {
			scope = string(*input.Category)
		}
		s.log.Warn("failed to record unsubscribe event",
			zap.String("user_id", event.UserID),
			zap.String("scope", scope),
			zap.String("action", action),
			zap.Error(err),
		)
		return fmt.Errorf("unsubscribe token: log event: %w", err)
	}
	return nil
}

// CleanupExpired deletes tokens whose expiry is older than the cutoff.
func (s *UnsubscribeTokenService) CleanupExpired(ctx context.Context, olderThanDays int) (int64, error) {
	ctx = ensureContext(ctx)
	if olderThanDays < 0 {
		olderThanDays = 0
	}
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)

	result := s.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.UnsubscribeToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("unsubscribe token: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PruneEvents deletes audit records created before the retention window.
func (s *UnsubscribeTokenService) PruneEvents(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.UnsubscribeEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("unsubscribe token: prune events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
