package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/metrics"
)

// RequestMeta identifies the client behind an unauthenticated token request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// UnsubscribeResult reports the outcome of a token-driven preference change.
type UnsubscribeResult struct {
	UserID   string           `json:"user_id"`
	Category *models.Category `json:"category,omitempty"`
	Action   string           `json:"action"`
	Restored bool             `json:"restored,omitempty"`
}

// ConfirmResult is the read-only payload behind the confirmation page.
type ConfirmResult struct {
	Success   bool   `json:"success"`
	UserEmail string `json:"user_email"`
	Token     string `json:"token"`
}

// UnsubscribeService applies unsubscribe and resubscribe requests carried by
// email-link tokens.
type UnsubscribeService struct {
	db     *gorm.DB
	tokens *UnsubscribeTokenService
	now    func() time.Time
}

// NewUnsubscribeService constructs the service.
func NewUnsubscribeService(db *gorm.DB, tokens *UnsubscribeTokenService) (*UnsubscribeService, error) {
	if db == nil {
		return nil, errors.New("unsubscribe service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("unsubscribe service: token service is required")
	}
	return &UnsubscribeService{db: db, tokens: tokens, now: tokens.now}, nil
}

// UnsubscribeCategory disables email for one category, creating the
// preference lazily with website delivery left on.
func (s *UnsubscribeService) UnsubscribeCategory(ctx context.Context, value string, category models.Category, meta RequestMeta) (*UnsubscribeResult, error) {
	ctx = ensureContext(ctx)
	category, err := parseUserCategory(category)
	if err != nil {
		return nil, err
	}

	var token *models.UnsubscribeToken
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if token, err = s.tokens.validate(tx, value); err != nil {
			return err
		}
		if _, err := upsertPreference(tx, token.UserID, category, func(pref *models.NotificationPreference) {
			pref.EnableEmail = false
		}); err != nil {
			return fmt.Errorf("disable category email: %w", err)
		}
		return s.tokens.updateUsage(tx, token)
	})
	if err != nil {
		return nil, wrapUnsubscribeError("unsubscribe category", err)
	}

	_ = s.tokens.LogEvent(ctx, LogEventInput{
		UserID:    token.UserID,
		Category:  &category,
		Action:    models.UnsubscribeActionUnsubscribe,
		TokenID:   token.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	metrics.UnsubscribeActions.WithLabelValues("category", models.UnsubscribeActionUnsubscribe).Inc()

	return &UnsubscribeResult{UserID: token.UserID, Category: &category, Action: models.UnsubscribeActionUnsubscribe}, nil
}

// UnsubscribeAll snapshots every preference, disables email on all of them
// and sets the global opt-out. A repeated global unsubscribe keeps the first
// snapshot.
func (s *UnsubscribeService) UnsubscribeAll(ctx context.Context, value string, meta RequestMeta) (*UnsubscribeResult, error) {
	ctx = ensureContext(ctx)

	var token *models.UnsubscribeToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if token, err = s.tokens.validate(tx, value); err != nil {
			return err
		}
		user, err := loadUser(tx, token.UserID)
		if err != nil {
			return err
		}

		var prefs []models.NotificationPreference
		if err := tx.Where("user_id = ?", user.ID).Find(&prefs).Error; err != nil {
			return fmt.Errorf("load preferences: %w", err)
		}

		_, hasSnapshot, err := token.Snapshot()
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if !(user.EmailNotificationsOptedOut && hasSnapshot) {
			snapshot := make(models.PreferenceSnapshot, len(prefs))
			for _, pref := range prefs {
				snapshot[pref.Category] = models.PreferenceState{
					EnableEmail:   pref.EnableEmail,
					EnableWebsite: pref.EnableWebsite,
					Frequency:     pref.Frequency,
				}
			}
			if err := s.tokens.storePreviousPreferences(tx, token, snapshot); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.NotificationPreference{}).
			Where("user_id = ?", user.ID).
			Update("enable_email", false).Error; err != nil {
			return fmt.Errorf("disable all email: %w", err)
		}
		if err := setUserOptOut(tx, user, true, s.now()); err != nil {
			return fmt.Errorf("set opt-out: %w", err)
		}
		return s.tokens.updateUsage(tx, token)
	})
	if err != nil {
		return nil, wrapUnsubscribeError("unsubscribe all", err)
	}

	_ = s.tokens.LogEvent(ctx, LogEventInput{
		UserID:    token.UserID,
		Action:    models.UnsubscribeActionUnsubscribe,
		TokenID:   token.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	metrics.UnsubscribeActions.WithLabelValues("global", models.UnsubscribeActionUnsubscribe).Inc()

	return &UnsubscribeResult{UserID: token.UserID, Action: models.UnsubscribeActionUnsubscribe}, nil
}

// ResubscribeCategory re-enables email for one category. The global opt-out
// is not consulted.
func (s *UnsubscribeService) ResubscribeCategory(ctx context.Context, value string, category models.Category, meta RequestMeta) (*UnsubscribeResult, error) {
	ctx = ensureContext(ctx)
	category, err := parseUserCategory(category)
	if err != nil {
		return nil, err
	}

	var token *models.UnsubscribeToken
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if token, err = s.tokens.validate(tx, value); err != nil {
			return err
		}
		if _, err := upsertPreference(tx, token.UserID, category, func(pref *models.NotificationPreference) {
			pref.EnableEmail = true
		}); err != nil {
			return fmt.Errorf("enable category email: %w", err)
		}
		return s.tokens.updateUsage(tx, token)
	})
	if err != nil {
		return nil, wrapUnsubscribeError("resubscribe category", err)
	}

	_ = s.tokens.LogEvent(ctx, LogEventInput{
		UserID:    token.UserID,
		Category:  &category,
		Action:    models.UnsubscribeActionResubscribe,
		TokenID:   token.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	metrics.UnsubscribeActions.WithLabelValues("category", models.UnsubscribeActionResubscribe).Inc()

	return &UnsubscribeResult{UserID: token.UserID, Category: &category, Action: models.UnsubscribeActionResubscribe}, nil
}

// ResubscribeAll clears the global opt-out and restores the stored snapshot.
// Without a snapshot every existing preference gets email re-enabled.
func (s *UnsubscribeService) ResubscribeAll(ctx context.Context, value string, meta RequestMeta) (*UnsubscribeResult, error) {
	ctx = ensureContext(ctx)

	var (
		token    *models.UnsubscribeToken
		restored bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if token, err = s.tokens.validate(tx, value); err != nil {
			return err
		}
		user, err := loadUser(tx, token.UserID)
		if err != nil {
			return err
		}
		if err := setUserOptOut(tx, user, false, s.now()); err != nil {
			return fmt.Errorf("clear opt-out: %w", err)
		}

		snapshot, ok, err := token.Snapshot()
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if ok {
			for category, state := range snapshot {
				if _, err := upsertPreference(tx, user.ID, category, func(pref *models.NotificationPreference) {
					pref.EnableEmail = state.EnableEmail
					pref.EnableWebsite = state.EnableWebsite
					if state.Frequency != "" {
						pref.Frequency = state.Frequency
					}
				}); err != nil {
					return fmt.Errorf("restore %s: %w", category, err)
				}
			}
			restored = true
		} else if err := tx.Model(&models.NotificationPreference{}).
			Where("user_id = ?", user.ID).
			Update("enable_email", true).Error; err != nil {
			return fmt.Errorf("enable all email: %w", err)
		}

		if err := s.tokens.storePreviousPreferences(tx, token, nil); err != nil {
			return err
		}
		return s.tokens.updateUsage(tx, token)
	})
	if err != nil {
		return nil, wrapUnsubscribeError("resubscribe all", err)
	}

	_ = s.tokens.LogEvent(ctx, LogEventInput{
		UserID:    token.UserID,
		Action:    models.UnsubscribeActionResubscribe,
		TokenID:   token.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	metrics.UnsubscribeActions.WithLabelValues("global", models.UnsubscribeActionResubscribe).Inc()

	return &UnsubscribeResult{UserID: token.UserID, Action: models.UnsubscribeActionResubscribe, Restored: restored}, nil
}

// Confirm validates the token without side effects and returns the payload for
// the confirmation page.
func (s *UnsubscribeService) Confirm(ctx context.Context, value string) (*ConfirmResult, error) {
	ctx = ensureContext(ctx)

	token, err := s.tokens.Validate(ctx, value)
	if err != nil {
		return nil, err
	}
	user, err := loadUser(s.db.WithContext(ctx), token.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	return &ConfirmResult{Success: true, UserEmail: user.Email, Token: token.Token}, nil
}

func wrapUnsubscribeError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("unsubscribe service: %s: %w", op, err)
}

// parseUserCategory accepts only categories users manage themselves; admin
// alerts cannot be unsubscribed from with a token.
func parseUserCategory(category models.Category) (models.Category, error) {
	parsed, ok := models.ParseCategory(string(category))
	if !ok || !parsed.IsUserPreference() {
		return models.CategoryUnknown, apperrors.ErrUnknownCategory
	}
	return parsed, nil
}
