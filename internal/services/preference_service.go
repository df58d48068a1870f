package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
)

// Decision is the outcome of preference resolution for one (user, category).
type Decision struct {
	Website       bool `json:"website"`
	EmailEligible bool `json:"email_eligible"`
}

// PreferenceDTO is the API view of a category preference. Persisted is false
// when the values are defaults for a row that does not exist yet.
type PreferenceDTO struct {
	Category      models.Category  `json:"category"`
	EnableWebsite bool             `json:"enable_website"`
	EnableEmail   bool             `json:"enable_email"`
	Frequency     models.Frequency `json:"frequency"`
	AreaFilter    json.RawMessage  `json:"area_filter,omitempty"`
	Persisted     bool             `json:"persisted"`
}

// UpdatePreferenceInput carries a partial preference update. Nil fields are
// left unchanged.
type UpdatePreferenceInput struct {
	EnableWebsite *bool
	EnableEmail   *bool
	Frequency     *string
	AreaFilter    json.RawMessage
}

// PreferenceOption customises the PreferenceService.
type PreferenceOption func(*PreferenceService)

// WithPreferenceClock injects a custom time source.
func WithPreferenceClock(clock func() time.Time) PreferenceOption {
	return func(s *PreferenceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// PreferenceService resolves and stores per-category notification preferences
// and the user-level global opt-out.
type PreferenceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB, opts ...PreferenceOption) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	svc := &PreferenceService{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// ShouldNotify resolves delivery for user and category. Missing rows fall back
// to website=true, email=false; the global opt-out silently masks email.
// Admin alerts always email unless the user opted out globally.
func (s *PreferenceService) ShouldNotify(ctx context.Context, user *models.User, category models.Category) (Decision, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return Decision{}, errors.New("preference service: user is required")
	}

	// Categories users cannot manage, such as admin alerts, have no row; only
	// the global opt-out can suppress their email.
	if !category.IsUserPreference() {
		return Decision{Website: true, EmailEligible: !user.EmailNotificationsOptedOut}, nil
	}

	pref, _, err := loadPreference(s.db.WithContext(ctx), user.ID, category)
	if err != nil {
		return Decision{}, fmt.Errorf("preference service: load preference: %w", err)
	}

	return Decision{
		Website:       pref.EnableWebsite,
		EmailEligible: pref.EnableEmail && !user.EmailNotificationsOptedOut,
	}, nil
}

// Get returns the effective preference for one category.
func (s *PreferenceService) Get(ctx context.Context, userID string, category models.Category) (PreferenceDTO, error) {
	ctx = ensureContext(ctx)
	if _, ok := models.ParseCategory(string(category)); !ok {
		return PreferenceDTO{}, apperrors.ErrUnknownCategory
	}

	pref, exists, err := loadPreference(s.db.WithContext(ctx), userID, category)
	if err != nil {
		return PreferenceDTO{}, fmt.Errorf("preference service: load preference: %w", err)
	}
	return mapPreference(pref, exists), nil
}

// ListForUser returns every user-managed category with defaults filled in for
// categories that have no row yet.
func (s *PreferenceService) ListForUser(ctx context.Context, userID string) ([]PreferenceDTO, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("preference service: user id is required")
	}

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("preference service: list preferences: %w", err)
	}

	byCategory := make(map[models.Category]models.NotificationPreference, len(rows))
	for _, row := range rows {
		byCategory[row.Category] = row
	}

	categories := models.UserCategories()
	out := make([]PreferenceDTO, 0, len(categories))
	for _, category := range categories {
		if row, ok := byCategory[category]; ok {
			out = append(out, mapPreference(row, true))
			continue
		}
		out = append(out, mapPreference(models.DefaultPreference(userID, category), false))
	}
	return out, nil
}

// Update upserts a category preference. Enabling email while the user is
// globally opted out fails with ErrEmailOptedOut.
func (s *PreferenceService) Update(ctx context.Context, userID string, category models.Category, input UpdatePreferenceInput) (PreferenceDTO, error) {
	ctx = ensureContext(ctx)
	if _, ok := models.ParseCategory(string(category)); !ok {
		return PreferenceDTO{}, apperrors.ErrUnknownCategory
	}

	var frequency models.Frequency
	if input.Frequency != nil {
		parsed, ok := models.ParseFrequency(*input.Frequency)
		if !ok {
			return PreferenceDTO{}, apperrors.NewBadRequest("frequency must be one of immediate, daily_digest, weekly_digest")
		}
		frequency = parsed
	}
	if len(input.AreaFilter) > 0 && !json.Valid(input.AreaFilter) {
		return PreferenceDTO{}, apperrors.NewBadRequest("area_filter must be valid JSON")
	}

	var saved models.NotificationPreference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if input.EnableEmail != nil && *input.EnableEmail && user.EmailNotificationsOptedOut {
			return apperrors.ErrEmailOptedOut
		}

		saved, err = upsertPreference(tx, user.ID, category, func(pref *models.NotificationPreference) {
			if input.EnableWebsite != nil {
				pref.EnableWebsite = *input.EnableWebsite
			}
			if input.EnableEmail != nil {
				pref.EnableEmail = *input.EnableEmail
			}
			if frequency != "" {
				pref.Frequency = frequency
			}
			if len(input.AreaFilter) > 0 {
				pref.AreaFilter = datatypes.JSON(input.AreaFilter)
			}
		})
		return err
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return PreferenceDTO{}, err
		}
		return PreferenceDTO{}, fmt.Errorf("preference service: update preference: %w", err)
	}
	return mapPreference(saved, true), nil
}

// SetGlobalOptOut toggles the global kill switch. Clearing it does not
// re-enable any category.
func (s *PreferenceService) SetGlobalOptOut(ctx context.Context, userID string, optOut bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := loadUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if err := setUserOptOut(s.db.WithContext(ctx), user, optOut, s.now()); err != nil {
		return nil, fmt.Errorf("preference service: set opt-out: %w", err)
	}
	return user, nil
}

func loadUser(db *gorm.DB, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrNotFound
	}
	var user models.User
	if err := db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

func setUserOptOut(db *gorm.DB, user *models.User, optOut bool, now time.Time) error {
	var optOutAt *time.Time
	if optOut {
		ts := now.UTC()
		optOutAt = &ts
	}
	if err := db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"email_notifications_opted_out": optOut,
			"email_opt_out_at":              optOutAt,
		}).Error; err != nil {
		return err
	}
	user.EmailNotificationsOptedOut = optOut
	user.EmailOptOutAt = optOutAt
	return nil
}

// loadPreference returns the stored row, or the defaults and false when none exists.
func loadPreference(db *gorm.DB, userID string, category models.Category) (models.NotificationPreference, bool, error) {
	var pref models.NotificationPreference
	err := db.Where("user_id = ? AND category = ?", userID, category).Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultPreference(userID, category), false, nil
	}
	if err != nil {
		return models.NotificationPreference{}, false, err
	}
	return pref, true, nil
}

// upsertPreference applies mutate to the existing row or to a freshly
// defaulted one and persists the result. Rows are created lazily here.
func upsertPreference(db *gorm.DB, userID string, category models.Category, mutate func(*models.NotificationPreference)) (models.NotificationPreference, error) {
	pref, exists, err := loadPreference(db, userID, category)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	mutate(&pref)

	if exists {
		err = db.Model(&models.NotificationPreference{}).
			Where("id = ?", pref.ID).
			Updates(map[string]any{
				"enable_website": pref.EnableWebsite,
				"enable_email":   pref.EnableEmail,
				"frequency":      pref.Frequency,
				"area_filter":    pref.AreaFilter,
			}).Error
		return pref, err
	}

	if err := db.Create(&pref).Error; err != nil {
		return models.NotificationPreference{}, err
	}
	return pref, nil
}

func mapPreference(pref models.NotificationPreference, persisted bool) PreferenceDTO {
	dto := PreferenceDTO{
		Category:      pref.Category,
		EnableWebsite: pref.EnableWebsite,
		EnableEmail:   pref.EnableEmail,
		Frequency:     pref.Frequency,
		Persisted:     persisted,
	}
	if dto.Frequency == "" {
		dto.Frequency = models.FrequencyImmediate
	}
	if len(pref.AreaFilter) > 0 {
		dto.AreaFilter = json.RawMessage(pref.AreaFilter)
	}
	return dto
}
