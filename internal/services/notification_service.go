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
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/metrics"
)

// Mark-sent statuses returned to the email worker.
const (
	MarkEmailSentSuccess     = "success"
	MarkEmailSentAlreadySent = "already_sent"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Category    models.Category `json:"category"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	LinkURL     *string         `json:"link_url"`
	EntityType  *string         `json:"entity_type"`
	EntityID    *string         `json:"entity_id"`
	IsRead      bool            `json:"is_read"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
	EmailSent   bool            `json:"email_sent"`
	EmailSentAt *time.Time      `json:"email_sent_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NotificationDetail is the projection served to the email worker.
type NotificationDetail struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Category    models.Category `json:"category"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	LinkURL     *string         `json:"link_url"`
	EntityType  *string         `json:"entity_type"`
	EntityID    *string         `json:"entity_id"`
	EmailSent   bool            `json:"email_sent"`
	EmailSentAt *time.Time      `json:"email_sent_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MarkEmailSentResult is the response of an idempotent mark-sent call.
type MarkEmailSentResult struct {
	Status         string     `json:"status"`
	NotificationID string     `json:"notification_id"`
	EmailSentAt    *time.Time `json:"email_sent_at"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID     string
	Category   models.Category
	Title      string
	Message    string
	LinkURL    *string
	EntityType *string
	EntityID   *string
	// Template selects the email rendering; empty means TemplateNotification.
	Template EmailTemplate
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Limit      int
	Offset     int
	UnreadOnly bool
}

// EmailQueuer hands eligible notifications to the email pipeline.
type EmailQueuer interface {
	QueueEmailNotification(ctx context.Context, notification *models.Notification, user *models.User, template EmailTemplate) bool
}

// NotificationOption customises the NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock injects a custom time source.
func WithNotificationClock(clock func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithNotificationLogger overrides the service logger.
func WithNotificationLogger(log *zap.Logger) NotificationOption {
	return func(s *NotificationService) {
		if log != nil {
			s.log = log
		}
	}
}

// NotificationService creates in-app notifications, decides on email delivery
// and serves the owner and worker views of a notification.
type NotificationService struct {
	db       *gorm.DB
	prefs    *PreferenceService
	delivery EmailQueuer
	now      func() time.Time
	log      *zap.Logger
}

// NewNotificationService constructs a NotificationService. delivery may be nil,
// in which case no email is ever attempted.
func NewNotificationService(db *gorm.DB, prefs *PreferenceService, delivery EmailQueuer, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if prefs == nil {
		return nil, errors.New("notification service: preference service is required")
	}
	svc := &NotificationService{
		db:       db,
		prefs:    prefs,
		delivery: delivery,
		now:      time.Now,
		log:      logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// CreateNotification persists the notification and, when the user's
// preferences allow it, hands it to the email pipeline. Email failures are
// logged and never fail creation.
func (s *NotificationService) CreateNotification(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	category, ok := models.ParseCategory(string(input.Category))
	if !ok {
		return nil, apperrors.ErrUnknownCategory
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	user, err := loadUser(s.db.WithContext(ctx), input.UserID)
	if err != nil {
		return nil, err
	}

	notification := models.Notification{
		UserID:     user.ID,
		Category:   category,
		Title:      title,
		Message:    strings.TrimSpace(input.Message),
		LinkURL:    trimmedPtr(input.LinkURL),
		EntityType: trimmedPtr(input.EntityType),
		EntityID:   trimmedPtr(input.EntityID),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	decision, err := s.prefs.ShouldNotify(ctx, user, category)
	if err != nil {
		s.log.Warn("preference lookup failed; skipping email",
			zap.String("notification_id", notification.ID),
			zap.Error(err),
		)
		dto := mapNotification(notification)
		return &dto, nil
	}

	if decision.EmailEligible && s.delivery != nil {
		template := input.Template
		if template == "" {
			template = TemplateNotification
			if category == models.CategoryAdminAlerts {
				template = TemplateAdminAlert
			}
		}
		if s.delivery.QueueEmailNotification(ctx, &notification, user, template) {
			s.refreshEmailState(ctx, &notification)
		} else {
			s.log.Info("email not delivered for notification",
				zap.String("notification_id", notification.ID),
				zap.String("category", string(category)),
			)
		}
	}

	dto := mapNotification(notification)
	return &dto, nil
}

// refreshEmailState reloads email_sent after a synchronous direct send.
func (s *NotificationService) refreshEmailState(ctx context.Context, notification *models.Notification) {
	var current models.Notification
	if err := s.db.WithContext(ctx).
		Select("id", "email_sent", "email_sent_at").
		Take(&current, "id = ?", notification.ID).Error; err != nil {
		return
	}
	notification.EmailSent = current.EmailSent
	notification.EmailSentAt = current.EmailSentAt
}

// ListForUser returns notifications for the supplied user ordered by recency,
// together with the total matching count.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), total, nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}
	return count, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(*notification)
	return &dto, nil
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": false,
			"read_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark unread: %w", err)
	}

	notification.IsRead = false
	notification.ReadAt = nil
	dto := mapNotification(*notification)
	return &dto, nil
}

// MarkAllRead marks all notifications for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// GetDetail returns the worker projection of a notification.
func (s *NotificationService) GetDetail(ctx context.Context, notificationID string) (*NotificationDetail, error) {
	ctx = ensureContext(ctx)
	var row models.Notification
	if err := s.db.WithContext(ctx).Take(&row, "id = ?", strings.TrimSpace(notificationID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &NotificationDetail{
		ID:          row.ID,
		UserID:      row.UserID,
		Category:    row.Category,
		Title:       row.Title,
		Message:     row.Message,
		LinkURL:     row.LinkURL,
		EntityType:  row.EntityType,
		EntityID:    row.EntityID,
		EmailSent:   row.EmailSent,
		EmailSentAt: row.EmailSentAt,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// MarkEmailSent records that the worker delivered the email. Repeated calls
// return already_sent and leave the first timestamp untouched.
func (s *NotificationService) MarkEmailSent(ctx context.Context, notificationID string) (*MarkEmailSentResult, error) {
	result, err := markEmailSent(ensureContext(ctx), s.db, notificationID, s.now())
	if err != nil {
		return nil, err
	}
	metrics.MarkSentCalls.WithLabelValues(result.Status).Inc()
	return result, nil
}

// markEmailSent flips email_sent with a conditional update, so concurrent and
// duplicate callers all observe the single stored timestamp.
func markEmailSent(ctx context.Context, db *gorm.DB, notificationID string, now time.Time) (*MarkEmailSentResult, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return nil, apperrors.ErrNotFound
	}

	update := db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND email_sent = ?", notificationID, false).
		Updates(map[string]any{
			"email_sent":    true,
			"email_sent_at": now.UTC(),
		})
	if update.Error != nil {
		return nil, fmt.Errorf("notification service: mark email sent: %w", update.Error)
	}

	var row models.Notification
	if err := db.WithContext(ctx).
		Select("id", "email_sent", "email_sent_at").
		Take(&row, "id = ?", notificationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: reload notification: %w", err)
	}

	status := MarkEmailSentAlreadySent
	if update.RowsAffected > 0 {
		status = MarkEmailSentSuccess
	}
	return &MarkEmailSentResult{
		Status:         status,
		NotificationID: row.ID,
		EmailSentAt:    row.EmailSentAt,
	}, nil
}

func (s *NotificationService) loadOwned(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          row.ID,
		UserID:      row.UserID,
		Category:    row.Category,
		Title:       row.Title,
		Message:     row.Message,
		LinkURL:     row.LinkURL,
		EntityType:  row.EntityType,
		EntityID:    row.EntityID,
		IsRead:      row.IsRead,
		ReadAt:      row.ReadAt,
		EmailSent:   row.EmailSent,
		EmailSentAt: row.EmailSentAt,
		CreatedAt:   row.CreatedAt,
	}
}
