package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/queue"
	"github.com/charlesng35/notifyd/pkg/logger"
)

const (
	defaultQueueTimeout = 5 * time.Second
	defaultSendTimeout  = 15 * time.Second
)

// Delivery outcomes recorded by monitoring.
const (
	outcomeQueued     = "queued"
	outcomeDirect     = "direct"
	outcomeFallback   = "fallback"
	outcomeFailed     = "failed"
	outcomeSuppressed = "suppressed"
)

// TokenProvider returns the user's current unsubscribe token.
type TokenProvider interface {
	GetOrCreate(ctx context.Context, userID string) (*models.UnsubscribeToken, error)
}

// DirectSender transmits an email synchronously.
type DirectSender interface {
	Send(ctx context.Context, email EmailContext) error
}

// EmailDeliveryOption customises the EmailDelivery.
type EmailDeliveryOption func(*EmailDelivery)

// WithForceDirectEmail skips the queue and always sends synchronously.
func WithForceDirectEmail(force bool) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		d.forceDirect = force
	}
}

// WithQueueTimeout bounds a single queue submission.
func WithQueueTimeout(timeout time.Duration) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		if timeout > 0 {
			d.queueTimeout = timeout
		}
	}
}

// WithSendTimeout bounds a single direct send.
func WithSendTimeout(timeout time.Duration) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithUnsubscribeBaseURL sets the public origin used in unsubscribe links.
func WithUnsubscribeBaseURL(base string) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		d.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithDeliveryClock injects a custom time source.
func WithDeliveryClock(clock func() time.Time) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithDeliveryLogger overrides the delivery logger.
func WithDeliveryLogger(log *zap.Logger) EmailDeliveryOption {
	return func(d *EmailDelivery) {
		if log != nil {
			d.log = log
		}
	}
}

// EmailDelivery submits notification emails to the queue and falls back to a
// synchronous direct send when the queue is unavailable.
type EmailDelivery struct {
	db           *gorm.DB
	queue        queue.Client
	sender       DirectSender
	tokens       TokenProvider
	forceDirect  bool
	queueTimeout time.Duration
	sendTimeout  time.Duration
	baseURL      string
	now          func() time.Time
	log          *zap.Logger
}

// NewEmailDelivery constructs the delivery pipeline. A nil queue client is
// treated as disabled.
func NewEmailDelivery(db *gorm.DB, client queue.Client, sender DirectSender, tokens TokenProvider, opts ...EmailDeliveryOption) (*EmailDelivery, error) {
	if db == nil {
		return nil, errors.New("email delivery: db is required")
	}
	if sender == nil {
		return nil, errors.New("email delivery: direct sender is required")
	}
	if tokens == nil {
		return nil, errors.New("email delivery: token provider is required")
	}
	if client == nil {
		client = queue.Disabled()
	}

	d := &EmailDelivery{
		db:           db,
		queue:        client,
		sender:       sender,
		tokens:       tokens,
		queueTimeout: defaultQueueTimeout,
		sendTimeout:  defaultSendTimeout,
		now:          time.Now,
		log:          logger.WithModule("email"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// QueueEmailNotification decides how the email for notification is delivered:
//
//   - user globally opted out: nothing happens, returns false
//   - force-direct mode: direct send, marked sent on success
//   - queue accepts the task: returns true, the worker marks it sent later
//   - queue fails or times out: direct send, marked sent on success
func (d *EmailDelivery) QueueEmailNotification(ctx context.Context, notification *models.Notification, user *models.User, template EmailTemplate) bool {
	ctx = ensureContext(ctx)
	if notification == nil || user == nil {
		return false
	}
	audience := deliveryAudience(notification.Category)
	log := d.log.With(
		zap.String("notification_id", notification.ID),
		zap.String("user_id", user.ID),
		zap.String("category", string(notification.Category)),
	)

	if user.EmailNotificationsOptedOut {
		monitoring.RecordEmailDelivery(audience, outcomeSuppressed)
		return false
	}
	if strings.TrimSpace(user.Email) == "" {
		log.Warn("user has no email address; skipping email")
		monitoring.RecordEmailDelivery(audience, outcomeFailed)
		return false
	}

	email := EmailContext{
		To:             user.Email,
		Username:       user.Username,
		Template:       defaultTemplate(template),
		NotificationID: notification.ID,
		Title:          notification.Title,
		Message:        notification.Message,
		LinkURL:        derefString(notification.LinkURL),
		Category:       notification.Category,
	}

	var tokenValue *string
	if includesUnsubscribe(notification.Category, email.Template) {
		token, err := d.tokens.GetOrCreate(ctx, user.ID)
		if err != nil {
			log.Error("unable to obtain unsubscribe token; email not sent", zap.Error(err))
			monitoring.RecordEmailDelivery(audience, outcomeFailed)
			return false
		}
		tokenValue = &token.Token
		email.UnsubscribeToken = token.Token
		email.UnsubscribeURL = d.unsubscribeURL("/unsubscribe", token.Token, notification.Category)
		email.UnsubscribeAllURL = d.unsubscribeURL("/unsubscribe/all", token.Token, "")
	}

	if d.forceDirect {
		return d.sendDirect(ctx, log, email, audience, outcomeDirect)
	}

	task := queue.EmailTask{
		NotificationID: notification.ID,
		UserEmail:      user.Email,
		UserID:         user.ID,
		Notification: queue.TaskPayload{
			Title:    notification.Title,
			Message:  notification.Message,
			LinkURL:  notification.LinkURL,
			Category: string(notification.Category),
		},
		UnsubscribeToken: tokenValue,
	}

	if err := d.enqueue(ctx, task); err != nil {
		if errors.Is(err, queue.ErrQueueDisabled) {
			log.Debug("queue disabled; sending directly")
		} else {
			log.Warn("queue submission failed; falling back to direct send", zap.Error(err))
		}
		return d.sendDirect(ctx, log, email, audience, outcomeFallback)
	}

	monitoring.RecordEmailDelivery(audience, outcomeQueued)
	return true
}

func (d *EmailDelivery) enqueue(ctx context.Context, task queue.EmailTask) error {
	submitCtx, cancel := context.WithTimeout(ctx, d.queueTimeout)
	defer cancel()

	start := time.Now()
	// A nil error means the queue accepted the task, even if the deadline
	// has passed since.
	err := d.queue.Enqueue(submitCtx, task)

	result := "success"
	if err != nil {
		result = "failure"
	}
	monitoring.ObserveQueueSubmit(result, time.Since(start))
	return err
}

// sendDirect transmits synchronously and marks the notification sent on
// success. A failed bookkeeping write after a successful send still reports
// true because the email went out.
func (d *EmailDelivery) sendDirect(ctx context.Context, log *zap.Logger, email EmailContext, audience, outcome string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, email); err != nil {
		log.Error("direct email send failed", zap.Error(err))
		monitoring.RecordEmailDelivery(audience, outcomeFailed)
		return false
	}

	if _, err := markEmailSent(ctx, d.db, email.NotificationID, d.now()); err != nil {
		log.Warn("email sent but mark-sent failed", zap.Error(err))
	}
	monitoring.RecordEmailDelivery(audience, outcome)
	return true
}

func (d *EmailDelivery) unsubscribeURL(path, token string, category models.Category) string {
	query := url.Values{}
	query.Set("token", token)
	if category != "" {
		query.Set("category", string(category))
	}
	return d.baseURL + path + "?" + query.Encode()
}

// includesUnsubscribe reports whether the email carries unsubscribe links.
// Admin alerts and account verification mail never do.
func includesUnsubscribe(category models.Category, template EmailTemplate) bool {
	if category == models.CategoryAdminAlerts {
		return false
	}
	return template != TemplateAccountVerification
}

func deliveryAudience(category models.Category) string {
	if category == models.CategoryAdminAlerts {
		return "admin"
	}
	return "user"
}
