package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/models"
)

func TestEmailDispatcherRendersNotificationWithUnsubscribeLinks(t *testing.T) {
	mailer := &recordingMailer{}
	dispatcher, err := NewEmailDispatcher(mailer, WithDispatcherFrom("noreply@example.com"), WithSubjectPrefix("[Divemap]"))
	require.NoError(t, err)

	err = dispatcher.Send(context.Background(), EmailContext{
		To:                "diver@example.com",
		Username:          "diver",
		NotificationID:    "n1",
		Title:             "New dive site",
		Message:           "Blue Hole <added>",
		LinkURL:           "https://example.com/sites/1",
		Category:          models.CategoryNewDiveSites,
		UnsubscribeURL:    "https://api.example.com/unsubscribe?category=new_dive_sites&token=abc",
		UnsubscribeAllURL: "https://api.example.com/unsubscribe/all?token=abc",
		UnsubscribeToken:  "abc",
	})
	require.NoError(t, err)
	require.Len(t, mailer.messages, 1)

	msg := mailer.messages[0]
	require.Equal(t, "noreply@example.com", msg.From)
	require.Equal(t, []string{"diver@example.com"}, msg.To)
	require.Equal(t, "[Divemap] New dive site", msg.Subject)
	require.Contains(t, msg.Body, "Unsubscribe from new dive sites: https://api.example.com/unsubscribe?category=new_dive_sites&token=abc")
	require.Contains(t, msg.HTMLBody, "Blue Hole &lt;added&gt;")
	require.Contains(t, msg.HTMLBody, "Unsubscribe from all emails")
	require.Equal(t, "<https://api.example.com/unsubscribe/all?token=abc>", msg.Headers["List-Unsubscribe"])
}

func TestEmailDispatcherAdminAlertHasNoUnsubscribe(t *testing.T) {
	mailer := &recordingMailer{}
	dispatcher, err := NewEmailDispatcher(mailer)
	require.NoError(t, err)

	msg, err := dispatcher.Render(EmailContext{
		To:       "admin@example.com",
		Template: TemplateAdminAlert,
		Title:    "Ownership claim pending",
		Category: models.CategoryAdminAlerts,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg.Body, "Administrator alert"))
	require.NotContains(t, msg.Body, "Unsubscribe")
	require.NotContains(t, msg.HTMLBody, "Unsubscribe")
	require.Nil(t, msg.Headers)
}

func TestEmailDispatcherErrors(t *testing.T) {
	_, err := NewEmailDispatcher(nil)
	require.Error(t, err)

	mailer := &recordingMailer{err: errors.New("smtp down")}
	dispatcher, err := NewEmailDispatcher(mailer)
	require.NoError(t, err)

	require.Error(t, dispatcher.Send(context.Background(), EmailContext{Title: "x"}))
	require.ErrorContains(t, dispatcher.Send(context.Background(), EmailContext{To: "a@example.com", Title: "x"}), "smtp down")

	_, err = dispatcher.Render(EmailContext{To: "a@example.com", Template: "digest"})
	require.Error(t, err)
}

func TestEmailDispatcherDefaultSubject(t *testing.T) {
	dispatcher, err := NewEmailDispatcher(&recordingMailer{})
	require.NoError(t, err)

	msg, err := dispatcher.Render(EmailContext{To: "a@example.com", Template: TemplateAccountVerification})
	require.NoError(t, err)
	require.Equal(t, "You have a new notification", msg.Subject)
	require.Contains(t, msg.Body, "Please confirm your email address.")
}
