// Package queue submits email tasks to the managed outbound queue consumed by
// the email worker.
package queue

import (
	"context"
	"errors"
)

// ErrQueueDisabled is returned by the disabled client. Callers treat it like
// any other submission failure and fall back to direct send.
var ErrQueueDisabled = errors.New("queue: disabled")

// TaskPayload is the notification content carried by an EmailTask.
type TaskPayload struct {
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	LinkURL  *string `json:"link_url"`
	Category string  `json:"category"`
}

// EmailTask is the outbound queue message.
type EmailTask struct {
	NotificationID   string      `json:"notification_id"`
	UserEmail        string      `json:"user_email"`
	UserID           string      `json:"user_id"`
	Notification     TaskPayload `json:"notification"`
	UnsubscribeToken *string     `json:"unsubscribe_token"`
}

// Client submits email tasks.
type Client interface {
	Enqueue(ctx context.Context, task EmailTask) error
	Ping(ctx context.Context) error
}

type disabledClient struct{}

// Disabled returns a Client for deployments without a queue.
func Disabled() Client {
	return disabledClient{}
}

func (disabledClient) Enqueue(context.Context, EmailTask) error { return ErrQueueDisabled }

func (disabledClient) Ping(context.Context) error { return ErrQueueDisabled }

// IsDisabled reports whether c is the disabled client.
func IsDisabled(c Client) bool {
	_, ok := c.(disabledClient)
	return c == nil || ok
}
