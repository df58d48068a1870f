package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/pkg/mail"
)

// EmailTemplate selects the body rendered for an email.
type EmailTemplate string

const (
	TemplateNotification        EmailTemplate = "notification"
	TemplateAdminAlert          EmailTemplate = "admin_alert"
	TemplateAccountVerification EmailTemplate = "account_verification"
)

var knownTemplates = []EmailTemplate{TemplateNotification, TemplateAdminAlert, TemplateAccountVerification}

//go:embed templates/*.tmpl
var templateFS embed.FS

// EmailContext is the data handed to the mail renderer. Unsubscribe fields are
// empty for admin alerts and account verification mail.
type EmailContext struct {
	To                string
	Username          string
	Template          EmailTemplate
	NotificationID    string
	Title             string
	Message           string
	LinkURL           string
	Category          models.Category
	UnsubscribeURL    string
	UnsubscribeAllURL string
	UnsubscribeToken  string
}

// CategoryLabel renders the category for humans, e.g. "new dive sites".
func (c EmailContext) CategoryLabel() string {
	return strings.ReplaceAll(string(c.Category), "_", " ")
}

// DispatcherOption customises the EmailDispatcher.
type DispatcherOption func(*EmailDispatcher)

// WithDispatcherFrom sets the sender address.
func WithDispatcherFrom(from string) DispatcherOption {
	return func(d *EmailDispatcher) {
		d.from = strings.TrimSpace(from)
	}
}

// WithSubjectPrefix prefixes every subject, e.g. "[Divemap]".
func WithSubjectPrefix(prefix string) DispatcherOption {
	return func(d *EmailDispatcher) {
		d.subjectPrefix = strings.TrimSpace(prefix)
	}
}

// EmailDispatcher renders notification emails and sends them directly
// through the mailer.
type EmailDispatcher struct {
	mailer        mail.Mailer
	from          string
	subjectPrefix string
	html          map[EmailTemplate]*htmltemplate.Template
	text          map[EmailTemplate]*texttemplate.Template
}

// NewEmailDispatcher parses the embedded templates and binds them to mailer.
func NewEmailDispatcher(mailer mail.Mailer, opts ...DispatcherOption) (*EmailDispatcher, error) {
	if mailer == nil {
		return nil, errors.New("email dispatcher: mailer is required")
	}

	d := &EmailDispatcher{
		mailer: mailer,
		html:   make(map[EmailTemplate]*htmltemplate.Template, len(knownTemplates)),
		text:   make(map[EmailTemplate]*texttemplate.Template, len(knownTemplates)),
	}
	for _, name := range knownTemplates {
		htmlTmpl, err := htmltemplate.ParseFS(templateFS, "templates/"+string(name)+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("email dispatcher: parse %s html: %w", name, err)
		}
		textTmpl, err := texttemplate.ParseFS(templateFS, "templates/"+string(name)+".txt.tmpl")
		if err != nil {
			return nil, fmt.Errorf("email dispatcher: parse %s text: %w", name, err)
		}
		d.html[name] = htmlTmpl
		d.text[name] = textTmpl
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Send renders email and hands it to the mailer.
func (d *EmailDispatcher) Send(ctx context.Context, email EmailContext) error {
	msg, err := d.Render(email)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ensureContext(ctx), msg); err != nil {
		return fmt.Errorf("email dispatcher: send: %w", err)
	}
	return nil
}

// Render builds the outbound message without sending it.
func (d *EmailDispatcher) Render(email EmailContext) (mail.Message, error) {
	if strings.TrimSpace(email.To) == "" {
		return mail.Message{}, errors.New("email dispatcher: recipient is required")
	}
	name := defaultTemplate(email.Template)
	htmlTmpl, ok := d.html[name]
	if !ok {
		return mail.Message{}, fmt.Errorf("email dispatcher: unknown template %q", name)
	}

	var htmlBody, textBody bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBody, email); err != nil {
		return mail.Message{}, fmt.Errorf("email dispatcher: render html: %w", err)
	}
	if err := d.text[name].Execute(&textBody, email); err != nil {
		return mail.Message{}, fmt.Errorf("email dispatcher: render text: %w", err)
	}

	msg := mail.Message{
		From:     d.from,
		To:       []string{email.To},
		Subject:  d.subject(email),
		Body:     strings.TrimSpace(textBody.String()) + "\n",
		HTMLBody: htmlBody.String(),
	}
	if email.UnsubscribeURL != "" {
		msg.Headers = map[string]string{
			"List-Unsubscribe": "<" + email.UnsubscribeAllURL + ">",
		}
	}
	return msg, nil
}

func (d *EmailDispatcher) subject(email EmailContext) string {
	subject := strings.TrimSpace(email.Title)
	if subject == "" {
		subject = "You have a new notification"
	}
	if d.subjectPrefix != "" {
		subject = d.subjectPrefix + " " + subject
	}
	return subject
}

func defaultTemplate(name EmailTemplate) EmailTemplate {
	if name == "" {
		return TemplateNotification
	}
	return name
}
