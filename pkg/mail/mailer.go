package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound email.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
	Headers  map[string]string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings capture the runtime configuration required by the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type sendFunc func(msgs ...*gomail.Message) error

// smtpsPort is the submission port that expects TLS from the first byte.
const smtpsPort = 465

type smtpMailer struct {
	cfg    SMTPSettings
	dialer *gomail.Dialer
	send   sendFunc
}

// NewSMTPMailer builds a gomail-backed Mailer. A disabled configuration yields
// a mailer whose Send always returns ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if err := validateSMTPConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// use_tls means implicit TLS on the SMTPS port and STARTTLS elsewhere;
	// gomail upgrades plain connections whenever the server offers STARTTLS.
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.UseTLS && cfg.Port == smtpsPort
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	return &smtpMailer{
		cfg:    cfg,
		dialer: dialer,
		send:   dialer.DialAndSend,
	}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("smtp: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return errors.New("smtp: sender address is required")
	}

	if _, err := mail.ParseAddress(from); err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}

	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}

	message := buildMessage(from, recipients, msg)

	// gomail dials without a context; bound the whole exchange here instead.
	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.send(message)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: send: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("smtp: send: %w", sendCtx.Err())
	}
}

func buildMessage(from string, to []string, msg Message) *gomail.Message {
	message := gomail.NewMessage()
	message.SetHeader("Message-ID", generateMessageID(from))
	message.SetHeader("From", from)
	message.SetHeader("To", to...)
	message.SetHeader("Subject", escapeHeader(msg.Subject))
	message.SetDateHeader("Date", time.Now())
	for key, value := range msg.Headers {
		message.SetHeader(key, escapeHeader(value))
	}

	message.SetBody("text/plain", msg.Body)
	if strings.TrimSpace(msg.HTMLBody) != "" {
		message.AddAlternative("text/html", msg.HTMLBody)
	}
	return message
}

func validateSMTPConfig(cfg SMTPSettings) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return errors.New("smtp: host is required when enabled")
	}
	if cfg.Port == 0 {
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func generateMessageID(from string) string {
	domain := "localhost"
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at != -1 && at < len(addr.Address)-1 {
			domain = addr.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
