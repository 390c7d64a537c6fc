// Package mailer delivers transactional email.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"roamio/internal/config"
	"roamio/internal/observability"

	"gopkg.in/gomail.v2"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// New returns an SMTP sender, or a LogSender when no SMTP host is configured.
func New(cfg *config.Config, logger *slog.Logger) Sender {
	if cfg.SMTPHost == "" {
		return &LogSender{Logger: logger}
	}
	return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

// SMTPSender sends mail through an SMTP relay. Port 465 uses implicit TLS.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if from == "" {
		from = username
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	span, _ := observability.StartExternalSpan(ctx, "smtp", "send")
	defer span.End()
	defer observability.TrackExternal("smtp", "send")()

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	// gomail has no context support; the dial itself is bounded by the dialer.
	if err := s.dialer.DialAndSend(m); err != nil {
		span.SetError(err)
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used in development.
type LogSender struct {
	Logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// Message is a delivered message as recorded by LogSender.
type Message struct {
	To      string
	Subject string
	Body    string
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	s.sent = append(s.sent, Message{To: to, Subject: subject, Body: htmlBody})
	s.mu.Unlock()
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "email not sent, smtp disabled", "to", to, "subject", subject)
	}
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

var codeTemplate = template.Must(template.New("code").Parse(`<div style="font-family:sans-serif;max-width:480px;margin:auto">
<h2>Roamio</h2>
<p>{{.Purpose}}</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{.Code}}</p>
<p>This code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</div>`))

var purposes = map[string]string{
	"register":       "Use this code to finish creating your account.",
	"login":          "Use this code to sign in.",
	"reset_password": "Use this code to reset your password.",
	"bind_email":     "Use this code to link this address to your account.",
}

// VerificationEmail renders the subject and HTML body of a code email.
func VerificationEmail(kind, code string, minutes int) (string, string, error) {
	purpose, ok := purposes[kind]
	if !ok {
		purpose = "Your verification code:"
	}
	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, struct {
		Purpose string
		Code    string
		Minutes int
	}{purpose, code, minutes})
	if err != nil {
		return "", "", err
	}
	return "Roamio verification code: " + code, buf.String(), nil
}
