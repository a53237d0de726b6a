// Package mail delivers outbound email for the password-reset flow. The
// core never consults it for decisions; the HTTP layer dispatches mail only
// after the reset use case reported a match, and the outside response stays
// uniform either way.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"authcore.dev/internal/obs"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig carries the SMTP collaborator settings, injected once at start.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Configured reports whether enough settings are present to deliver mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMTPSender sends through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender wraps cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	fromHeader := from
	if s.cfg.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.cfg.FromName, from)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogSender is the fallback used when SMTP is unconfigured: it records that
// a message would have been sent and drops it.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	obs.LogRequest(map[string]any{
		"level": "info", "msg": "smtp unconfigured, mail not sent",
		"to": to, "subject": subject,
	})
	return nil
}

// PasswordReset builds the reset-link message for a stored reset token.
func PasswordReset(baseURL, email, token, tenantDomain string) (subject, body string) {
	link := fmt.Sprintf(
		"%s/reset-password?token=%s&email=%s&tenant=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(token),
		url.QueryEscape(email),
		url.QueryEscape(tenantDomain),
	)
	subject = "Password Reset Request"
	body = fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h2>Password Reset Request</h2>
<p>You requested a password reset for your account in tenant: <strong>%s</strong></p>
<p><a href="%s">Reset Password</a></p>
<p>Or copy and paste this URL into your browser:</p>
<p>%s</p>
<p>This link will expire in 1 hour. If you didn't request this, please ignore this email.</p>
</body></html>`, tenantDomain, link, link)
	return subject, body
}
